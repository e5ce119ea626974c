package lending

import (
	"fmt"
	"math/big"

	"lendfi/crypto"
	nativecommon "lendfi/native/common"
)

// RewardSink receives incentive payouts for long-standing liquidity
// providers. Reward distribution is an external subsystem; the engine only
// hands off (recipient, amount) pairs.
type RewardSink interface {
	Reward(recipient crypto.Address, amount *big.Int)
}

// NoopRewardSink discards reward hand-offs.
type NoopRewardSink struct{}

// Reward implements the RewardSink interface.
func (NoopRewardSink) Reward(crypto.Address, *big.Int) {}

// SupplyLiquidity deposits quote tokens into the lending pool. Share-token
// bookkeeping for providers lives outside the core; the engine records the
// supplied base and the deposit time that gates reward eligibility.
func (e *Engine) SupplyLiquidity(supplier crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	supplierAcc, err := e.loadAccount(supplier)
	if err != nil {
		return err
	}
	if supplierAcc.BalanceQuote.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientTokenBalance, supplierAcc.BalanceQuote, amount)
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	account, err := e.ensureLiquidityAccount(supplier)
	if err != nil {
		return err
	}

	supplierAcc.BalanceQuote = new(big.Int).Sub(supplierAcc.BalanceQuote, amount)
	moduleAcc.BalanceQuote = new(big.Int).Add(moduleAcc.BalanceQuote, amount)

	account.SuppliedBase = new(big.Int).Add(account.SuppliedBase, amount)
	account.LastSupply = e.timestamp

	market.TotalSuppliedLiquidity = new(big.Int).Add(market.TotalSuppliedLiquidity, amount)
	market.TotalBase = new(big.Int).Add(market.TotalBase, amount)

	if err := e.persistAccount(supplier, supplierAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutLiquidityAccount(account); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	e.emitter.Emit(LiquiditySupplied{Supplier: supplier, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawLiquidity returns quote tokens to the provider, subject to the
// pool's free liquidity, and hands an incentive reward to the reward sink
// when the provider qualifies.
func (e *Engine) WithdrawLiquidity(supplier crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	account, err := e.ensureLiquidityAccount(supplier)
	if err != nil {
		return err
	}
	if account.SuppliedBase.Cmp(amount) < 0 {
		return fmt.Errorf("%w: supplied %s want %s", ErrInsufficientTokenBalance, account.SuppliedBase, amount)
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	free := new(big.Int).Sub(market.TotalSuppliedLiquidity, market.TotalBorrow)
	if free.Sign() < 0 {
		free = big.NewInt(0)
	}
	if amount.Cmp(free) > 0 {
		return fmt.Errorf("%w: available %s", ErrInsufficientLiquidity, free)
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceQuote.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s", ErrInsufficientLiquidity, moduleAcc.BalanceQuote)
	}
	supplierAcc, err := e.loadAccount(supplier)
	if err != nil {
		return err
	}

	reward := e.rewardFor(account)

	moduleAcc.BalanceQuote = new(big.Int).Sub(moduleAcc.BalanceQuote, amount)
	supplierAcc.BalanceQuote = new(big.Int).Add(supplierAcc.BalanceQuote, amount)

	account.SuppliedBase = new(big.Int).Sub(account.SuppliedBase, amount)
	market.TotalSuppliedLiquidity = new(big.Int).Sub(market.TotalSuppliedLiquidity, amount)
	market.TotalBase = new(big.Int).Sub(market.TotalBase, amount)
	if market.TotalBase.Sign() < 0 {
		market.TotalBase = big.NewInt(0)
	}

	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.persistAccount(supplier, supplierAcc); err != nil {
		return err
	}
	if err := e.state.PutLiquidityAccount(account); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	if reward.Sign() > 0 {
		e.rewarder.Reward(supplier, reward)
		if e.telemetry != nil {
			e.telemetry.IncReward()
		}
	}

	e.recordMarket(market)
	e.emitter.Emit(LiquidityWithdrawn{Supplier: supplier, Amount: new(big.Int).Set(amount), Reward: reward})
	return nil
}

// rewardFor computes the provider's incentive: proportional to supply age
// against the reward interval and clamped at the configured maximum. Zero
// when the provider's base or tenure is below the eligibility thresholds.
func (e *Engine) rewardFor(account *LiquidityAccount) *big.Int {
	if account == nil || e.config.TargetReward == nil || e.config.TargetReward.Sign() == 0 ||
		e.config.RewardInterval == 0 {
		return big.NewInt(0)
	}
	if account.SuppliedBase.Cmp(e.config.RewardableSupply) < 0 {
		return big.NewInt(0)
	}
	var elapsed uint64
	if e.timestamp > account.LastSupply {
		elapsed = e.timestamp - account.LastSupply
	}
	if elapsed < e.config.RewardInterval {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(e.config.TargetReward, new(big.Int).SetUint64(elapsed))
	reward.Quo(reward, new(big.Int).SetUint64(e.config.RewardInterval))
	if e.config.MaxReward != nil && e.config.MaxReward.Sign() > 0 && reward.Cmp(e.config.MaxReward) > 0 {
		reward = new(big.Int).Set(e.config.MaxReward)
	}
	return reward
}

func (e *Engine) ensureLiquidityAccount(addr crypto.Address) (*LiquidityAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, err := e.state.GetLiquidityAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &LiquidityAccount{Address: addr}
	}
	if account.SuppliedBase == nil {
		account.SuppliedBase = big.NewInt(0)
	}
	return account, nil
}
