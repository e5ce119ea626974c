package lending

import (
	"fmt"
	"math/big"

	"lendfi/core/events"
	"lendfi/core/types"
	"lendfi/crypto"
	nativecommon "lendfi/native/common"
	"lendfi/observability/metrics"
)

const moduleName = "lending"

// engineState is the persistence boundary the hosting environment provides.
// The host guarantees one operation executes at a time and that a failed
// operation leaves no writes behind; the engine in turn performs all reads
// and checks before its first Put.
type engineState interface {
	GetAssetConfig(asset crypto.Address) (*AssetConfig, error)
	PutAssetConfig(cfg *AssetConfig) error
	ListAssets() ([]crypto.Address, error)
	GetMarket() (*Market, error)
	PutMarket(market *Market) error
	PositionCount(owner crypto.Address) (uint64, error)
	GetPosition(owner crypto.Address, id uint64) (*Position, error)
	PutPosition(position *Position) error
	GetCollateral(owner crypto.Address, id uint64, asset crypto.Address) (*big.Int, error)
	PutCollateral(owner crypto.Address, id uint64, asset crypto.Address, amount *big.Int) error
	GetLiquidityAccount(addr crypto.Address) (*LiquidityAccount, error)
	PutLiquidityAccount(account *LiquidityAccount) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine orchestrates the state transitions of the lending ledger: position
// lifecycle, collateral custody, borrowing, interest accrual and
// liquidation.
type Engine struct {
	state             engineState
	moduleAddress     crypto.Address
	collateralAddress crypto.Address
	config            Config
	oracle            PriceOracle
	rewarder          RewardSink
	emitter           events.Emitter
	telemetry         *metrics.LendingMetrics
	pauses            nativecommon.PauseView
	timestamp         uint64
}

// NewEngine constructs a lending engine with the module's quote and
// collateral custody addresses and the supplied configuration.
func NewEngine(moduleAddr, collateralAddr crypto.Address, cfg Config) *Engine {
	cfg.EnsureDefaults()
	return &Engine{
		moduleAddress:     moduleAddr,
		collateralAddress: collateralAddr,
		config:            cfg,
		emitter:           events.NoopEmitter{},
		rewarder:          NoopRewardSink{},
		telemetry:         metrics.Lending(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price oracle collaborator.
func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetPauses wires the hosting environment's pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRewarder configures the reward sink collaborator. Passing nil resets to
// a no-op.
func (e *Engine) SetRewarder(sink RewardSink) {
	if e == nil {
		return
	}
	if sink == nil {
		e.rewarder = NoopRewardSink{}
		return
	}
	e.rewarder = sink
}

// SetTimestamp records the host-fed unix time used for interest accrual and
// reward eligibility. Hosts set it once per operation batch.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil {
		return
	}
	e.timestamp = ts
}

// Borrow draws quote liquidity against a position's collateral. Accrued
// interest is capitalised into principal and the accrual clock restarts.
func (e *Engine) Borrow(owner crypto.Address, positionID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	position, err := e.getActivePosition(owner, positionID)
	if err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}

	available := new(big.Int).Sub(market.TotalSuppliedLiquidity, market.TotalBorrow)
	if available.Sign() < 0 {
		available = big.NewInt(0)
	}
	if amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: available %s", ErrInsufficientLiquidity, available)
	}

	tier, err := e.effectiveTier(position)
	if err != nil {
		return err
	}
	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return err
	}
	newPrincipal := new(big.Int).Add(debtWith, amount)

	if position.IsIsolated {
		if len(position.Assets) == 0 {
			return ErrNoIsolatedCollateral
		}
		balance, err := e.collateral(owner, positionID, position.Assets[0])
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrNoIsolatedCollateral
		}
		cfg, err := e.assetConfig(position.Assets[0])
		if err != nil {
			return err
		}
		if cfg.IsolationDebtCap != nil && cfg.IsolationDebtCap.Sign() > 0 &&
			newPrincipal.Cmp(cfg.IsolationDebtCap) > 0 {
			return fmt.Errorf("%w: cap %s", ErrIsolationDebtCapExceeded, cfg.IsolationDebtCap)
		}
	}

	valuation, err := e.valuePosition(position, nil)
	if err != nil {
		return err
	}
	if newPrincipal.Cmp(valuation.creditLimit) > 0 {
		return fmt.Errorf("%w: credit limit %s", ErrExceedsCreditLimit, valuation.creditLimit)
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceQuote.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s", ErrInsufficientLiquidity, moduleAcc.BalanceQuote)
	}
	borrowerAcc, err := e.loadAccount(owner)
	if err != nil {
		return err
	}

	moduleAcc.BalanceQuote = new(big.Int).Sub(moduleAcc.BalanceQuote, amount)
	borrowerAcc.BalanceQuote = new(big.Int).Add(borrowerAcc.BalanceQuote, amount)

	principalDelta := new(big.Int).Sub(newPrincipal, position.Debt)
	position.Debt = newPrincipal
	position.LastAccrual = e.timestamp
	market.TotalBorrow = new(big.Int).Add(market.TotalBorrow, principalDelta)
	market.TotalBase = new(big.Int).Sub(market.TotalBase, amount)

	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.persistAccount(owner, borrowerAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	if e.telemetry != nil {
		e.telemetry.IncBorrow(tier.String())
	}
	e.emitter.Emit(LoanCreated{Owner: owner, PositionID: positionID, Amount: new(big.Int).Set(amount)})
	return nil
}

// Repay pays down a position's debt. The accepted amount is clamped to the
// full debt with interest; the interest portion feeds the cumulative
// borrower-interest counter and the remainder reduces principal.
func (e *Engine) Repay(owner crypto.Address, positionID uint64, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	position, err := e.getActivePosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}

	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return nil, err
	}
	if debtWith.Sign() == 0 {
		return nil, ErrNoDebtToRepay
	}

	payment := new(big.Int).Set(amount)
	if payment.Cmp(debtWith) > 0 {
		payment = new(big.Int).Set(debtWith)
	}

	payerAcc, err := e.loadAccount(owner)
	if err != nil {
		return nil, err
	}
	if payerAcc.BalanceQuote.Cmp(payment) < 0 {
		return nil, fmt.Errorf("%w: have %s need %s", ErrInsufficientTokenBalance, payerAcc.BalanceQuote, payment)
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}

	accrued := new(big.Int).Sub(debtWith, position.Debt)
	if accrued.Sign() < 0 {
		accrued = big.NewInt(0)
	}
	interestPaid := new(big.Int).Set(payment)
	if interestPaid.Cmp(accrued) > 0 {
		interestPaid = new(big.Int).Set(accrued)
	}

	payerAcc.BalanceQuote = new(big.Int).Sub(payerAcc.BalanceQuote, payment)
	moduleAcc.BalanceQuote = new(big.Int).Add(moduleAcc.BalanceQuote, payment)

	newPrincipal := new(big.Int).Sub(debtWith, payment)
	principalDelta := new(big.Int).Sub(newPrincipal, position.Debt)
	position.Debt = newPrincipal
	position.LastAccrual = e.timestamp

	market.TotalBorrow = new(big.Int).Add(market.TotalBorrow, principalDelta)
	if market.TotalBorrow.Sign() < 0 {
		market.TotalBorrow = big.NewInt(0)
	}
	market.TotalBase = new(big.Int).Add(market.TotalBase, payment)
	market.TotalBorrowerInterest = new(big.Int).Add(market.TotalBorrowerInterest, interestPaid)

	if err := e.persistAccount(owner, payerAcc); err != nil {
		return nil, err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}

	e.recordMarket(market)
	if e.telemetry != nil {
		e.telemetry.IncRepay()
	}
	e.emitter.Emit(LoanRepaid{Owner: owner, PositionID: positionID, Amount: payment, Interest: interestPaid})
	return payment, nil
}

// ExitPosition force-repays any outstanding debt from the owner, returns all
// collateral and closes the position.
func (e *Engine) ExitPosition(owner crypto.Address, positionID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	position, err := e.getActivePosition(owner, positionID)
	if err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}

	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return err
	}

	ownerAcc, err := e.loadAccount(owner)
	if err != nil {
		return err
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	custodyAcc, err := e.loadAccount(e.collateralAddress)
	if err != nil {
		return err
	}

	if debtWith.Sign() > 0 {
		if ownerAcc.BalanceQuote.Cmp(debtWith) < 0 {
			return fmt.Errorf("%w: have %s need %s", ErrInsufficientTokenBalance, ownerAcc.BalanceQuote, debtWith)
		}
		accrued := new(big.Int).Sub(debtWith, position.Debt)
		if accrued.Sign() < 0 {
			accrued = big.NewInt(0)
		}
		ownerAcc.BalanceQuote = new(big.Int).Sub(ownerAcc.BalanceQuote, debtWith)
		moduleAcc.BalanceQuote = new(big.Int).Add(moduleAcc.BalanceQuote, debtWith)
		market.TotalBorrow = new(big.Int).Sub(market.TotalBorrow, position.Debt)
		if market.TotalBorrow.Sign() < 0 {
			market.TotalBorrow = big.NewInt(0)
		}
		market.TotalBase = new(big.Int).Add(market.TotalBase, debtWith)
		market.TotalBorrowerInterest = new(big.Int).Add(market.TotalBorrowerInterest, accrued)
	}

	// Drain collateral over a snapshot so removal cannot skip entries.
	held := append([]crypto.Address(nil), position.Assets...)
	returned := make(map[string]*big.Int, len(held))
	for _, asset := range held {
		balance, err := e.collateral(owner, positionID, asset)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		key := assetKey(asset)
		custodyAcc.DebitToken(key, balance)
		ownerAcc.CreditToken(key, balance)
		market.addTVL(key, new(big.Int).Neg(balance))
		returned[key] = balance
	}

	position.Debt = big.NewInt(0)
	position.LastAccrual = e.timestamp
	position.Assets = nil
	position.Status = StatusClosed

	if err := e.persistAccount(owner, ownerAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.collateralAddress, custodyAcc); err != nil {
		return err
	}
	for _, asset := range held {
		if _, ok := returned[assetKey(asset)]; !ok {
			continue
		}
		if err := e.state.PutCollateral(owner, positionID, asset, big.NewInt(0)); err != nil {
			return err
		}
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	e.emitter.Emit(PositionClosed{Owner: owner, PositionID: positionID, DebtRepaid: debtWith})
	return nil
}

// Liquidate lets a sufficiently staked third party settle an unhealthy
// position. The liquidator pays the full debt with interest plus the tier's
// liquidation fee and receives every collateral holding in exchange.
func (e *Engine) Liquidate(liquidator, owner crypto.Address, positionID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	liquidatorAcc, err := e.loadAccount(liquidator)
	if err != nil {
		return err
	}
	if liquidatorAcc.Stake.Cmp(e.config.LiquidatorThreshold) < 0 {
		return fmt.Errorf("%w: need %s", ErrInsufficientGovTokens, e.config.LiquidatorThreshold)
	}

	position, err := e.getActivePosition(owner, positionID)
	if err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}

	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return err
	}
	healthFactor, err := e.healthFactor(position, market, debtWith)
	if err != nil {
		return err
	}
	if debtWith.Sign() == 0 || healthFactor.Cmp(wad) >= 0 {
		return fmt.Errorf("%w: health factor %s", ErrNotLiquidatable, healthFactor)
	}

	tier, err := e.effectiveTier(position)
	if err != nil {
		return err
	}
	fee := new(big.Int).Mul(debtWith, new(big.Int).SetUint64(e.config.LiquidationFee(tier)))
	fee.Quo(fee, rateScale)
	totalDue := new(big.Int).Add(debtWith, fee)

	if liquidatorAcc.BalanceQuote.Cmp(totalDue) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientTokenBalance, liquidatorAcc.BalanceQuote, totalDue)
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	custodyAcc, err := e.loadAccount(e.collateralAddress)
	if err != nil {
		return err
	}

	liquidatorAcc.BalanceQuote = new(big.Int).Sub(liquidatorAcc.BalanceQuote, totalDue)
	moduleAcc.BalanceQuote = new(big.Int).Add(moduleAcc.BalanceQuote, totalDue)

	accrued := new(big.Int).Sub(debtWith, position.Debt)
	if accrued.Sign() < 0 {
		accrued = big.NewInt(0)
	}
	market.TotalBorrow = new(big.Int).Sub(market.TotalBorrow, position.Debt)
	if market.TotalBorrow.Sign() < 0 {
		market.TotalBorrow = big.NewInt(0)
	}
	market.TotalBase = new(big.Int).Add(market.TotalBase, totalDue)
	market.TotalBorrowerInterest = new(big.Int).Add(market.TotalBorrowerInterest, accrued)

	// Sweep every collateral holding to the liquidator over a snapshot.
	held := append([]crypto.Address(nil), position.Assets...)
	seized := make(map[string]*big.Int, len(held))
	for _, asset := range held {
		balance, err := e.collateral(owner, positionID, asset)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		key := assetKey(asset)
		custodyAcc.DebitToken(key, balance)
		liquidatorAcc.CreditToken(key, balance)
		market.addTVL(key, new(big.Int).Neg(balance))
		seized[key] = balance
	}

	position.Debt = big.NewInt(0)
	position.LastAccrual = e.timestamp
	position.IsIsolated = false
	position.Assets = nil
	position.Status = StatusLiquidated

	if err := e.persistAccount(liquidator, liquidatorAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.collateralAddress, custodyAcc); err != nil {
		return err
	}
	for _, asset := range held {
		if _, ok := seized[assetKey(asset)]; !ok {
			continue
		}
		if err := e.state.PutCollateral(owner, positionID, asset, big.NewInt(0)); err != nil {
			return err
		}
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	if e.telemetry != nil {
		e.telemetry.IncLiquidation(tier.String())
	}
	e.emitter.Emit(PositionLiquidated{
		Liquidator: liquidator,
		Owner:      owner,
		PositionID: positionID,
		DebtRepaid: debtWith,
		Fee:        fee,
	})
	return nil
}

// --- helpers ---

func (e *Engine) ensureMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.state.GetMarket()
	if err != nil {
		return nil, err
	}
	if market == nil {
		market = &Market{}
	}
	market.EnsureDefaults()
	return market, nil
}

func (e *Engine) assetConfig(asset crypto.Address) (*AssetConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.GetAssetConfig(asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotListed, asset.String())
	}
	return cfg, nil
}

func (e *Engine) getActivePosition(owner crypto.Address, id uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(owner, id)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, fmt.Errorf("%w: owner %s id %d", ErrInvalidPosition, owner.String(), id)
	}
	if position.Debt == nil {
		position.Debt = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) collateral(owner crypto.Address, id uint64, asset crypto.Address) (*big.Int, error) {
	balance, err := e.state.GetCollateral(owner, id, asset)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (e *Engine) persistAccount(addr crypto.Address, acc *types.Account) error {
	return e.state.PutAccount(addr, acc)
}

// recordMarket publishes the aggregate gauges after a successful mutation.
func (e *Engine) recordMarket(market *Market) {
	if e == nil || e.telemetry == nil || market == nil {
		return
	}
	e.telemetry.SetAggregates(
		bigToFloat(market.TotalBorrow),
		bigToFloat(market.TotalSuppliedLiquidity),
		bigToFloat(utilization(market))/1e18,
	)
}

func bigToFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
