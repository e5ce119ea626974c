package lending

import (
	"fmt"
	"math/big"

	"lendfi/crypto"
	nativecommon "lendfi/native/common"
)

// CreatePosition appends a new active position for the owner. Position ids
// are sequential per owner and never reused; isolated positions are bound to
// their initial asset from the start.
func (e *Engine) CreatePosition(owner, initialAsset crypto.Address, isolated bool) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if _, err := e.assetConfig(initialAsset); err != nil {
		return 0, err
	}

	id, err := e.state.PositionCount(owner)
	if err != nil {
		return 0, err
	}
	position := &Position{
		Owner:       owner,
		ID:          id,
		IsIsolated:  isolated,
		Status:      StatusActive,
		Debt:        big.NewInt(0),
		LastAccrual: e.timestamp,
	}
	if isolated {
		position.Assets = []crypto.Address{initialAsset}
	}
	if err := e.state.PutPosition(position); err != nil {
		return 0, err
	}

	e.emitter.Emit(PositionCreated{Owner: owner, PositionID: id, Isolated: isolated})
	return id, nil
}

// SupplyCollateral locks collateral tokens from the owner into the
// position's custody.
func (e *Engine) SupplyCollateral(owner crypto.Address, positionID uint64, asset crypto.Address, amount *big.Int) error {
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
	cfg, err := e.assetConfig(asset)
	if err != nil {
		return err
	}
	if !cfg.Active {
		return fmt.Errorf("%w: %s", ErrAssetDisabled, asset.String())
	}
	if cfg.Tier == TierIsolated && !position.IsIsolated {
		return fmt.Errorf("%w: %s", ErrIsolationModeRequired, asset.String())
	}
	if position.IsIsolated && len(position.Assets) > 0 && assetKey(position.Assets[0]) != assetKey(asset) {
		return fmt.Errorf("%w: position holds %s", ErrInvalidPositionAsset, position.Assets[0].String())
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	key := assetKey(asset)
	if cfg.MaxSupplyThreshold != nil && cfg.MaxSupplyThreshold.Sign() > 0 {
		projected := new(big.Int).Add(market.tvl(key), amount)
		if projected.Cmp(cfg.MaxSupplyThreshold) > 0 {
			return fmt.Errorf("%w: cap %s", ErrSupplyCapExceeded, cfg.MaxSupplyThreshold)
		}
	}
	if err := position.addAsset(asset); err != nil {
		return err
	}

	ownerAcc, err := e.loadAccount(owner)
	if err != nil {
		return err
	}
	if ownerAcc.TokenBalance(key).Cmp(amount) < 0 {
		return fmt.Errorf("%w: asset %s", ErrInsufficientTokenBalance, asset.String())
	}
	custodyAcc, err := e.loadAccount(e.collateralAddress)
	if err != nil {
		return err
	}

	ownerAcc.DebitToken(key, amount)
	custodyAcc.CreditToken(key, amount)

	balance, err := e.collateral(owner, positionID, asset)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	market.addTVL(key, amount)

	if err := e.persistAccount(owner, ownerAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.collateralAddress, custodyAcc); err != nil {
		return err
	}
	if err := e.state.PutCollateral(owner, positionID, asset, balance); err != nil {
		return err
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	e.emitter.Emit(CollateralSupplied{Owner: owner, PositionID: positionID, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawCollateral releases collateral back to the owner. The decrement
// and the credit re-check form one indivisible step: the tentative balance
// is validated against outstanding debt before anything is persisted.
func (e *Engine) WithdrawCollateral(owner crypto.Address, positionID uint64, asset crypto.Address, amount *big.Int) error {
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
	balance, err := e.collateral(owner, positionID, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientCollateralBalance, balance, amount)
	}
	remaining := new(big.Int).Sub(balance, amount)

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return err
	}
	if debtWith.Sign() > 0 {
		valuation, err := e.valuePosition(position, &collateralOverride{asset: asset, amount: remaining})
		if err != nil {
			return err
		}
		if debtWith.Cmp(valuation.creditLimit) > 0 {
			return fmt.Errorf("%w: credit limit %s debt %s",
				ErrWithdrawalExceedsCreditLimit, valuation.creditLimit, debtWith)
		}
	}

	custodyAcc, err := e.loadAccount(e.collateralAddress)
	if err != nil {
		return err
	}
	ownerAcc, err := e.loadAccount(owner)
	if err != nil {
		return err
	}

	key := assetKey(asset)
	custodyAcc.DebitToken(key, amount)
	ownerAcc.CreditToken(key, amount)
	market.addTVL(key, new(big.Int).Neg(amount))

	if remaining.Sign() == 0 && !position.IsIsolated {
		position.removeAsset(asset)
	}

	if err := e.persistAccount(e.collateralAddress, custodyAcc); err != nil {
		return err
	}
	if err := e.persistAccount(owner, ownerAcc); err != nil {
		return err
	}
	if err := e.state.PutCollateral(owner, positionID, asset, remaining); err != nil {
		return err
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}

	e.recordMarket(market)
	e.emitter.Emit(CollateralWithdrawn{Owner: owner, PositionID: positionID, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

// InterpositionalTransfer moves collateral between two of the owner's
// positions without leaving custody. Isolated positions cannot take part,
// and the source must remain adequately collateralized afterwards.
func (e *Engine) InterpositionalTransfer(owner crypto.Address, fromID, toID uint64, asset crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if fromID == toID {
		return fmt.Errorf("%w: transfer within position %d", ErrInvalidPosition, fromID)
	}

	source, err := e.getActivePosition(owner, fromID)
	if err != nil {
		return err
	}
	target, err := e.getActivePosition(owner, toID)
	if err != nil {
		return err
	}
	if source.IsIsolated || target.IsIsolated {
		return ErrIsolationModeForbidden
	}
	if _, err := e.assetConfig(asset); err != nil {
		return err
	}

	sourceBalance, err := e.collateral(owner, fromID, asset)
	if err != nil {
		return err
	}
	if sourceBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientCollateralBalance, sourceBalance, amount)
	}
	remaining := new(big.Int).Sub(sourceBalance, amount)

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	debtWith, err := e.debtWithInterest(source, market)
	if err != nil {
		return err
	}
	if debtWith.Sign() > 0 {
		valuation, err := e.valuePosition(source, &collateralOverride{asset: asset, amount: remaining})
		if err != nil {
			return err
		}
		if debtWith.Cmp(valuation.creditLimit) > 0 {
			return fmt.Errorf("%w: credit limit %s debt %s",
				ErrWithdrawalExceedsCreditLimit, valuation.creditLimit, debtWith)
		}
	}

	if err := target.addAsset(asset); err != nil {
		return err
	}
	targetBalance, err := e.collateral(owner, toID, asset)
	if err != nil {
		return err
	}
	targetBalance.Add(targetBalance, amount)

	if remaining.Sign() == 0 {
		source.removeAsset(asset)
	}

	if err := e.state.PutCollateral(owner, fromID, asset, remaining); err != nil {
		return err
	}
	if err := e.state.PutCollateral(owner, toID, asset, targetBalance); err != nil {
		return err
	}
	if err := e.state.PutPosition(source); err != nil {
		return err
	}
	if err := e.state.PutPosition(target); err != nil {
		return err
	}

	e.emitter.Emit(CollateralTransferred{
		Owner:  owner,
		FromID: fromID,
		ToID:   toID,
		Asset:  asset,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}
