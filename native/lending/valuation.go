package lending

import (
	"fmt"
	"math/big"

	"lendfi/crypto"
)

// collateralOverride substitutes a tentative balance for one asset during
// valuation, which lets withdraw and transfer validate their post-mutation
// state before anything is persisted.
type collateralOverride struct {
	asset  crypto.Address
	amount *big.Int
}

// positionValuation carries the three weighted sums a single oracle pass
// produces: the raw USD value in WAD, and the borrow- and
// liquidation-threshold weighted values in quote base units.
type positionValuation struct {
	value            *big.Int
	creditLimit      *big.Int
	liquidationValue *big.Int
}

// valuePosition prices every funded collateral holding with a fresh oracle
// quote. Per asset: value = amount*price / 10^(assetDecimals+oracleDecimals)
// scaled to WAD; the credit and liquidation terms weight the same product by
// the asset's thresholds (thousandths) and express it in quote base units.
func (e *Engine) valuePosition(position *Position, override *collateralOverride) (*positionValuation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}
	valuation := &positionValuation{
		value:            big.NewInt(0),
		creditLimit:      big.NewInt(0),
		liquidationValue: big.NewInt(0),
	}
	if position == nil {
		return valuation, nil
	}
	quoteUnit := pow10(e.config.QuoteDecimals)
	for _, asset := range position.Assets {
		amount, err := e.collateral(position.Owner, position.ID, asset)
		if err != nil {
			return nil, err
		}
		if override != nil && assetKey(asset) == assetKey(override.asset) {
			amount = new(big.Int).Set(override.amount)
		}
		if amount.Sign() == 0 {
			continue
		}
		cfg, err := e.assetConfig(asset)
		if err != nil {
			return nil, err
		}
		price, priceDecimals, err := e.oracle.Price(asset)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, asset.String(), err)
		}
		scale := pow10(cfg.Decimals + priceDecimals)

		product := new(big.Int).Mul(amount, price)

		value := new(big.Int).Mul(product, wad)
		value.Quo(value, scale)
		valuation.value.Add(valuation.value, value)

		credit := new(big.Int).Mul(product, new(big.Int).SetUint64(cfg.BorrowThreshold))
		credit.Mul(credit, quoteUnit)
		credit.Quo(credit, thresholdScale)
		credit.Quo(credit, scale)
		valuation.creditLimit.Add(valuation.creditLimit, credit)

		liq := new(big.Int).Mul(product, new(big.Int).SetUint64(cfg.LiquidationThreshold))
		liq.Mul(liq, quoteUnit)
		liq.Quo(liq, thresholdScale)
		liq.Quo(liq, scale)
		valuation.liquidationValue.Add(valuation.liquidationValue, liq)
	}
	return valuation, nil
}

// healthFactor returns the WAD-scaled ratio of liquidation-weighted
// collateral to debt. Debt-free positions report the maximal sentinel.
func (e *Engine) healthFactor(position *Position, market *Market, debtWith *big.Int) (*big.Int, error) {
	if debtWith == nil || debtWith.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	valuation, err := e.valuePosition(position, nil)
	if err != nil {
		return nil, err
	}
	hf := new(big.Int).Mul(valuation.liquidationValue, wad)
	return hf.Quo(hf, debtWith), nil
}

// CollateralValue reports the position's total collateral value in WAD.
func (e *Engine) CollateralValue(owner crypto.Address, positionID uint64) (*big.Int, error) {
	position, err := e.lookupPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	valuation, err := e.valuePosition(position, nil)
	if err != nil {
		return nil, err
	}
	return valuation.value, nil
}

// CreditLimit reports the maximum borrowable principal in quote base units.
func (e *Engine) CreditLimit(owner crypto.Address, positionID uint64) (*big.Int, error) {
	position, err := e.lookupPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	valuation, err := e.valuePosition(position, nil)
	if err != nil {
		return nil, err
	}
	return valuation.creditLimit, nil
}

// HealthFactor reports the WAD-scaled health factor of a position.
func (e *Engine) HealthFactor(owner crypto.Address, positionID uint64) (*big.Int, error) {
	position, err := e.lookupPosition(owner, positionID)
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
	return e.healthFactor(position, market, debtWith)
}

// IsLiquidatable reports whether the position can be liquidated: debt above
// zero and a health factor below one WAD.
func (e *Engine) IsLiquidatable(owner crypto.Address, positionID uint64) (bool, error) {
	position, err := e.lookupPosition(owner, positionID)
	if err != nil {
		return false, err
	}
	if position.Status != StatusActive {
		return false, nil
	}
	market, err := e.ensureMarket()
	if err != nil {
		return false, err
	}
	debtWith, err := e.debtWithInterest(position, market)
	if err != nil {
		return false, err
	}
	if debtWith.Sign() == 0 {
		return false, nil
	}
	hf, err := e.healthFactor(position, market, debtWith)
	if err != nil {
		return false, err
	}
	return hf.Cmp(wad) < 0, nil
}

// HighestTier reports the tier pricing the position's debt.
func (e *Engine) HighestTier(owner crypto.Address, positionID uint64) (CollateralTier, error) {
	position, err := e.lookupPosition(owner, positionID)
	if err != nil {
		return TierStable, err
	}
	return e.effectiveTier(position)
}

func (e *Engine) lookupPosition(owner crypto.Address, positionID uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, fmt.Errorf("%w: owner %s id %d", ErrInvalidPosition, owner.String(), positionID)
	}
	return position, nil
}
