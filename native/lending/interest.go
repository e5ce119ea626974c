package lending

import (
	"math/big"

	"lendfi/crypto"
)

// utilization returns totalBorrow / totalSuppliedLiquidity in WAD. Zero
// supply reads as zero utilisation; a fully borrowed pool yields exactly one
// WAD.
func utilization(market *Market) *big.Int {
	if market == nil || market.TotalSuppliedLiquidity == nil || market.TotalSuppliedLiquidity.Sign() == 0 {
		return big.NewInt(0)
	}
	if market.TotalBorrow == nil || market.TotalBorrow.Sign() == 0 {
		return big.NewInt(0)
	}
	u := new(big.Int).Mul(market.TotalBorrow, wad)
	return u.Quo(u, market.TotalSuppliedLiquidity)
}

// supplyRate returns the annual rate (1e6 scale) currently earned by
// liquidity providers: the custody pool's assets net of the protocol profit
// target, annualised over supplied liquidity. Zero when nothing is supplied
// or the pool has not outearned its target.
func (e *Engine) supplyRate(market *Market) *big.Int {
	if market == nil || market.TotalSuppliedLiquidity == nil || market.TotalSuppliedLiquidity.Sign() == 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Add(market.TotalBase, market.TotalBorrow)
	target := new(big.Int).Mul(market.TotalBorrow, new(big.Int).SetUint64(e.config.BaseProfitTargetMicros))
	target.Quo(target, rateScale)
	net := new(big.Int).Sub(total, target)
	if net.Cmp(market.TotalSuppliedLiquidity) <= 0 {
		return big.NewInt(0)
	}
	rate := new(big.Int).Sub(net, market.TotalSuppliedLiquidity)
	rate.Mul(rate, rateScale)
	return rate.Quo(rate, market.TotalSuppliedLiquidity)
}

// borrowRate derives the annual borrow rate (1e6 scale) for a tier. At zero
// utilisation the base borrow rate applies. Otherwise the rate floors at the
// break-even of the current supply rate plus the protocol profit target, and
// the tier's jump rate scales with system-wide utilisation on top.
func (e *Engine) borrowRate(market *Market, tier CollateralTier) *big.Int {
	base := new(big.Int).SetUint64(e.config.BaseBorrowRateMicros)
	util := utilization(market)
	if util.Sign() == 0 {
		return base
	}

	supplyInterest := getInterest(
		market.TotalSuppliedLiquidity,
		annualRateToRay(e.supplyRate(market)),
		secondsPerYear,
	)
	rate := breakEvenRate(market.TotalSuppliedLiquidity, supplyInterest)
	rate.Add(rate, new(big.Int).SetUint64(e.config.BaseProfitTargetMicros))
	if rate.Cmp(base) < 0 {
		rate = base
	}

	premium := new(big.Int).Mul(new(big.Int).SetUint64(e.config.JumpRate(tier)), util)
	premium.Quo(premium, wad)
	return rate.Add(rate, premium)
}

// effectiveTier resolves the tier that prices a position's debt: the sole
// asset's tier for isolated positions, the riskiest funded asset otherwise.
func (e *Engine) effectiveTier(position *Position) (CollateralTier, error) {
	if position == nil {
		return TierStable, ErrInvalidPosition
	}
	if position.IsIsolated {
		if len(position.Assets) == 0 {
			return TierIsolated, nil
		}
		cfg, err := e.assetConfig(position.Assets[0])
		if err != nil {
			return TierStable, err
		}
		return cfg.Tier, nil
	}
	highest := TierStable
	for _, asset := range position.Assets {
		balance, err := e.collateral(position.Owner, position.ID, asset)
		if err != nil {
			return TierStable, err
		}
		if balance.Sign() == 0 {
			continue
		}
		cfg, err := e.assetConfig(asset)
		if err != nil {
			return TierStable, err
		}
		if cfg.Tier > highest {
			highest = cfg.Tier
		}
	}
	return highest, nil
}

// debtWithInterest compounds the position's principal continuously at the
// effective tier's borrow rate since the last accrual.
func (e *Engine) debtWithInterest(position *Position, market *Market) (*big.Int, error) {
	if position == nil || position.Debt == nil || position.Debt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	tier, err := e.effectiveTier(position)
	if err != nil {
		return nil, err
	}
	var elapsed uint64
	if e.timestamp > position.LastAccrual {
		elapsed = e.timestamp - position.LastAccrual
	}
	rateRay := annualRateToRay(e.borrowRate(market, tier))
	return accrueInterest(position.Debt, rateRay, elapsed), nil
}

// Utilization reports the current pool utilisation in WAD.
func (e *Engine) Utilization() (*big.Int, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return utilization(market), nil
}

// SupplyRate reports the current annual supply rate in the 1e6 scale.
func (e *Engine) SupplyRate() (*big.Int, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return e.supplyRate(market), nil
}

// BorrowRate reports the current annual borrow rate for a tier in the 1e6
// scale.
func (e *Engine) BorrowRate(tier CollateralTier) (*big.Int, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return e.borrowRate(market, tier), nil
}

// DebtWithInterest reports a position's debt including accrued interest.
func (e *Engine) DebtWithInterest(owner crypto.Address, positionID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrInvalidPosition
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return e.debtWithInterest(position, market)
}
