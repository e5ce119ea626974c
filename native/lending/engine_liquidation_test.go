package lending

import (
	"errors"
	"math/big"
	"testing"

	"lendfi/core/types"
	"lendfi/crypto"
)

func (f *lendingFixture) addLiquidator(t *testing.T, stake *big.Int) crypto.Address {
	t.Helper()
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)
	f.state.accounts[f.state.key(liquidator)] = &types.Account{
		BalanceQuote: quoteUnits(500_000),
		Stake:        stake,
	}
	return liquidator
}

func TestLiquidateRequiresStake(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)
	liquidator := f.addLiquidator(t, big.NewInt(0))

	err := f.engine.Liquidate(liquidator, f.owner, id)
	if !errors.Is(err, ErrInsufficientGovTokens) {
		t.Fatalf("expected ErrInsufficientGovTokens, got %v", err)
	}
}

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)
	liquidator := f.addLiquidator(t, DefaultConfig().LiquidatorThreshold)

	if err := f.engine.Borrow(f.owner, id, quoteUnits(50_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 100 units at $1000 with an 80.0% liquidation threshold back the debt
	// comfortably: health factor 1.6.
	err := f.engine.Liquidate(liquidator, f.owner, id)
	if !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestLiquidateSweepsCollateralAndChargesFee(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)
	liquidator := f.addLiquidator(t, DefaultConfig().LiquidatorThreshold)

	if err := f.engine.Borrow(f.owner, id, quoteUnits(60_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Collapse the price so the health factor drops below one:
	// liquidation value 100*700*0.8 = 56,000 against 60,000 of debt.
	f.oracle.SetPrice(f.asset, big.NewInt(700), 0)
	liquidatable, err := f.engine.IsLiquidatable(f.owner, id)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if !liquidatable {
		t.Fatalf("expected position liquidatable after price drop")
	}

	balanceBefore := f.state.accounts[f.state.key(liquidator)].BalanceQuote
	if err := f.engine.Liquidate(liquidator, f.owner, id); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Same-timestamp liquidation: debt is the raw principal, fee is the
	// cross_a table's 2.0% of it.
	debt := quoteUnits(60_000)
	fee := new(big.Int).Quo(new(big.Int).Mul(debt, big.NewInt(20_000)), rateScale)
	wantPaid := new(big.Int).Add(debt, fee)

	liquidatorAcc := f.state.accounts[f.state.key(liquidator)]
	paid := new(big.Int).Sub(balanceBefore, liquidatorAcc.BalanceQuote)
	if paid.Cmp(wantPaid) != 0 {
		t.Fatalf("unexpected amount paid: got %s want %s", paid, wantPaid)
	}
	if liquidatorAcc.TokenBalance(assetKey(f.asset)).Cmp(assetUnits(100)) != 0 {
		t.Fatalf("collateral not swept: %s", liquidatorAcc.TokenBalance(assetKey(f.asset)))
	}

	position := f.state.positions[f.state.positionKey(f.owner, id)]
	if position.Status != StatusLiquidated {
		t.Fatalf("expected liquidated status, got %v", position.Status)
	}
	if position.IsIsolated || len(position.Assets) != 0 || position.Debt.Sign() != 0 {
		t.Fatalf("position not reset: isolated=%t assets=%d debt=%s",
			position.IsIsolated, len(position.Assets), position.Debt)
	}
	if f.state.market.TotalBorrow.Sign() != 0 {
		t.Fatalf("total borrow not cleared: %s", f.state.market.TotalBorrow)
	}
	if f.state.market.tvl(assetKey(f.asset)).Sign() != 0 {
		t.Fatalf("tvl not cleared: %s", f.state.market.tvl(assetKey(f.asset)))
	}
	if f.emitter.lastType() != TypePositionLiquidated {
		t.Fatalf("expected liquidation event, got %s", f.emitter.lastType())
	}

	// Terminal: the liquidated position rejects further operations.
	if err := f.engine.Borrow(f.owner, id, quoteUnits(1)); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}
