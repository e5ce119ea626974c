package lending

import (
	"errors"
	"math/big"
	"testing"

	"lendfi/crypto"
)

func TestSupplyWithdrawRoundTrip(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)

	if err := f.engine.WithdrawCollateral(f.owner, id, f.asset, assetUnits(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	position := f.state.positions[f.state.positionKey(f.owner, id)]
	if len(position.Assets) != 0 {
		t.Fatalf("expected asset removed at zero balance, got %d entries", len(position.Assets))
	}
	ownerAcc := f.state.accounts[f.state.key(f.owner)]
	if ownerAcc.TokenBalance(assetKey(f.asset)).Cmp(assetUnits(1_000)) != 0 {
		t.Fatalf("unexpected owner balance: %s", ownerAcc.TokenBalance(assetKey(f.asset)))
	}
	if f.state.market.tvl(assetKey(f.asset)).Sign() != 0 {
		t.Fatalf("expected tvl drained, got %s", f.state.market.tvl(assetKey(f.asset)))
	}
}

func TestSupplyCapExceeded(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	cfg, err := f.engine.GetAssetConfig(f.asset)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	cfg.MaxSupplyThreshold = assetUnits(50)
	if err := f.engine.UpsertAssetConfig(*cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}

	id, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if err := f.engine.SupplyCollateral(f.owner, id, f.asset, assetUnits(50)); err != nil {
		t.Fatalf("supply at cap: %v", err)
	}
	err = f.engine.SupplyCollateral(f.owner, id, f.asset, big.NewInt(1))
	if !errors.Is(err, ErrSupplyCapExceeded) {
		t.Fatalf("expected ErrSupplyCapExceeded, got %v", err)
	}
}

func TestSupplyDisabledAsset(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	cfg, err := f.engine.GetAssetConfig(f.asset)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	cfg.Active = false
	if err := f.engine.UpsertAssetConfig(*cfg); err != nil {
		t.Fatalf("disable asset: %v", err)
	}

	err = f.engine.SupplyCollateral(f.owner, id, f.asset, assetUnits(1))
	if !errors.Is(err, ErrAssetDisabled) {
		t.Fatalf("expected ErrAssetDisabled, got %v", err)
	}
}

func TestIsolationModeRules(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)

	isolatedAsset := makeAddress(crypto.TokenPrefix, 0x02)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                isolatedAsset,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF1),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      300,
		LiquidationThreshold: 400,
		Tier:                 TierIsolated,
	}); err != nil {
		t.Fatalf("list isolated asset: %v", err)
	}
	f.oracle.SetPrice(isolatedAsset, big.NewInt(5), 0)
	f.state.accounts[f.state.key(f.owner)].CreditToken(assetKey(isolatedAsset), assetUnits(500))

	// An isolated-tier asset cannot enter a cross position.
	crossID, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create cross position: %v", err)
	}
	err = f.engine.SupplyCollateral(f.owner, crossID, isolatedAsset, assetUnits(10))
	if !errors.Is(err, ErrIsolationModeRequired) {
		t.Fatalf("expected ErrIsolationModeRequired, got %v", err)
	}

	// An isolated position accepts only its designated asset.
	isoID, err := f.engine.CreatePosition(f.owner, isolatedAsset, true)
	if err != nil {
		t.Fatalf("create isolated position: %v", err)
	}
	err = f.engine.SupplyCollateral(f.owner, isoID, f.asset, assetUnits(1))
	if !errors.Is(err, ErrInvalidPositionAsset) {
		t.Fatalf("expected ErrInvalidPositionAsset, got %v", err)
	}
	if err := f.engine.SupplyCollateral(f.owner, isoID, isolatedAsset, assetUnits(100)); err != nil {
		t.Fatalf("supply designated asset: %v", err)
	}
}

func TestIsolatedBorrowRules(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)

	isolatedAsset := makeAddress(crypto.TokenPrefix, 0x03)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                isolatedAsset,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF2),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      650,
		LiquidationThreshold: 800,
		Tier:                 TierIsolated,
		IsolationDebtCap:     quoteUnits(5_000),
	}); err != nil {
		t.Fatalf("list isolated asset: %v", err)
	}
	f.oracle.SetPrice(isolatedAsset, big.NewInt(1000), 0)
	f.state.accounts[f.state.key(f.owner)].CreditToken(assetKey(isolatedAsset), assetUnits(100))

	id, err := f.engine.CreatePosition(f.owner, isolatedAsset, true)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	// No collateral funded yet.
	if err := f.engine.Borrow(f.owner, id, quoteUnits(100)); !errors.Is(err, ErrNoIsolatedCollateral) {
		t.Fatalf("expected ErrNoIsolatedCollateral, got %v", err)
	}

	if err := f.engine.SupplyCollateral(f.owner, id, isolatedAsset, assetUnits(100)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	err = f.engine.Borrow(f.owner, id, new(big.Int).Add(quoteUnits(5_000), big.NewInt(1)))
	if !errors.Is(err, ErrIsolationDebtCapExceeded) {
		t.Fatalf("expected ErrIsolationDebtCapExceeded, got %v", err)
	}
	if err := f.engine.Borrow(f.owner, id, quoteUnits(5_000)); err != nil {
		t.Fatalf("borrow within cap: %v", err)
	}
}

func TestWithdrawProtectsDebt(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)

	// 100 units at $1000 with threshold 650 back a 65k credit limit.
	if err := f.engine.Borrow(f.owner, id, quoteUnits(60_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	balanceBefore := f.state.collateral[f.state.collateralMapKey(f.owner, id, f.asset)]
	err := f.engine.WithdrawCollateral(f.owner, id, f.asset, assetUnits(50))
	if !errors.Is(err, ErrWithdrawalExceedsCreditLimit) {
		t.Fatalf("expected ErrWithdrawalExceedsCreditLimit, got %v", err)
	}
	balanceAfter := f.state.collateral[f.state.collateralMapKey(f.owner, id, f.asset)]
	if balanceBefore.Cmp(balanceAfter) != 0 {
		t.Fatalf("rejected withdrawal mutated balance: before=%s after=%s", balanceBefore, balanceAfter)
	}

	// Withdrawing what the debt does not need is fine: 93 units keep the
	// credit limit at 60,450 which still covers the 60k principal.
	if err := f.engine.WithdrawCollateral(f.owner, id, f.asset, assetUnits(7)); err != nil {
		t.Fatalf("withdraw within limit: %v", err)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 10, false)

	err := f.engine.WithdrawCollateral(f.owner, id, f.asset, assetUnits(11))
	if !errors.Is(err, ErrInsufficientCollateralBalance) {
		t.Fatalf("expected ErrInsufficientCollateralBalance, got %v", err)
	}
}

func TestTooManyAssets(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	ownerAcc := f.state.accounts[f.state.key(f.owner)]
	for i := 0; i < maxPositionAssets; i++ {
		asset := makeAddress(crypto.TokenPrefix, byte(0x40+i))
		if err := f.engine.UpsertAssetConfig(AssetConfig{
			Asset:                asset,
			Oracle:               makeAddress(crypto.TokenPrefix, 0xF3),
			Decimals:             18,
			Active:               true,
			BorrowThreshold:      500,
			LiquidationThreshold: 600,
			Tier:                 TierStable,
		}); err != nil {
			t.Fatalf("list asset %d: %v", i, err)
		}
		f.oracle.SetPrice(asset, big.NewInt(1), 0)
		ownerAcc.CreditToken(assetKey(asset), assetUnits(1))
		if err := f.engine.SupplyCollateral(f.owner, id, asset, assetUnits(1)); err != nil {
			t.Fatalf("supply asset %d: %v", i, err)
		}
	}

	err = f.engine.SupplyCollateral(f.owner, id, f.asset, assetUnits(1))
	if !errors.Is(err, ErrTooManyAssets) {
		t.Fatalf("expected ErrTooManyAssets, got %v", err)
	}
}

func TestInterpositionalTransfer(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	fromID := f.createFundedPosition(t, 100, false)
	toID, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	custodyBefore := f.state.accounts[f.state.key(f.engine.collateralAddress)].TokenBalance(assetKey(f.asset))
	if err := f.engine.InterpositionalTransfer(f.owner, fromID, toID, f.asset, assetUnits(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	fromBalance := f.state.collateral[f.state.collateralMapKey(f.owner, fromID, f.asset)]
	toBalance := f.state.collateral[f.state.collateralMapKey(f.owner, toID, f.asset)]
	if fromBalance.Cmp(assetUnits(60)) != 0 || toBalance.Cmp(assetUnits(40)) != 0 {
		t.Fatalf("unexpected balances: from=%s to=%s", fromBalance, toBalance)
	}
	custodyAfter := f.state.accounts[f.state.key(f.engine.collateralAddress)].TokenBalance(assetKey(f.asset))
	if custodyBefore.Cmp(custodyAfter) != 0 {
		t.Fatalf("custody balance changed: before=%s after=%s", custodyBefore, custodyAfter)
	}
	if f.emitter.lastType() != TypeCollateralTransferred {
		t.Fatalf("expected transfer event, got %s", f.emitter.lastType())
	}
}

func TestInterpositionalTransferGuards(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	fromID := f.createFundedPosition(t, 100, false)

	if err := f.engine.InterpositionalTransfer(f.owner, fromID, fromID, f.asset, assetUnits(1)); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition for same-position transfer, got %v", err)
	}

	isolatedAsset := makeAddress(crypto.TokenPrefix, 0x04)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                isolatedAsset,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF4),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      300,
		LiquidationThreshold: 400,
		Tier:                 TierIsolated,
	}); err != nil {
		t.Fatalf("list isolated asset: %v", err)
	}
	isoID, err := f.engine.CreatePosition(f.owner, isolatedAsset, true)
	if err != nil {
		t.Fatalf("create isolated: %v", err)
	}
	err = f.engine.InterpositionalTransfer(f.owner, fromID, isoID, f.asset, assetUnits(1))
	if !errors.Is(err, ErrIsolationModeForbidden) {
		t.Fatalf("expected ErrIsolationModeForbidden, got %v", err)
	}

	// The source must remain adequately collateralized.
	if err := f.engine.Borrow(f.owner, fromID, quoteUnits(60_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	toID, err := f.engine.CreatePosition(f.owner, f.asset, false)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	err = f.engine.InterpositionalTransfer(f.owner, fromID, toID, f.asset, assetUnits(50))
	if !errors.Is(err, ErrWithdrawalExceedsCreditLimit) {
		t.Fatalf("expected ErrWithdrawalExceedsCreditLimit, got %v", err)
	}
}
