package lending

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"lendfi/crypto"
)

// Isolated position with 100 units priced at $1000 and a 65.0% borrow
// threshold: the credit limit is exactly 65,000 quote units.
func TestCreditLimitWorkedExample(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)

	isolatedAsset := makeAddress(crypto.TokenPrefix, 0x05)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                isolatedAsset,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF5),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      650,
		LiquidationThreshold: 800,
		Tier:                 TierIsolated,
	}); err != nil {
		t.Fatalf("list asset: %v", err)
	}
	f.oracle.SetPrice(isolatedAsset, big.NewInt(1000), 0)
	f.state.accounts[f.state.key(f.owner)].CreditToken(assetKey(isolatedAsset), assetUnits(100))

	id, err := f.engine.CreatePosition(f.owner, isolatedAsset, true)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if err := f.engine.SupplyCollateral(f.owner, id, isolatedAsset, assetUnits(100)); err != nil {
		t.Fatalf("supply: %v", err)
	}

	credit, err := f.engine.CreditLimit(f.owner, id)
	if err != nil {
		t.Fatalf("credit limit: %v", err)
	}
	if credit.Cmp(quoteUnits(65_000)) != 0 {
		t.Fatalf("unexpected credit limit: got %s want %s", credit, quoteUnits(65_000))
	}

	value, err := f.engine.CollateralValue(f.owner, id)
	if err != nil {
		t.Fatalf("collateral value: %v", err)
	}
	wantValue := new(big.Int).Mul(big.NewInt(100_000), wad)
	if value.Cmp(wantValue) != 0 {
		t.Fatalf("unexpected collateral value: got %s want %s", value, wantValue)
	}

	// Borrowing one unit past the limit fails citing exactly that limit.
	err = f.engine.Borrow(f.owner, id, new(big.Int).Add(quoteUnits(65_000), big.NewInt(1)))
	if !errors.Is(err, ErrExceedsCreditLimit) {
		t.Fatalf("expected ErrExceedsCreditLimit, got %v", err)
	}
	if !strings.Contains(err.Error(), quoteUnits(65_000).String()) {
		t.Fatalf("expected credit limit in error, got %v", err)
	}
}

func TestHealthFactorSentinelWithoutDebt(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)

	hf, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if hf.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("expected sentinel health factor, got %s", hf)
	}

	liquidatable, err := f.engine.IsLiquidatable(f.owner, id)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liquidatable {
		t.Fatalf("debt-free position reported liquidatable")
	}

	// The sentinel holds regardless of price.
	f.oracle.SetPrice(f.asset, big.NewInt(1), 0)
	if liquidatable, err = f.engine.IsLiquidatable(f.owner, id); err != nil || liquidatable {
		t.Fatalf("sentinel not price-independent: liquidatable=%t err=%v", liquidatable, err)
	}
}

func TestHealthFactorMonotonicity(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)
	if err := f.engine.Borrow(f.owner, id, quoteUnits(50_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	baseline, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}

	// Price drop lowers the health factor.
	f.oracle.SetPrice(f.asset, big.NewInt(800), 0)
	dropped, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor after drop: %v", err)
	}
	if dropped.Cmp(baseline) >= 0 {
		t.Fatalf("health factor did not fall with price: %s -> %s", baseline, dropped)
	}

	// A collateral top-up raises it again, debt held fixed.
	if err := f.engine.SupplyCollateral(f.owner, id, f.asset, assetUnits(50)); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	topped, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor after top-up: %v", err)
	}
	if topped.Cmp(dropped) <= 0 {
		t.Fatalf("health factor did not rise with collateral: %s -> %s", dropped, topped)
	}
}

func TestSetTierIdempotentForValuation(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 100, false)
	if err := f.engine.Borrow(f.owner, id, quoteUnits(10_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	creditBefore, err := f.engine.CreditLimit(f.owner, id)
	if err != nil {
		t.Fatalf("credit limit: %v", err)
	}
	hfBefore, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}

	if err := f.engine.SetAssetTier(f.asset, TierCrossA); err != nil {
		t.Fatalf("set tier: %v", err)
	}

	creditAfter, err := f.engine.CreditLimit(f.owner, id)
	if err != nil {
		t.Fatalf("credit limit: %v", err)
	}
	hfAfter, err := f.engine.HealthFactor(f.owner, id)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if creditBefore.Cmp(creditAfter) != 0 || hfBefore.Cmp(hfAfter) != 0 {
		t.Fatalf("same-tier update changed numbers: credit %s->%s hf %s->%s",
			creditBefore, creditAfter, hfBefore, hfAfter)
	}
}

func TestHighestTierAcrossAssets(t *testing.T) {
	f := newLendingFixture(t, TierStable)
	id := f.createFundedPosition(t, 10, false)

	tier, err := f.engine.HighestTier(f.owner, id)
	if err != nil {
		t.Fatalf("highest tier: %v", err)
	}
	if tier != TierStable {
		t.Fatalf("expected stable tier, got %s", tier)
	}

	riskier := makeAddress(crypto.TokenPrefix, 0x06)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                riskier,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF6),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      400,
		LiquidationThreshold: 500,
		Tier:                 TierCrossB,
	}); err != nil {
		t.Fatalf("list riskier asset: %v", err)
	}
	f.oracle.SetPrice(riskier, big.NewInt(10), 0)
	f.state.accounts[f.state.key(f.owner)].CreditToken(assetKey(riskier), assetUnits(5))
	if err := f.engine.SupplyCollateral(f.owner, id, riskier, assetUnits(5)); err != nil {
		t.Fatalf("supply riskier: %v", err)
	}

	tier, err = f.engine.HighestTier(f.owner, id)
	if err != nil {
		t.Fatalf("highest tier: %v", err)
	}
	if tier != TierCrossB {
		t.Fatalf("expected cross_b tier, got %s", tier)
	}
}

func TestValuationRequiresOraclePrice(t *testing.T) {
	f := newLendingFixture(t, TierCrossA)
	id := f.createFundedPosition(t, 10, false)

	unpriced := makeAddress(crypto.TokenPrefix, 0x07)
	if err := f.engine.UpsertAssetConfig(AssetConfig{
		Asset:                unpriced,
		Oracle:               makeAddress(crypto.TokenPrefix, 0xF7),
		Decimals:             18,
		Active:               true,
		BorrowThreshold:      500,
		LiquidationThreshold: 600,
		Tier:                 TierStable,
	}); err != nil {
		t.Fatalf("list unpriced asset: %v", err)
	}
	f.state.accounts[f.state.key(f.owner)].CreditToken(assetKey(unpriced), assetUnits(1))
	if err := f.engine.SupplyCollateral(f.owner, id, unpriced, assetUnits(1)); err != nil {
		t.Fatalf("supply unpriced: %v", err)
	}

	if _, err := f.engine.CreditLimit(f.owner, id); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}
