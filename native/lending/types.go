package lending

import (
	"math/big"

	"lendfi/crypto"
)

// CollateralTier classifies collateral assets by risk. The ordering is total:
// a higher value is strictly riskier and selects a larger borrow-rate premium
// and liquidation fee from the tier tables.
type CollateralTier uint8

const (
	TierStable CollateralTier = iota
	TierCrossA
	TierCrossB
	TierIsolated
)

// String renders the tier name for events and telemetry labels.
func (t CollateralTier) String() string {
	switch t {
	case TierStable:
		return "stable"
	case TierCrossA:
		return "cross_a"
	case TierCrossB:
		return "cross_b"
	case TierIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}

// PositionStatus tracks the lifecycle state of a position. Liquidated and
// Closed are terminal; no mutating operation accepts a non-active position.
type PositionStatus uint8

const (
	StatusActive PositionStatus = iota
	StatusLiquidated
	StatusClosed
)

// maxPositionAssets caps the number of distinct collateral assets a single
// position may hold.
const maxPositionAssets = 20

// AssetConfig is the per-asset risk configuration maintained by governance.
// Thresholds are expressed in thousandths (650 = 65.0%).
type AssetConfig struct {
	Asset                crypto.Address
	Oracle               crypto.Address
	OracleDecimals       uint8
	Decimals             uint8
	Active               bool
	BorrowThreshold      uint64
	LiquidationThreshold uint64
	MaxSupplyThreshold   *big.Int
	Tier                 CollateralTier
	IsolationDebtCap     *big.Int
}

// Clone returns a deep copy of the asset configuration.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.MaxSupplyThreshold != nil {
		clone.MaxSupplyThreshold = new(big.Int).Set(c.MaxSupplyThreshold)
	}
	if c.IsolationDebtCap != nil {
		clone.IsolationDebtCap = new(big.Int).Set(c.IsolationDebtCap)
	}
	return &clone
}

// Position is a borrower's collateralized debt position. IDs are sequential
// per owner and never reused; closed and liquidated positions persist for
// historical lookup.
type Position struct {
	Owner       crypto.Address
	ID          uint64
	IsIsolated  bool
	Status      PositionStatus
	Debt        *big.Int
	LastAccrual uint64
	// Assets is the insertion-ordered set of collateral assets the position
	// currently holds.
	Assets []crypto.Address
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Owner:       p.Owner,
		ID:          p.ID,
		IsIsolated:  p.IsIsolated,
		Status:      p.Status,
		LastAccrual: p.LastAccrual,
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	if len(p.Assets) > 0 {
		clone.Assets = append([]crypto.Address(nil), p.Assets...)
	}
	return clone
}

func (p *Position) hasAsset(asset crypto.Address) bool {
	key := assetKey(asset)
	for _, held := range p.Assets {
		if assetKey(held) == key {
			return true
		}
	}
	return false
}

func (p *Position) addAsset(asset crypto.Address) error {
	if p.hasAsset(asset) {
		return nil
	}
	if len(p.Assets) >= maxPositionAssets {
		return ErrTooManyAssets
	}
	p.Assets = append(p.Assets, asset)
	return nil
}

func (p *Position) removeAsset(asset crypto.Address) {
	key := assetKey(asset)
	for i, held := range p.Assets {
		if assetKey(held) == key {
			p.Assets = append(p.Assets[:i], p.Assets[i+1:]...)
			return
		}
	}
}

// Market captures the protocol-wide aggregates mutated by lifecycle
// operations. All amounts are quote-asset base units except TotalValueLocked,
// which records deposited amounts per collateral asset.
type Market struct {
	// TotalBorrow is the sum of live principal across positions, excluding
	// accrued-but-uncollected interest.
	TotalBorrow *big.Int
	// TotalSuppliedLiquidity is the quote liquidity deposited by providers.
	TotalSuppliedLiquidity *big.Int
	// TotalBase mirrors the quote balance held in custody and drives the
	// supply-rate calculation.
	TotalBase *big.Int
	// TotalBorrowerInterest accumulates interest collected from borrowers
	// through repayments, exits and liquidations.
	TotalBorrowerInterest *big.Int
	// TotalValueLocked tracks the deposited amount per asset key.
	TotalValueLocked map[string]*big.Int
}

// EnsureDefaults replaces nil aggregate fields with zero values.
func (m *Market) EnsureDefaults() {
	if m == nil {
		return
	}
	if m.TotalBorrow == nil {
		m.TotalBorrow = big.NewInt(0)
	}
	if m.TotalSuppliedLiquidity == nil {
		m.TotalSuppliedLiquidity = big.NewInt(0)
	}
	if m.TotalBase == nil {
		m.TotalBase = big.NewInt(0)
	}
	if m.TotalBorrowerInterest == nil {
		m.TotalBorrowerInterest = big.NewInt(0)
	}
	if m.TotalValueLocked == nil {
		m.TotalValueLocked = make(map[string]*big.Int)
	}
}

// Clone returns a deep copy of the market aggregates.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{}
	if m.TotalBorrow != nil {
		clone.TotalBorrow = new(big.Int).Set(m.TotalBorrow)
	}
	if m.TotalSuppliedLiquidity != nil {
		clone.TotalSuppliedLiquidity = new(big.Int).Set(m.TotalSuppliedLiquidity)
	}
	if m.TotalBase != nil {
		clone.TotalBase = new(big.Int).Set(m.TotalBase)
	}
	if m.TotalBorrowerInterest != nil {
		clone.TotalBorrowerInterest = new(big.Int).Set(m.TotalBorrowerInterest)
	}
	if m.TotalValueLocked != nil {
		clone.TotalValueLocked = make(map[string]*big.Int, len(m.TotalValueLocked))
		for key, tvl := range m.TotalValueLocked {
			if tvl != nil {
				clone.TotalValueLocked[key] = new(big.Int).Set(tvl)
			}
		}
	}
	return clone
}

func (m *Market) tvl(key string) *big.Int {
	if m == nil || m.TotalValueLocked == nil {
		return big.NewInt(0)
	}
	if tvl, ok := m.TotalValueLocked[key]; ok && tvl != nil {
		return new(big.Int).Set(tvl)
	}
	return big.NewInt(0)
}

func (m *Market) addTVL(key string, delta *big.Int) {
	if m == nil || delta == nil {
		return
	}
	if m.TotalValueLocked == nil {
		m.TotalValueLocked = make(map[string]*big.Int)
	}
	next := new(big.Int).Add(m.tvl(key), delta)
	if next.Sign() <= 0 {
		delete(m.TotalValueLocked, key)
		return
	}
	m.TotalValueLocked[key] = next
}

// LiquidityAccount tracks a provider's supplied base and the timestamp of
// their most recent deposit, which gates reward eligibility.
type LiquidityAccount struct {
	Address      crypto.Address
	SuppliedBase *big.Int
	LastSupply   uint64
}

// Clone returns a deep copy of the liquidity account.
func (l *LiquidityAccount) Clone() *LiquidityAccount {
	if l == nil {
		return nil
	}
	clone := &LiquidityAccount{Address: l.Address, LastSupply: l.LastSupply}
	if l.SuppliedBase != nil {
		clone.SuppliedBase = new(big.Int).Set(l.SuppliedBase)
	}
	return clone
}

func assetKey(asset crypto.Address) string {
	return string(asset.Bytes())
}
