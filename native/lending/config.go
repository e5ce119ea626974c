package lending

import (
	"fmt"
	"math/big"

	"github.com/BurntSushi/toml"
)

// TierParams carries the per-tier rate table entries. Both values use the
// 1e6 = 100% scale.
type TierParams struct {
	JumpRateMicros       uint64 `toml:"JumpRateMicros"`
	LiquidationFeeMicros uint64 `toml:"LiquidationFeeMicros"`
}

// Config captures the runtime configuration for the lending module. Rates use
// the 1e6 = 100% scale; amounts are strings of base units in TOML and decode
// into big integers.
type Config struct {
	QuoteDecimals          uint8      `toml:"QuoteDecimals"`
	BaseBorrowRateMicros   uint64     `toml:"BaseBorrowRateMicros"`
	BaseProfitTargetMicros uint64     `toml:"BaseProfitTargetMicros"`
	LiquidatorThreshold    *big.Int   `toml:"LiquidatorThresholdWei"`
	TargetReward           *big.Int   `toml:"TargetRewardWei"`
	MaxReward              *big.Int   `toml:"MaxRewardWei"`
	RewardInterval         uint64     `toml:"RewardIntervalSeconds"`
	RewardableSupply       *big.Int   `toml:"RewardableSupplyWei"`
	Stable                 TierParams `toml:"stable"`
	CrossA                 TierParams `toml:"cross_a"`
	CrossB                 TierParams `toml:"cross_b"`
	Isolated               TierParams `toml:"isolated"`
}

// maxLiquidationFeeMicros bounds tier liquidation fees at 10%.
const maxLiquidationFeeMicros = 100_000

// DefaultConfig returns the production defaults for the rate model and tier
// tables.
func DefaultConfig() Config {
	return Config{
		QuoteDecimals:          6,
		BaseBorrowRateMicros:   60_000, // 6% annual floor
		BaseProfitTargetMicros: 10_000, // 1% protocol spread
		LiquidatorThreshold:    mustBigInt("20000000000000000000000"), // 20k gov tokens
		TargetReward:           mustBigInt("1000000000000000000000"),  // 1k per interval
		MaxReward:              mustBigInt("5000000000000000000000"),
		RewardInterval:         180 * 24 * 60 * 60,
		RewardableSupply:       mustBigInt("100000000000"), // 100k quote units
		Stable:                 TierParams{JumpRateMicros: 25_000, LiquidationFeeMicros: 10_000},
		CrossA:                 TierParams{JumpRateMicros: 50_000, LiquidationFeeMicros: 20_000},
		CrossB:                 TierParams{JumpRateMicros: 80_000, LiquidationFeeMicros: 30_000},
		Isolated:               TierParams{JumpRateMicros: 150_000, LiquidationFeeMicros: 40_000},
	}
}

// EnsureDefaults populates nil big.Int fields so decoding partial TOML files
// is safe.
func (c *Config) EnsureDefaults() {
	if c.LiquidatorThreshold == nil {
		c.LiquidatorThreshold = big.NewInt(0)
	}
	if c.TargetReward == nil {
		c.TargetReward = big.NewInt(0)
	}
	if c.MaxReward == nil {
		c.MaxReward = big.NewInt(0)
	}
	if c.RewardableSupply == nil {
		c.RewardableSupply = big.NewInt(0)
	}
}

// Validate rejects configurations whose tier tables are outside protocol
// bounds.
func (c *Config) Validate() error {
	for _, tier := range []CollateralTier{TierStable, TierCrossA, TierCrossB, TierIsolated} {
		params := c.tierParams(tier)
		if params.LiquidationFeeMicros > maxLiquidationFeeMicros {
			return fmt.Errorf("lending config: %s liquidation fee %d exceeds maximum %d",
				tier, params.LiquidationFeeMicros, maxLiquidationFeeMicros)
		}
	}
	if c.QuoteDecimals == 0 || c.QuoteDecimals > 18 {
		return fmt.Errorf("lending config: quote decimals %d out of range", c.QuoteDecimals)
	}
	return nil
}

func (c *Config) tierParams(tier CollateralTier) TierParams {
	switch tier {
	case TierCrossA:
		return c.CrossA
	case TierCrossB:
		return c.CrossB
	case TierIsolated:
		return c.Isolated
	default:
		return c.Stable
	}
}

// JumpRate returns the tier's borrow-rate premium in the 1e6 scale.
func (c *Config) JumpRate(tier CollateralTier) uint64 {
	return c.tierParams(tier).JumpRateMicros
}

// LiquidationFee returns the tier's liquidation fee in the 1e6 scale.
func (c *Config) LiquidationFee(tier CollateralTier) uint64 {
	return c.tierParams(tier).LiquidationFeeMicros
}

// LoadConfig decodes a TOML file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("lending config: decode %s: %w", path, err)
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
