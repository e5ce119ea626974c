package lending

import (
	"fmt"
	"math/big"

	"lendfi/crypto"
	nativecommon "lendfi/native/common"
)

// UpsertAssetConfig lists a new collateral asset or updates an existing
// one's risk configuration. Listings are append-only: assets are retired by
// clearing the active flag, never removed.
func (e *Engine) UpsertAssetConfig(cfg AssetConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if cfg.LiquidationThreshold < cfg.BorrowThreshold {
		return fmt.Errorf("%w: liquidation %d borrow %d",
			ErrInvalidThreshold, cfg.LiquidationThreshold, cfg.BorrowThreshold)
	}

	existing, err := e.state.GetAssetConfig(cfg.Asset)
	if err != nil {
		return err
	}

	if err := e.state.PutAssetConfig(cfg.Clone()); err != nil {
		return err
	}

	// Forward new or changed oracle sources to the oracle subsystem. This is
	// deliberately best-effort: the oracle may already know the asset, and a
	// registration failure must not block the listing.
	oracleChanged := existing == nil || assetKey(existing.Oracle) != assetKey(cfg.Oracle)
	if oracleChanged && e.oracle != nil {
		if regErr := e.oracle.Register(cfg.Asset, cfg.Oracle, cfg.OracleDecimals); regErr != nil {
			if e.telemetry != nil {
				e.telemetry.IncOracleRegistrationSkip()
			}
		}
	}

	if existing == nil {
		e.emitter.Emit(AssetListed{Asset: cfg.Asset, Tier: cfg.Tier})
	}
	return nil
}

// SetAssetTier reassigns the risk tier of a listed asset.
func (e *Engine) SetAssetTier(asset crypto.Address, tier CollateralTier) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.assetConfig(asset)
	if err != nil {
		return err
	}
	cfg = cfg.Clone()
	cfg.Tier = tier
	return e.state.PutAssetConfig(cfg)
}

// GetAssetConfig returns the configuration of a listed asset.
func (e *Engine) GetAssetConfig(asset crypto.Address) (*AssetConfig, error) {
	cfg, err := e.assetConfig(asset)
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// IsAssetActive reports whether a listed asset currently accepts deposits.
func (e *Engine) IsAssetActive(asset crypto.Address) (bool, error) {
	cfg, err := e.assetConfig(asset)
	if err != nil {
		return false, err
	}
	return cfg.Active, nil
}

// ListedAssets returns every asset ever listed, in listing order.
func (e *Engine) ListedAssets() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ListAssets()
}

// TotalValueLocked reports the deposited amount for an asset.
func (e *Engine) TotalValueLocked(asset crypto.Address) (*big.Int, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return market.tvl(assetKey(asset)), nil
}
