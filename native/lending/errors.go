package lending

import "errors"

var (
	errNilState      = errors.New("lending engine: state not configured")
	errNilOracle     = errors.New("lending engine: oracle not configured")
	errInvalidAmount = errors.New("lending engine: amount must be positive")

	// Configuration errors: rejected before any mutation.
	ErrAssetNotListed    = errors.New("lending engine: asset not listed")
	ErrAssetDisabled     = errors.New("lending engine: asset disabled")
	ErrInvalidThreshold  = errors.New("lending engine: liquidation threshold below borrow threshold")
	ErrOracleUnavailable = errors.New("lending engine: oracle price unavailable")

	// Capacity errors: rejected before any mutation.
	ErrSupplyCapExceeded        = errors.New("lending engine: supply cap exceeded")
	ErrIsolationDebtCapExceeded = errors.New("lending engine: isolation debt cap exceeded")
	ErrInsufficientLiquidity    = errors.New("lending engine: insufficient liquidity")
	ErrTooManyAssets            = errors.New("lending engine: position holds maximum number of assets")

	// Solvency errors: detected against the tentative post-mutation state,
	// nothing is persisted when they fire.
	ErrExceedsCreditLimit           = errors.New("lending engine: borrow exceeds credit limit")
	ErrWithdrawalExceedsCreditLimit = errors.New("lending engine: withdrawal would leave debt unbacked")

	// State errors.
	ErrInvalidPosition        = errors.New("lending engine: invalid or inactive position")
	ErrIsolationModeRequired  = errors.New("lending engine: isolated asset requires an isolated position")
	ErrIsolationModeForbidden = errors.New("lending engine: operation not permitted for isolated positions")
	ErrInvalidPositionAsset   = errors.New("lending engine: asset does not match isolated collateral")
	ErrNoIsolatedCollateral   = errors.New("lending engine: isolated position has no collateral")

	// Balance and authorization errors.
	ErrInsufficientCollateralBalance = errors.New("lending engine: insufficient collateral balance")
	ErrInsufficientTokenBalance      = errors.New("lending engine: insufficient token balance")
	ErrInsufficientGovTokens         = errors.New("lending engine: insufficient governance stake")
	ErrNoDebtToRepay                 = errors.New("lending engine: no outstanding debt to repay")
	ErrNotLiquidatable               = errors.New("lending engine: borrower not eligible for liquidation")
)
