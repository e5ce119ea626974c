package lending

import (
	"math/big"

	"lendfi/crypto"
)

// Event type identifiers emitted by the lending engine.
const (
	TypeAssetListed           = "lending.asset.listed"
	TypePositionCreated       = "lending.position.created"
	TypePositionClosed        = "lending.position.closed"
	TypePositionLiquidated    = "lending.position.liquidated"
	TypeCollateralSupplied    = "lending.collateral.supplied"
	TypeCollateralWithdrawn   = "lending.collateral.withdrawn"
	TypeCollateralTransferred = "lending.collateral.transferred"
	TypeLoanCreated           = "lending.loan.created"
	TypeLoanRepaid            = "lending.loan.repaid"
	TypeLiquiditySupplied     = "lending.liquidity.supplied"
	TypeLiquidityWithdrawn    = "lending.liquidity.withdrawn"
)

// AssetListed fires the first time an asset enters the collateral registry.
type AssetListed struct {
	Asset crypto.Address
	Tier  CollateralTier
}

// EventType implements the events.Event interface.
func (AssetListed) EventType() string { return TypeAssetListed }

// PositionCreated fires when an owner opens a new position.
type PositionCreated struct {
	Owner      crypto.Address
	PositionID uint64
	Isolated   bool
}

// EventType implements the events.Event interface.
func (PositionCreated) EventType() string { return TypePositionCreated }

// PositionClosed fires when an owner exits a position, including the debt
// settled on the way out.
type PositionClosed struct {
	Owner      crypto.Address
	PositionID uint64
	DebtRepaid *big.Int
}

// EventType implements the events.Event interface.
func (PositionClosed) EventType() string { return TypePositionClosed }

// PositionLiquidated fires when a liquidator settles an unhealthy position.
type PositionLiquidated struct {
	Liquidator crypto.Address
	Owner      crypto.Address
	PositionID uint64
	DebtRepaid *big.Int
	Fee        *big.Int
}

// EventType implements the events.Event interface.
func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

// CollateralSupplied fires when collateral enters custody.
type CollateralSupplied struct {
	Owner      crypto.Address
	PositionID uint64
	Asset      crypto.Address
	Amount     *big.Int
}

// EventType implements the events.Event interface.
func (CollateralSupplied) EventType() string { return TypeCollateralSupplied }

// CollateralWithdrawn fires when collateral leaves custody.
type CollateralWithdrawn struct {
	Owner      crypto.Address
	PositionID uint64
	Asset      crypto.Address
	Amount     *big.Int
}

// EventType implements the events.Event interface.
func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

// CollateralTransferred fires when collateral moves between two of an
// owner's positions without leaving custody.
type CollateralTransferred struct {
	Owner  crypto.Address
	FromID uint64
	ToID   uint64
	Asset  crypto.Address
	Amount *big.Int
}

// EventType implements the events.Event interface.
func (CollateralTransferred) EventType() string { return TypeCollateralTransferred }

// LoanCreated fires when a position draws down liquidity.
type LoanCreated struct {
	Owner      crypto.Address
	PositionID uint64
	Amount     *big.Int
}

// EventType implements the events.Event interface.
func (LoanCreated) EventType() string { return TypeLoanCreated }

// LoanRepaid fires when a position pays down debt. Interest carries the
// portion of the payment that covered accrued interest.
type LoanRepaid struct {
	Owner      crypto.Address
	PositionID uint64
	Amount     *big.Int
	Interest   *big.Int
}

// EventType implements the events.Event interface.
func (LoanRepaid) EventType() string { return TypeLoanRepaid }

// LiquiditySupplied fires when a provider deposits quote liquidity.
type LiquiditySupplied struct {
	Supplier crypto.Address
	Amount   *big.Int
}

// EventType implements the events.Event interface.
func (LiquiditySupplied) EventType() string { return TypeLiquiditySupplied }

// LiquidityWithdrawn fires when a provider withdraws quote liquidity. Reward
// is zero unless an incentive payout accompanied the withdrawal.
type LiquidityWithdrawn struct {
	Supplier crypto.Address
	Amount   *big.Int
	Reward   *big.Int
}

// EventType implements the events.Event interface.
func (LiquidityWithdrawn) EventType() string { return TypeLiquidityWithdrawn }
