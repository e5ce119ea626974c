package lending

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"lendfi/core/types"
	"lendfi/crypto"
	native "lendfi/native/lending"
	"lendfi/storage"
)

// Ledger persists the lending module's records in a key-value store using a
// JSON codec. A missing key decodes to a nil record, which the engine treats
// as "absent"; decode failures surface as errors because they indicate a
// corrupt store.
type Ledger struct {
	db  storage.Database
	log *slog.Logger
}

// NewLedger wraps a database as the lending engine's state backend.
func NewLedger(db storage.Database, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{db: db, log: log}
}

const keyPrefix = "lending/"

func assetConfigKey(asset crypto.Address) []byte {
	return []byte(fmt.Sprintf("%sasset/%x", keyPrefix, asset.Bytes()))
}

func assetListKey() []byte {
	return []byte(keyPrefix + "assets")
}

func marketKey() []byte {
	return []byte(keyPrefix + "market")
}

func positionCountKey(owner crypto.Address) []byte {
	return []byte(fmt.Sprintf("%sposition-count/%x", keyPrefix, owner.Bytes()))
}

func positionKey(owner crypto.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%sposition/%x/%d", keyPrefix, owner.Bytes(), id))
}

func collateralKey(owner crypto.Address, id uint64, asset crypto.Address) []byte {
	return []byte(fmt.Sprintf("%scollateral/%x/%d/%x", keyPrefix, owner.Bytes(), id, asset.Bytes()))
}

func liquidityKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%sliquidity/%x", keyPrefix, addr.Bytes()))
}

func accountKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%saccount/%x", keyPrefix, addr.Bytes()))
}

// get unmarshals the record at key into out. The boolean reports presence.
func (l *Ledger) get(key []byte, out interface{}) (bool, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		l.log.Error("corrupt ledger record", "key", string(key), "error", err)
		return false, fmt.Errorf("lending state: decode %s: %w", key, err)
	}
	return true, nil
}

func (l *Ledger) put(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("lending state: encode %s: %w", key, err)
	}
	return l.db.Put(key, raw)
}

// GetAssetConfig returns the stored configuration for an asset, or nil when
// the asset was never listed.
func (l *Ledger) GetAssetConfig(asset crypto.Address) (*native.AssetConfig, error) {
	cfg := new(native.AssetConfig)
	ok, err := l.get(assetConfigKey(asset), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return cfg, nil
}

// PutAssetConfig stores an asset configuration and appends the asset to the
// listing index on first insert.
func (l *Ledger) PutAssetConfig(cfg *native.AssetConfig) error {
	if cfg == nil {
		return errors.New("lending state: nil asset config")
	}
	listed, err := l.ListAssets()
	if err != nil {
		return err
	}
	known := false
	for _, asset := range listed {
		if hex.EncodeToString(asset.Bytes()) == hex.EncodeToString(cfg.Asset.Bytes()) {
			known = true
			break
		}
	}
	if err := l.put(assetConfigKey(cfg.Asset), cfg); err != nil {
		return err
	}
	if !known {
		listed = append(listed, cfg.Asset)
		if err := l.put(assetListKey(), listed); err != nil {
			return err
		}
	}
	return nil
}

// ListAssets returns every listed asset in listing order.
func (l *Ledger) ListAssets() ([]crypto.Address, error) {
	var listed []crypto.Address
	if _, err := l.get(assetListKey(), &listed); err != nil {
		return nil, err
	}
	return listed, nil
}

// marketRecord is the storage shape of the market aggregates. TVL keys are
// hex asset identifiers because the in-memory map keys raw address bytes.
type marketRecord struct {
	TotalBorrow            *big.Int            `json:"totalBorrow"`
	TotalSuppliedLiquidity *big.Int            `json:"totalSuppliedLiquidity"`
	TotalBase              *big.Int            `json:"totalBase"`
	TotalBorrowerInterest  *big.Int            `json:"totalBorrowerInterest"`
	TVL                    map[string]*big.Int `json:"tvl,omitempty"`
}

// GetMarket loads the market aggregates, or nil before the first write.
func (l *Ledger) GetMarket() (*native.Market, error) {
	record := new(marketRecord)
	ok, err := l.get(marketKey(), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	market := &native.Market{
		TotalBorrow:            record.TotalBorrow,
		TotalSuppliedLiquidity: record.TotalSuppliedLiquidity,
		TotalBase:              record.TotalBase,
		TotalBorrowerInterest:  record.TotalBorrowerInterest,
	}
	if len(record.TVL) > 0 {
		market.TotalValueLocked = make(map[string]*big.Int, len(record.TVL))
		for key, amount := range record.TVL {
			raw, err := hex.DecodeString(key)
			if err != nil {
				return nil, fmt.Errorf("lending state: decode tvl key %q: %w", key, err)
			}
			market.TotalValueLocked[string(raw)] = amount
		}
	}
	market.EnsureDefaults()
	return market, nil
}

// PutMarket stores the market aggregates.
func (l *Ledger) PutMarket(market *native.Market) error {
	if market == nil {
		return errors.New("lending state: nil market")
	}
	record := &marketRecord{
		TotalBorrow:            market.TotalBorrow,
		TotalSuppliedLiquidity: market.TotalSuppliedLiquidity,
		TotalBase:              market.TotalBase,
		TotalBorrowerInterest:  market.TotalBorrowerInterest,
	}
	if len(market.TotalValueLocked) > 0 {
		record.TVL = make(map[string]*big.Int, len(market.TotalValueLocked))
		for key, amount := range market.TotalValueLocked {
			record.TVL[hex.EncodeToString([]byte(key))] = amount
		}
	}
	return l.put(marketKey(), record)
}

// PositionCount returns the number of positions ever created by the owner.
func (l *Ledger) PositionCount(owner crypto.Address) (uint64, error) {
	var count uint64
	if _, err := l.get(positionCountKey(owner), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetPosition loads a position, or nil when the id was never assigned.
func (l *Ledger) GetPosition(owner crypto.Address, id uint64) (*native.Position, error) {
	position := new(native.Position)
	ok, err := l.get(positionKey(owner, id), position)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return position, nil
}

// PutPosition stores a position and advances the owner's position counter
// when the id is new.
func (l *Ledger) PutPosition(position *native.Position) error {
	if position == nil {
		return errors.New("lending state: nil position")
	}
	count, err := l.PositionCount(position.Owner)
	if err != nil {
		return err
	}
	if err := l.put(positionKey(position.Owner, position.ID), position); err != nil {
		return err
	}
	if position.ID >= count {
		if err := l.put(positionCountKey(position.Owner), position.ID+1); err != nil {
			return err
		}
	}
	return nil
}

// GetCollateral returns the collateral balance for (owner, position, asset),
// or nil when nothing was ever deposited.
func (l *Ledger) GetCollateral(owner crypto.Address, id uint64, asset crypto.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := l.get(collateralKey(owner, id, asset), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return balance, nil
}

// PutCollateral stores a collateral balance.
func (l *Ledger) PutCollateral(owner crypto.Address, id uint64, asset crypto.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return l.put(collateralKey(owner, id, asset), amount)
}

// GetLiquidityAccount loads a provider's liquidity record, or nil for
// first-time suppliers.
func (l *Ledger) GetLiquidityAccount(addr crypto.Address) (*native.LiquidityAccount, error) {
	account := new(native.LiquidityAccount)
	ok, err := l.get(liquidityKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return account, nil
}

// PutLiquidityAccount stores a provider's liquidity record.
func (l *Ledger) PutLiquidityAccount(account *native.LiquidityAccount) error {
	if account == nil {
		return errors.New("lending state: nil liquidity account")
	}
	return l.put(liquidityKey(account.Address), account)
}

// accountRecord is the storage shape of a token account. Token keys are hex
// asset identifiers for the same reason as marketRecord's TVL keys.
type accountRecord struct {
	Nonce        uint64              `json:"nonce"`
	BalanceQuote *big.Int            `json:"balanceQuote"`
	Stake        *big.Int            `json:"stake"`
	Tokens       map[string]*big.Int `json:"tokens,omitempty"`
}

// GetAccount loads a token account, or nil when the address has no record.
func (l *Ledger) GetAccount(addr crypto.Address) (*types.Account, error) {
	record := new(accountRecord)
	ok, err := l.get(accountKey(addr), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	account := &types.Account{
		Nonce:        record.Nonce,
		BalanceQuote: record.BalanceQuote,
		Stake:        record.Stake,
	}
	if len(record.Tokens) > 0 {
		account.Tokens = make(map[string]*big.Int, len(record.Tokens))
		for key, amount := range record.Tokens {
			raw, err := hex.DecodeString(key)
			if err != nil {
				return nil, fmt.Errorf("lending state: decode token key %q: %w", key, err)
			}
			account.Tokens[string(raw)] = amount
		}
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount stores a token account.
func (l *Ledger) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return errors.New("lending state: nil account")
	}
	record := &accountRecord{
		Nonce:        account.Nonce,
		BalanceQuote: account.BalanceQuote,
		Stake:        account.Stake,
	}
	if len(account.Tokens) > 0 {
		record.Tokens = make(map[string]*big.Int, len(account.Tokens))
		for key, amount := range account.Tokens {
			record.Tokens[hex.EncodeToString([]byte(key))] = amount
		}
	}
	return l.put(accountKey(addr), record)
}
