package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"lendfi/crypto"
	"lendfi/native/lending"
	"lendfi/storage"
)

// storedOracle persists quotes in the node database so prices survive between
// CLI invocations. It satisfies the lending engine's oracle interface.
type storedOracle struct {
	db storage.Database
}

type storedQuote struct {
	Price    *big.Int `json:"price"`
	Decimals uint8    `json:"decimals"`
}

func newStoredOracle(db storage.Database) *storedOracle {
	return &storedOracle{db: db}
}

func oracleKey(asset crypto.Address) []byte {
	return []byte(fmt.Sprintf("oracle/price/%x", asset.Bytes()))
}

func (o *storedOracle) Price(asset crypto.Address) (*big.Int, uint8, error) {
	raw, err := o.db.Get(oracleKey(asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, 0, lending.ErrNoPrice
	}
	if err != nil {
		return nil, 0, err
	}
	quote := new(storedQuote)
	if err := json.Unmarshal(raw, quote); err != nil {
		return nil, 0, fmt.Errorf("oracle: decode quote: %w", err)
	}
	if quote.Price == nil {
		return nil, 0, lending.ErrNoPrice
	}
	return quote.Price, quote.Decimals, nil
}

func (o *storedOracle) Register(asset, source crypto.Address, decimals uint8) error {
	// Source registration is a no-op for the stored oracle: quotes are fed
	// manually through the set-price command.
	return nil
}

func (o *storedOracle) SetPrice(asset crypto.Address, price *big.Int, decimals uint8) error {
	raw, err := json.Marshal(storedQuote{Price: price, Decimals: decimals})
	if err != nil {
		return err
	}
	return o.db.Put(oracleKey(asset), raw)
}
