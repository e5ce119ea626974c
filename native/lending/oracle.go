package lending

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"lendfi/crypto"
)

// PriceOracle is the oracle collaborator boundary. Price must be consulted
// fresh for every operation; the engine never caches quotes across
// operations. Register is best-effort: registration failures are reported to
// the caller, which may legitimately ignore them.
type PriceOracle interface {
	// Price returns the validated USD price for the asset together with the
	// decimal scale the value is expressed in.
	Price(asset crypto.Address) (*big.Int, uint8, error)
	// Register announces an asset's price source to the oracle subsystem.
	Register(asset, source crypto.Address, decimals uint8) error
}

// ErrNoPrice indicates the oracle holds no quote for the requested asset.
var ErrNoPrice = errors.New("lending oracle: no price for asset")

// ErrOracleRegistered indicates the asset already has a registered source.
var ErrOracleRegistered = errors.New("lending oracle: asset already registered")

type staticQuote struct {
	value    *big.Int
	decimals uint8
	source   crypto.Address
}

// StaticOracle is a mutex-guarded manual price feed. Hosts point the engine
// at their aggregator in production; tests and single-process deployments
// set quotes directly.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]*staticQuote
}

// NewStaticOracle returns an empty manual feed.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{quotes: make(map[string]*staticQuote)}
}

// SetPrice installs or replaces the quote for an asset.
func (o *StaticOracle) SetPrice(asset crypto.Address, value *big.Int, decimals uint8) {
	if o == nil || value == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	key := assetKey(asset)
	quote, ok := o.quotes[key]
	if !ok {
		quote = &staticQuote{}
		o.quotes[key] = quote
	}
	quote.value = new(big.Int).Set(value)
	quote.decimals = decimals
}

// Price implements PriceOracle.
func (o *StaticOracle) Price(asset crypto.Address) (*big.Int, uint8, error) {
	if o == nil {
		return nil, 0, ErrNoPrice
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	quote, ok := o.quotes[assetKey(asset)]
	if !ok || quote.value == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoPrice, asset.String())
	}
	return new(big.Int).Set(quote.value), quote.decimals, nil
}

// Register implements PriceOracle. Re-registering an asset fails, which
// exercises the engine's ignore-and-continue branch.
func (o *StaticOracle) Register(asset, source crypto.Address, decimals uint8) error {
	if o == nil {
		return ErrNoPrice
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	key := assetKey(asset)
	quote, ok := o.quotes[key]
	if ok && !quote.source.IsZero() {
		return fmt.Errorf("%w: %s", ErrOracleRegistered, asset.String())
	}
	if !ok {
		quote = &staticQuote{}
		o.quotes[key] = quote
	}
	quote.source = source
	quote.decimals = decimals
	return nil
}
