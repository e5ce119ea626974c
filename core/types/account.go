package types

import "math/big"

// Account captures the balances the lending protocol can debit and credit.
// BalanceQuote holds the stable quote asset (LUSD) used for borrowing and
// repayment, Stake holds the governance tokens counted towards liquidator
// eligibility, and Tokens holds per-asset collateral token balances keyed by
// the asset's address bytes.
type Account struct {
	Nonce        uint64              `json:"nonce"`
	BalanceQuote *big.Int            `json:"balanceQuote"`
	Stake        *big.Int            `json:"stake"`
	Tokens       map[string]*big.Int `json:"tokens,omitempty"`
}

// EnsureDefaults replaces nil balance fields with zero values so callers can
// mutate the account without nil checks.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.BalanceQuote == nil {
		a.BalanceQuote = big.NewInt(0)
	}
	if a.Stake == nil {
		a.Stake = big.NewInt(0)
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]*big.Int)
	}
}

// TokenBalance returns the balance held for the provided asset key. Missing
// entries read as zero.
func (a *Account) TokenBalance(assetKey string) *big.Int {
	if a == nil || a.Tokens == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Tokens[assetKey]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// CreditToken adds amount to the asset balance.
func (a *Account) CreditToken(assetKey string, amount *big.Int) {
	if a == nil || amount == nil {
		return
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]*big.Int)
	}
	a.Tokens[assetKey] = new(big.Int).Add(a.TokenBalance(assetKey), amount)
}

// DebitToken subtracts amount from the asset balance. The caller is expected
// to have verified sufficiency; balances never go negative.
func (a *Account) DebitToken(assetKey string, amount *big.Int) {
	if a == nil || amount == nil {
		return
	}
	next := new(big.Int).Sub(a.TokenBalance(assetKey), amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]*big.Int)
	}
	if next.Sign() == 0 {
		delete(a.Tokens, assetKey)
		return
	}
	a.Tokens[assetKey] = next
}
