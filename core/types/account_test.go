package types

import (
	"math/big"
	"testing"
)

func TestEnsureDefaults(t *testing.T) {
	acc := &Account{}
	acc.EnsureDefaults()
	if acc.BalanceQuote == nil || acc.Stake == nil || acc.Tokens == nil {
		t.Fatalf("defaults not populated: %+v", acc)
	}
}

func TestTokenCreditDebit(t *testing.T) {
	acc := &Account{}
	acc.EnsureDefaults()

	if acc.TokenBalance("weth").Sign() != 0 {
		t.Fatalf("missing token must read zero")
	}

	acc.CreditToken("weth", big.NewInt(100))
	acc.CreditToken("weth", big.NewInt(50))
	if acc.TokenBalance("weth").Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected balance %s", acc.TokenBalance("weth"))
	}

	acc.DebitToken("weth", big.NewInt(150))
	if acc.TokenBalance("weth").Sign() != 0 {
		t.Fatalf("expected zero after full debit, got %s", acc.TokenBalance("weth"))
	}
	if _, ok := acc.Tokens["weth"]; ok {
		t.Fatalf("zero balance entry not removed")
	}
}

func TestTokenBalanceIsCopied(t *testing.T) {
	acc := &Account{Tokens: map[string]*big.Int{"weth": big.NewInt(10)}}
	balance := acc.TokenBalance("weth")
	balance.SetInt64(999)
	if acc.Tokens["weth"].Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("TokenBalance leaked internal pointer")
	}
}
