// Package bank is an in-memory token ledger used to settle pool
// operations. Accounts and tokens are plain strings; balances are
// unsigned 256-bit.
package bank

import (
	"errors"
	"fmt"
	"sync"

	ui "github.com/holiman/uint256"
)

var ErrInsufficientFunds = errors.New("bank: insufficient funds")

type Bank struct {
	mu       sync.Mutex
	balances map[string]map[string]*ui.Int // account -> token -> balance
}

func New() *Bank {
	return &Bank{balances: make(map[string]map[string]*ui.Int)}
}

func (b *Bank) account(name string) map[string]*ui.Int {
	acct, ok := b.balances[name]
	if !ok {
		acct = make(map[string]*ui.Int)
		b.balances[name] = acct
	}
	return acct
}

// Credit mints amount of token into account.
func (b *Bank) Credit(account, token string, amount *ui.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account(account)
	if bal, ok := acct[token]; ok {
		bal.Add(bal, amount)
		return
	}
	acct[token] = amount.Clone()
}

func (b *Bank) BalanceOf(account, token string) *ui.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account][token]; ok {
		return bal.Clone()
	}
	return new(ui.Int)
}

func (b *Bank) Transfer(token, from, to string, amount *ui.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal, ok := b.balances[from][token]
	if !ok || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s",
			ErrInsufficientFunds, from, balString(fromBal), token, amount.ToBig().String())
	}
	fromBal.Sub(fromBal, amount)

	acct := b.account(to)
	if toBal, ok := acct[token]; ok {
		toBal.Add(toBal, amount)
	} else {
		acct[token] = amount.Clone()
	}
	return nil
}

func balString(x *ui.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}
