package pool

import (
	ui "github.com/holiman/uint256"
)

// Settlement is the external collaborator that actually moves asset
// balances. The engine only computes amounts; it reads its own balance to
// verify deliveries and asks the collaborator to push what the pool owes.
// BalanceOf must return a value the caller may retain.
type Settlement interface {
	BalanceOf(account, token string) *ui.Int
	Transfer(token, from, to string, amount *ui.Int) error
}

// PayCallback funds the pool mid-operation. Before it returns, the pool's
// balances must have grown by at least the owed amounts or the operation
// fails. The data argument is caller-supplied and round-tripped unmodified;
// the engine never inspects it.
type PayCallback func(amount0Owed, amount1Owed *ui.Int, data []byte) error
