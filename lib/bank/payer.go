package bank

import (
	ui "github.com/holiman/uint256"
)

// Payer builds a settlement callback that pays owed amounts from the
// payer's account into the pool's account. The returned func satisfies
// the pool's pay-callback signature.
func (b *Bank) Payer(payer, poolAccount, token0, token1 string) func(amount0Owed, amount1Owed *ui.Int, data []byte) error {
	return func(amount0Owed, amount1Owed *ui.Int, data []byte) error {
		if amount0Owed.Sign() > 0 {
			if err := b.Transfer(token0, payer, poolAccount, amount0Owed); err != nil {
				return err
			}
		}
		if amount1Owed.Sign() > 0 {
			if err := b.Transfer(token1, payer, poolAccount, amount1Owed); err != nil {
				return err
			}
		}
		return nil
	}
}
