package constants

import (
	ui "github.com/holiman/uint256"
)

var (
	Zero          = new(ui.Int)
	One           = new(ui.Int).SetOne()
	MaxUint256, _ = ui.FromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	MaxUint128, _ = ui.FromHex("0xffffffffffffffffffffffffffffffff")
	MaxUint160    = new(ui.Int).Sub(new(ui.Int).Lsh(One, 160), One)

	Q96  = new(ui.Int).Lsh(One, 96)
	Q128 = new(ui.Int).Lsh(One, 128)
	Q192 = new(ui.Int).Lsh(One, 192)

	E6  = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(6))
	E18 = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(18))
)

// MaxFeePips is the fee denominator: fees are expressed in parts per million.
var MaxFeePips = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(6))

// TickSpacings maps a fee tier in pips to its tick spacing.
var TickSpacings = map[int]int{
	500:   10,
	3000:  60,
	10000: 200,
}
