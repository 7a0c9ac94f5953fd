package fullmath

import (
	cons "github.com/fluxline/clpool/lib/constants"

	ui "github.com/holiman/uint256"
)

// MulDiv computes a * b / denominator with a 512-bit intermediate product,
// rounding toward zero. Panics on overflow of the 256-bit result; callers
// bound their inputs.
func MulDiv(a, b, denominator *ui.Int) *ui.Int {
	result, overflow := new(ui.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		panic("fullmath: mulDiv overflow")
	}
	return result
}

// MulDivRoundingUp is MulDiv rounding away from zero.
func MulDivRoundingUp(a, b, denominator *ui.Int) *ui.Int {
	if a.IsZero() || b.IsZero() {
		return ui.NewInt(0)
	}
	result := MulDiv(a, b, denominator)
	rem := new(ui.Int).MulMod(a, b, denominator)
	if !rem.IsZero() {
		result.Add(result, cons.One)
	}
	return result
}

// DivRoundingUp computes a / denominator rounding away from zero.
func DivRoundingUp(a, denominator *ui.Int) *ui.Int {
	result := new(ui.Int).Div(a, denominator)
	rem := new(ui.Int).Mod(a, denominator)
	if !rem.IsZero() {
		result.Add(result, cons.One)
	}
	return result
}
