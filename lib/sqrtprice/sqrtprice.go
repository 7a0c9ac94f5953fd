// Package sqrtprice relates sqrt-price deltas to token amounts under
// constant liquidity. Rounding direction is explicit per function and is
// load-bearing: amounts charged to users round up, amounts paid out round
// down, so rounding error never mints liquidity.
package sqrtprice

import (
	cons "github.com/fluxline/clpool/lib/constants"
	fm "github.com/fluxline/clpool/lib/fullmath"

	ui "github.com/holiman/uint256"
)

// Amount0Delta returns the token0 amount covering the move between the two
// sqrt prices at the given liquidity: liquidity * (1/sqrt(lower) - 1/sqrt(upper)).
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int, roundUp bool) *ui.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	numerator1 := new(ui.Int).Lsh(liquidity, 96)
	numerator2 := new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		return fm.DivRoundingUp(fm.MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96)
	}
	res := fm.MulDiv(numerator1, numerator2, sqrtRatioBX96)
	return res.Div(res, sqrtRatioAX96)
}

// Amount1Delta returns the token1 amount covering the move:
// liquidity * (sqrt(upper) - sqrt(lower)).
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int, roundUp bool) *ui.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fm.MulDivRoundingUp(liquidity, diff, cons.Q96)
	}
	return fm.MulDiv(liquidity, diff, cons.Q96)
}

// Amount0DeltaSigned rounds against the liquidity provider: up when
// liquidity is being added (positive), down when removed.
func Amount0DeltaSigned(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) *ui.Int {
	if liquidity.Sign() < 0 {
		return new(ui.Int).Neg(Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, new(ui.Int).Neg(liquidity), false))
	}
	return Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

// Amount1DeltaSigned is the token1 counterpart of Amount0DeltaSigned.
func Amount1DeltaSigned(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) *ui.Int {
	if liquidity.Sign() < 0 {
		return new(ui.Int).Neg(Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, new(ui.Int).Neg(liquidity), false))
	}
	return Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

// NextFromInput returns the price after spending amountIn at the given
// liquidity. Rounds so the pool never gives out more than it received.
func NextFromInput(sqrtPX96, liquidity, amountIn *ui.Int, zeroForOne bool) *ui.Int {
	if zeroForOne {
		return nextFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return nextFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// NextFromOutput returns the price after paying out amountOut.
func NextFromOutput(sqrtPX96, liquidity, amountOut *ui.Int, zeroForOne bool) *ui.Int {
	if zeroForOne {
		return nextFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return nextFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

func nextFromAmount0RoundingUp(sqrtPX96, liquidity, amount *ui.Int, add bool) *ui.Int {
	if amount.IsZero() {
		return sqrtPX96.Clone()
	}

	numerator1 := new(ui.Int).Lsh(liquidity, 96)
	product := new(ui.Int).Mul(amount, sqrtPX96)
	if add {
		if new(ui.Int).Div(product, amount).Eq(sqrtPX96) {
			denominator := new(ui.Int).Add(numerator1, product)
			if denominator.Cmp(numerator1) >= 0 {
				return fm.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
			}
		}
		// Fallback form avoids the overflowing product.
		return fm.DivRoundingUp(numerator1, new(ui.Int).Add(new(ui.Int).Div(numerator1, sqrtPX96), amount))
	}

	denominator := new(ui.Int).Sub(numerator1, product)
	return fm.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
}

func nextFromAmount1RoundingDown(sqrtPX96, liquidity, amount *ui.Int, add bool) *ui.Int {
	if add {
		var quotient *ui.Int
		if amount.Cmp(cons.MaxUint160) <= 0 {
			quotient = new(ui.Int).Div(new(ui.Int).Lsh(amount, 96), liquidity)
		} else {
			quotient = new(ui.Int).Div(new(ui.Int).Mul(amount, cons.Q96), liquidity)
		}
		return new(ui.Int).Add(sqrtPX96, quotient)
	}

	quotient := fm.MulDivRoundingUp(amount, cons.Q96, liquidity)
	return new(ui.Int).Sub(sqrtPX96, quotient)
}
