package swapmath

import (
	cons "github.com/fluxline/clpool/lib/constants"
	fm "github.com/fluxline/clpool/lib/fullmath"
	"github.com/fluxline/clpool/lib/sqrtprice"

	ui "github.com/holiman/uint256"
)

// ComputeSwapStep advances the price from sqrtRatioCurrentX96 toward
// sqrtRatioTargetX96 at constant liquidity, consuming at most
// amountRemaining (signed: positive means exact input including fee,
// negative exact output). It returns the price reached, the input and
// output amounts for the step, and the fee taken on the input leg. The fee
// accrues separately: it is never part of the liquidity-moving amount.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *ui.Int, feePips int) (sqrtRatioNextX96, amountIn, amountOut, feeAmount *ui.Int) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := ui.NewInt(uint64(feePips))
	feeDenomLess := new(ui.Int).Sub(cons.MaxFeePips, fee)

	if exactIn {
		amountRemainingLessFee := fm.MulDiv(amountRemaining, feeDenomLess, cons.MaxFeePips)
		if zeroForOne {
			amountIn = sqrtprice.Amount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			amountIn = sqrtprice.Amount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96.Clone()
		} else {
			sqrtRatioNextX96 = sqrtprice.NextFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
		}
	} else {
		if zeroForOne {
			amountOut = sqrtprice.Amount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			amountOut = sqrtprice.Amount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		absRemaining := new(ui.Int).Neg(amountRemaining)
		if absRemaining.Cmp(amountOut) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96.Clone()
		} else {
			sqrtRatioNextX96 = sqrtprice.NextFromOutput(sqrtRatioCurrentX96, liquidity, absRemaining, zeroForOne)
		}
	}

	reachedTarget := sqrtRatioTargetX96.Eq(sqrtRatioNextX96)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			amountIn = sqrtprice.Amount0Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = sqrtprice.Amount1Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			amountIn = sqrtprice.Amount1Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = sqrtprice.Amount0Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, false)
		}
	}

	// Exact output never pays out more than requested.
	if !exactIn {
		absRemaining := new(ui.Int).Neg(amountRemaining)
		if amountOut.Cmp(absRemaining) > 0 {
			amountOut = absRemaining
		}
	}

	if exactIn && !reachedTarget {
		// The step consumed the whole budget without reaching the target:
		// whatever the curve did not absorb is the fee.
		feeAmount = new(ui.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount = fm.MulDivRoundingUp(amountIn, fee, feeDenomLess)
	}
	return
}
