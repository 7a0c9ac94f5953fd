package pool

import (
	cons "github.com/fluxline/clpool/lib/constants"
	"github.com/fluxline/clpool/lib/fullmath"
	"github.com/fluxline/clpool/lib/swapmath"
	"github.com/fluxline/clpool/lib/tickmath"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// swapState is the working copy the swap loop mutates. Nothing touches
// the pool's committed state until settlement has been verified.
type swapState struct {
	amountSpecifiedRemaining *ui.Int // signed
	amountCalculated         *ui.Int // signed
	sqrtPriceX96             *ui.Int
	tick                     int
	liquidity                *ui.Int
	feeGrowthGlobalX128      *ui.Int // input-token accumulator
}

// crossing records a tick the price moved past, with the fee-growth
// values in effect at the moment of the cross. The tick ledger is only
// updated with these at commit time.
type crossing struct {
	tick                 int
	feeGrowthGlobal0X128 *ui.Int
	feeGrowthGlobal1X128 *ui.Int
}

// Swap trades one token for the other. A positive amountSpecified is an
// exact input of the token being sold; a negative one is an exact output
// of the token being bought. The price walks tick by tick toward
// sqrtPriceLimitX96 (nil or zero means no limit beyond the tick domain).
// Returned amounts are signed from the pool's point of view: positive
// into the pool, negative out of it.
func (p *Pool) Swap(recipient string, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *ui.Int, data []byte, pay PayCallback) (*ui.Int, *ui.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sqrtPriceX96.IsZero() {
		return nil, nil, ErrNotInitialized
	}
	if amountSpecified == nil || amountSpecified.IsZero() {
		return nil, nil, ErrZeroAmount
	}

	limit, err := p.resolvePriceLimit(zeroForOne, sqrtPriceLimitX96)
	if err != nil {
		return nil, nil, err
	}

	exactInput := amountSpecified.Sign() > 0

	state := swapState{
		amountSpecifiedRemaining: amountSpecified.Clone(),
		amountCalculated:         new(ui.Int),
		sqrtPriceX96:             p.sqrtPriceX96.Clone(),
		tick:                     p.tickCurrent,
		liquidity:                p.liquidity.Clone(),
	}
	if zeroForOne {
		state.feeGrowthGlobalX128 = p.feeGrowthGlobal0X128.Clone()
	} else {
		state.feeGrowthGlobalX128 = p.feeGrowthGlobal1X128.Clone()
	}

	var crossings []crossing

	for !state.amountSpecifiedRemaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		sqrtPriceStart := state.sqrtPriceX96.Clone()

		nextTick, initialized := p.bitmap.NextInitializedTickWithinOneWord(state.tick, p.tickSpacing, zeroForOne)
		if nextTick < tickmath.MinTick {
			nextTick = tickmath.MinTick
		} else if nextTick > tickmath.MaxTick {
			nextTick = tickmath.MaxTick
		}
		sqrtPriceNextTick, err := tickmath.GetSqrtRatioAtTick(nextTick)
		if err != nil {
			return nil, nil, err
		}

		target := sqrtPriceNextTick
		if zeroForOne {
			if sqrtPriceNextTick.Cmp(limit) < 0 {
				target = limit
			}
		} else {
			if sqrtPriceNextTick.Cmp(limit) > 0 {
				target = limit
			}
		}

		sqrtPriceNext, amountIn, amountOut, feeAmount := swapmath.ComputeSwapStep(
			state.sqrtPriceX96, target, state.liquidity, state.amountSpecifiedRemaining, p.fee)
		state.sqrtPriceX96 = sqrtPriceNext

		if exactInput {
			consumed := new(ui.Int).Add(amountIn, feeAmount)
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, consumed)
			state.amountCalculated.Sub(state.amountCalculated, amountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, amountOut)
			consumed := new(ui.Int).Add(amountIn, feeAmount)
			state.amountCalculated.Add(state.amountCalculated, consumed)
		}

		if state.liquidity.Sign() > 0 {
			growth := fullmath.MulDiv(feeAmount, cons.Q128, state.liquidity)
			state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, growth)
		}

		if state.sqrtPriceX96.Eq(sqrtPriceNextTick) {
			if initialized {
				// The working accumulator is the input token's side; the
				// output token's accumulator has not moved this swap.
				fg0, fg1 := state.feeGrowthGlobalX128, p.feeGrowthGlobal1X128
				if !zeroForOne {
					fg0, fg1 = p.feeGrowthGlobal0X128, state.feeGrowthGlobalX128
				}
				crossings = append(crossings, crossing{
					tick:                 nextTick,
					feeGrowthGlobal0X128: fg0.Clone(),
					feeGrowthGlobal1X128: fg1.Clone(),
				})

				liquidityNet := p.ticks.Get(nextTick).LiquidityNet.Clone()
				if zeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				state.liquidity.Add(state.liquidity, liquidityNet)
			}
			if zeroForOne {
				state.tick = nextTick - 1
			} else {
				state.tick = nextTick
			}
		} else if !state.sqrtPriceX96.Eq(sqrtPriceStart) {
			t, err := tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return nil, nil, err
			}
			state.tick = t
		}
	}

	var amount0, amount1 *ui.Int
	if zeroForOne == exactInput {
		amount0 = new(ui.Int).Sub(amountSpecified, state.amountSpecifiedRemaining)
		amount1 = state.amountCalculated.Clone()
	} else {
		amount0 = state.amountCalculated.Clone()
		amount1 = new(ui.Int).Sub(amountSpecified, state.amountSpecifiedRemaining)
	}

	if err := p.settleSwap(recipient, zeroForOne, amount0, amount1, data, pay); err != nil {
		return nil, nil, err
	}

	// Settlement verified: commit the walked state.
	for _, c := range crossings {
		p.ticks.Cross(c.tick, c.feeGrowthGlobal0X128, c.feeGrowthGlobal1X128)
	}
	p.sqrtPriceX96 = state.sqrtPriceX96
	p.tickCurrent = state.tick
	p.liquidity = state.liquidity
	if zeroForOne {
		p.feeGrowthGlobal0X128 = state.feeGrowthGlobalX128
	} else {
		p.feeGrowthGlobal1X128 = state.feeGrowthGlobalX128
	}

	p.log.Info("swap",
		zap.String("recipient", recipient),
		zap.Bool("zeroForOne", zeroForOne),
		zap.String("amount0", SignedDecimal(amount0)),
		zap.String("amount1", SignedDecimal(amount1)),
		zap.String("sqrtPriceX96", p.sqrtPriceX96.ToBig().String()),
		zap.Int("tick", p.tickCurrent),
		zap.Int("crossed", len(crossings)))
	p.emit(Event{
		Kind:         EventSwap,
		Recipient:    recipient,
		Amount0:      SignedDecimal(amount0),
		Amount1:      SignedDecimal(amount1),
		SqrtPriceX96: p.sqrtPriceX96.ToBig().String(),
		Liquidity:    p.liquidity.ToBig().String(),
		Tick:         p.tickCurrent,
	})
	return amount0, amount1, nil
}

// resolvePriceLimit validates an explicit limit against the swap
// direction and current price, and substitutes the widest legal bound
// when none is given. Equality with the current price is rejected: such
// a swap could never move.
func (p *Pool) resolvePriceLimit(zeroForOne bool, limit *ui.Int) (*ui.Int, error) {
	if limit == nil || limit.IsZero() {
		if zeroForOne {
			return new(ui.Int).AddUint64(tickmath.MinSqrtRatio, 1), nil
		}
		return new(ui.Int).SubUint64(tickmath.MaxSqrtRatio, 1), nil
	}
	if zeroForOne {
		if limit.Cmp(p.sqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) <= 0 {
			return nil, ErrInvalidPriceLimit
		}
	} else {
		if limit.Cmp(p.sqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) >= 0 {
			return nil, ErrInvalidPriceLimit
		}
	}
	return limit.Clone(), nil
}

// settleSwap pays the output leg to the recipient, then pulls the input
// leg through the callback and verifies the pool's balance grew by at
// least the owed amount. When the input falls short the output leg is
// taken back before the error is returned.
func (p *Pool) settleSwap(recipient string, zeroForOne bool, amount0, amount1 *ui.Int, data []byte, pay PayCallback) error {
	outToken, outAmount := p.token1, amount1
	if !zeroForOne {
		outToken, outAmount = p.token0, amount0
	}
	outAbs := new(ui.Int)
	if outAmount.Sign() < 0 {
		outAbs.Neg(outAmount)
	}

	if outAbs.Sign() > 0 {
		if err := p.settlement.Transfer(outToken, p.id, recipient, outAbs); err != nil {
			return err
		}
	}

	if err := p.pullPayment(amount0, amount1, data, pay, ErrInsufficientInput); err != nil {
		if outAbs.Sign() > 0 {
			if rbErr := p.settlement.Transfer(outToken, recipient, p.id, outAbs); rbErr != nil {
				p.log.Error("swap output clawback failed", zap.Error(rbErr))
			}
		}
		return err
	}
	return nil
}
