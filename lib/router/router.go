// Package router is the pair-oriented front door over the pool engine.
// Callers name tokens in trade direction; the router resolves the pool,
// derives which side of the pair is being sold, and forwards.
package router

import (
	"errors"

	"github.com/fluxline/clpool/lib/factory"
	"github.com/fluxline/clpool/lib/pool"

	ui "github.com/holiman/uint256"
)

var ErrSameToken = errors.New("router: tokenIn equals tokenOut")

type Router struct {
	factory *factory.Factory
}

func New(f *factory.Factory) *Router {
	return &Router{factory: f}
}

// SwapExactInput sells exactly amountIn of tokenIn for tokenOut and
// returns the output amount delivered to recipient. A nil price limit
// lets the swap run to the edge of available liquidity.
func (r *Router) SwapExactInput(recipient, tokenIn, tokenOut string, fee int, amountIn, sqrtPriceLimitX96 *ui.Int, data []byte, pay pool.PayCallback) (*ui.Int, error) {
	p, zeroForOne, err := r.resolve(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	amount0, amount1, err := p.Swap(recipient, zeroForOne, amountIn.Clone(), sqrtPriceLimitX96, data, pay)
	if err != nil {
		return nil, err
	}
	out := amount1
	if !zeroForOne {
		out = amount0
	}
	return new(ui.Int).Neg(out), nil
}

// SwapExactOutput buys exactly amountOut of tokenOut and returns the
// amount of tokenIn paid.
func (r *Router) SwapExactOutput(recipient, tokenIn, tokenOut string, fee int, amountOut, sqrtPriceLimitX96 *ui.Int, data []byte, pay pool.PayCallback) (*ui.Int, error) {
	p, zeroForOne, err := r.resolve(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	specified := new(ui.Int).Neg(amountOut)
	amount0, amount1, err := p.Swap(recipient, zeroForOne, specified, sqrtPriceLimitX96, data, pay)
	if err != nil {
		return nil, err
	}
	in := amount0
	if !zeroForOne {
		in = amount1
	}
	return in, nil
}

// Mint adds liquidity to the pair's pool.
func (r *Router) Mint(owner, tokenA, tokenB string, fee, tickLower, tickUpper int, liquidity *ui.Int, data []byte, pay pool.PayCallback) (*ui.Int, *ui.Int, error) {
	p, err := r.factory.Get(tokenA, tokenB, fee)
	if err != nil {
		return nil, nil, err
	}
	return p.Mint(owner, tickLower, tickUpper, liquidity, data, pay)
}

// Burn removes liquidity from the pair's pool.
func (r *Router) Burn(owner, tokenA, tokenB string, fee, tickLower, tickUpper int, liquidity *ui.Int) (*ui.Int, *ui.Int, error) {
	p, err := r.factory.Get(tokenA, tokenB, fee)
	if err != nil {
		return nil, nil, err
	}
	return p.Burn(owner, tickLower, tickUpper, liquidity)
}

// Collect withdraws owed balances from the pair's pool.
func (r *Router) Collect(owner, tokenA, tokenB string, fee, tickLower, tickUpper int, recipient string, amount0Max, amount1Max *ui.Int) (*ui.Int, *ui.Int, error) {
	p, err := r.factory.Get(tokenA, tokenB, fee)
	if err != nil {
		return nil, nil, err
	}
	return p.Collect(owner, tickLower, tickUpper, recipient, amount0Max, amount1Max)
}

func (r *Router) resolve(tokenIn, tokenOut string, fee int) (*pool.Pool, bool, error) {
	if tokenIn == tokenOut {
		return nil, false, ErrSameToken
	}
	p, err := r.factory.Get(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, false, err
	}
	return p, tokenIn == p.Token0(), nil
}
