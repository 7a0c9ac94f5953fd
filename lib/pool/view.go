package pool

import (
	"github.com/fluxline/clpool/lib/position"
	"github.com/fluxline/clpool/lib/tick"

	ui "github.com/holiman/uint256"
)

// Read accessors. Each takes the pool lock, so none may be called from
// inside a settlement callback.

func (p *Pool) ID() string     { return p.id }
func (p *Pool) Token0() string { return p.token0 }
func (p *Pool) Token1() string { return p.token1 }
func (p *Pool) Fee() int       { return p.fee }

func (p *Pool) TickSpacing() int { return p.tickSpacing }

func (p *Pool) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.sqrtPriceX96.IsZero()
}

func (p *Pool) CurrentPrice() *ui.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sqrtPriceX96.Clone()
}

func (p *Pool) CurrentTick() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tickCurrent
}

func (p *Pool) TotalLiquidity() *ui.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liquidity.Clone()
}

func (p *Pool) FeeGrowthGlobal() (*ui.Int, *ui.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feeGrowthGlobal0X128.Clone(), p.feeGrowthGlobal1X128.Clone()
}

// PositionInfo returns a copy of the position record, or false when no
// such position exists.
func (p *Pool) PositionInfo(owner string, tickLower, tickUpper int) (*position.Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions.Peek(owner, tickLower, tickUpper)
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// TickInfo returns a copy of the tick record, zero-valued if the tick
// was never initialized.
func (p *Pool) TickInfo(index int) *tick.Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks.Get(index)
}

// EachPosition visits a snapshot of every live position.
func (p *Pool) EachPosition(fn func(*position.Info)) {
	p.mu.Lock()
	snap := p.positions.Clone()
	p.mu.Unlock()
	snap.Each(fn)
}
