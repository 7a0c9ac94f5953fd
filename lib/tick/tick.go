package tick

import (
	"errors"

	ui "github.com/holiman/uint256"
)

var (
	ErrLiquidityOverflow  = errors.New("tick: liquidity per tick cap exceeded")
	ErrLiquidityUnderflow = errors.New("tick: gross liquidity underflow")
)

// Tick carries the per-tick accounting. LiquidityNet is a two's-complement
// signed value: the liquidity added to the pool when price crosses the tick
// moving upward.
type Tick struct {
	Index                 int
	LiquidityGross        *ui.Int
	LiquidityNet          *ui.Int
	FeeGrowthOutside0X128 *ui.Int
	FeeGrowthOutside1X128 *ui.Int
}

func newTick(index int) *Tick {
	return &Tick{
		Index:                 index,
		LiquidityGross:        new(ui.Int),
		LiquidityNet:          new(ui.Int),
		FeeGrowthOutside0X128: new(ui.Int),
		FeeGrowthOutside1X128: new(ui.Int),
	}
}

func (t *Tick) Clone() *Tick {
	return &Tick{
		Index:                 t.Index,
		LiquidityGross:        t.LiquidityGross.Clone(),
		LiquidityNet:          t.LiquidityNet.Clone(),
		FeeGrowthOutside0X128: t.FeeGrowthOutside0X128.Clone(),
		FeeGrowthOutside1X128: t.FeeGrowthOutside1X128.Clone(),
	}
}

func (t *Tick) Initialized() bool {
	return !t.LiquidityGross.IsZero()
}

// Ledger is the sparse per-tick store. Only ticks referenced by at least
// one position exist.
type Ledger struct {
	ticks map[int]*Tick
}

func NewLedger() *Ledger {
	return &Ledger{ticks: make(map[int]*Tick)}
}

func (l *Ledger) Clone() *Ledger {
	ticks := make(map[int]*Tick, len(l.ticks))
	for k, v := range l.ticks {
		ticks[k] = v.Clone()
	}
	return &Ledger{ticks: ticks}
}

// Get returns a copy of the tick record, zero-valued if absent.
func (l *Ledger) Get(index int) *Tick {
	if t, ok := l.ticks[index]; ok {
		return t.Clone()
	}
	return newTick(index)
}

// Update applies liquidityDelta (signed) to the tick's accounting and
// reports whether the initialized state flipped, so the caller can keep
// the bitmap in sync. On first initialization the outside fee growth is
// seeded with the current global growth when the tick is at or below the
// current tick: all historical growth is assumed to have happened below.
func (l *Ledger) Update(index, currentTick int, liquidityDelta, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int, upper bool, maxLiquidity *ui.Int) (bool, error) {
	t, ok := l.ticks[index]
	if !ok {
		t = newTick(index)
		l.ticks[index] = t
	}

	grossBefore := t.LiquidityGross.Clone()
	grossAfter, err := addDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Cmp(maxLiquidity) > 0 {
		return false, ErrLiquidityOverflow
	}

	flipped := grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() && index <= currentTick {
		t.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
		t.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
	}

	t.LiquidityGross = grossAfter
	if upper {
		t.LiquidityNet.Sub(t.LiquidityNet, liquidityDelta)
	} else {
		t.LiquidityNet.Add(t.LiquidityNet, liquidityDelta)
	}
	return flipped, nil
}

// Cross flips the tick's outside fee growth to the other side of the
// current price and returns the signed net liquidity the caller applies
// to the running liquidity. Called exactly once per crossing.
func (l *Ledger) Cross(index int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) *ui.Int {
	t, ok := l.ticks[index]
	if !ok {
		return new(ui.Int)
	}
	t.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, t.FeeGrowthOutside0X128)
	t.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, t.FeeGrowthOutside1X128)
	return t.LiquidityNet.Clone()
}

// FeeGrowthInside derives the fee growth accrued inside [lower, upper)
// from the two boundary accumulators and the globals. The three-way branch
// on the current tick's side is load-bearing; subtraction wraps modulo
// 2^256 like the accumulators themselves.
func (l *Ledger) FeeGrowthInside(lower, upper, currentTick int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) (*ui.Int, *ui.Int) {
	lo := l.Get(lower)
	up := l.Get(upper)

	var below0, below1 *ui.Int
	if currentTick >= lower {
		below0 = lo.FeeGrowthOutside0X128
		below1 = lo.FeeGrowthOutside1X128
	} else {
		below0 = new(ui.Int).Sub(feeGrowthGlobal0X128, lo.FeeGrowthOutside0X128)
		below1 = new(ui.Int).Sub(feeGrowthGlobal1X128, lo.FeeGrowthOutside1X128)
	}

	var above0, above1 *ui.Int
	if currentTick < upper {
		above0 = up.FeeGrowthOutside0X128
		above1 = up.FeeGrowthOutside1X128
	} else {
		above0 = new(ui.Int).Sub(feeGrowthGlobal0X128, up.FeeGrowthOutside0X128)
		above1 = new(ui.Int).Sub(feeGrowthGlobal1X128, up.FeeGrowthOutside1X128)
	}

	inside0 := new(ui.Int).Sub(feeGrowthGlobal0X128, below0)
	inside0.Sub(inside0, above0)
	inside1 := new(ui.Int).Sub(feeGrowthGlobal1X128, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}

// Clear drops the record for a tick whose gross liquidity returned to zero.
func (l *Ledger) Clear(index int) {
	delete(l.ticks, index)
}

// Len reports how many ticks are materialized.
func (l *Ledger) Len() int {
	return len(l.ticks)
}

// addDelta applies a signed delta to an unsigned quantity.
func addDelta(x, delta *ui.Int) (*ui.Int, error) {
	if delta.Sign() < 0 {
		abs := new(ui.Int).Neg(delta)
		if abs.Cmp(x) > 0 {
			return nil, ErrLiquidityUnderflow
		}
		return new(ui.Int).Sub(x, abs), nil
	}
	return new(ui.Int).Add(x, delta), nil
}
