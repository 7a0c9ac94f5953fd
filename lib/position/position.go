package position

import (
	"errors"
	"fmt"

	cons "github.com/fluxline/clpool/lib/constants"
	"github.com/fluxline/clpool/lib/fullmath"

	ui "github.com/holiman/uint256"
)

var ErrInsufficientLiquidity = errors.New("position: insufficient liquidity")

// Info is the per-(owner, range) record: liquidity owned, the
// fee-growth-inside snapshot taken at the last update, and fees settled
// into owed balances but not yet collected.
type Info struct {
	Owner                    string
	TickLower                int
	TickUpper                int
	Liquidity                *ui.Int
	FeeGrowthInside0LastX128 *ui.Int
	FeeGrowthInside1LastX128 *ui.Int
	TokensOwed0              *ui.Int
	TokensOwed1              *ui.Int
}

func newInfo(owner string, lower, upper int) *Info {
	return &Info{
		Owner:                    owner,
		TickLower:                lower,
		TickUpper:                upper,
		Liquidity:                new(ui.Int),
		FeeGrowthInside0LastX128: new(ui.Int),
		FeeGrowthInside1LastX128: new(ui.Int),
		TokensOwed0:              new(ui.Int),
		TokensOwed1:              new(ui.Int),
	}
}

func (i *Info) Clone() *Info {
	return &Info{
		Owner:                    i.Owner,
		TickLower:                i.TickLower,
		TickUpper:                i.TickUpper,
		Liquidity:                i.Liquidity.Clone(),
		FeeGrowthInside0LastX128: i.FeeGrowthInside0LastX128.Clone(),
		FeeGrowthInside1LastX128: i.FeeGrowthInside1LastX128.Clone(),
		TokensOwed0:              i.TokensOwed0.Clone(),
		TokensOwed1:              i.TokensOwed1.Clone(),
	}
}

// Update settles fees accrued since the last snapshot into the owed
// balances, then applies the signed liquidity delta. It runs with a zero
// delta too: that is the pure fee-sync path before a collect.
func (i *Info) Update(liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128 *ui.Int) error {
	liquidityNext := i.Liquidity.Clone()
	if liquidityDelta.Sign() < 0 {
		abs := new(ui.Int).Neg(liquidityDelta)
		if abs.Cmp(i.Liquidity) > 0 {
			return ErrInsufficientLiquidity
		}
		liquidityNext.Sub(liquidityNext, abs)
	} else {
		liquidityNext.Add(liquidityNext, liquidityDelta)
	}

	// Owed fees use the liquidity held before the delta.
	delta0 := new(ui.Int).Sub(feeGrowthInside0X128, i.FeeGrowthInside0LastX128)
	delta1 := new(ui.Int).Sub(feeGrowthInside1X128, i.FeeGrowthInside1LastX128)
	owed0 := fullmath.MulDiv(delta0, i.Liquidity, cons.Q128)
	owed1 := fullmath.MulDiv(delta1, i.Liquidity, cons.Q128)

	i.Liquidity = liquidityNext
	i.FeeGrowthInside0LastX128 = feeGrowthInside0X128.Clone()
	i.FeeGrowthInside1LastX128 = feeGrowthInside1X128.Clone()
	i.TokensOwed0.Add(i.TokensOwed0, owed0)
	i.TokensOwed1.Add(i.TokensOwed1, owed1)
	return nil
}

// Empty reports whether the record can be purged.
func (i *Info) Empty() bool {
	return i.Liquidity.IsZero() && i.TokensOwed0.IsZero() && i.TokensOwed1.IsZero()
}

// Ledger stores positions keyed by (owner, lower, upper).
type Ledger struct {
	positions map[string]*Info
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Info)}
}

func (l *Ledger) Clone() *Ledger {
	positions := make(map[string]*Info, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v.Clone()
	}
	return &Ledger{positions: positions}
}

func key(owner string, lower, upper int) string {
	return fmt.Sprintf("%s:%d:%d", owner, lower, upper)
}

// Get returns the position record, creating a zero-valued one on first
// access.
func (l *Ledger) Get(owner string, lower, upper int) *Info {
	k := key(owner, lower, upper)
	if p, ok := l.positions[k]; ok {
		return p
	}
	p := newInfo(owner, lower, upper)
	l.positions[k] = p
	return p
}

// Peek returns the record without creating it.
func (l *Ledger) Peek(owner string, lower, upper int) (*Info, bool) {
	p, ok := l.positions[key(owner, lower, upper)]
	return p, ok
}

// Purge removes the record when it holds nothing.
func (l *Ledger) Purge(owner string, lower, upper int) {
	k := key(owner, lower, upper)
	if p, ok := l.positions[k]; ok && p.Empty() {
		delete(l.positions, k)
	}
}

// Each visits every live position.
func (l *Ledger) Each(fn func(*Info)) {
	for _, p := range l.positions {
		fn(p)
	}
}

// Len reports how many positions are materialized.
func (l *Ledger) Len() int {
	return len(l.positions)
}
