package position

import (
	"testing"

	cons "github.com/fluxline/clpool/lib/constants"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestGetCreatesZeroRecord(t *testing.T) {
	l := NewLedger()
	p := l.Get("alice", -60, 60)
	require.True(t, p.Liquidity.IsZero())
	require.True(t, p.TokensOwed0.IsZero())
	require.Equal(t, 1, l.Len())

	// Same key returns the same record.
	p.Liquidity.SetUint64(5)
	again := l.Get("alice", -60, 60)
	require.True(t, again.Liquidity.Eq(ui.NewInt(5)))
}

func TestUpdateOwedFees(t *testing.T) {
	l := NewLedger()
	p := l.Get("alice", -60, 60)
	require.NoError(t, p.Update(ui.NewInt(1000), cons.Zero, cons.Zero))

	// 3 Q128 units of growth per unit liquidity => 3000 tokens owed.
	inside0 := new(ui.Int).Mul(ui.NewInt(3), cons.Q128)
	require.NoError(t, p.Update(cons.Zero, inside0, cons.Zero))
	require.True(t, p.TokensOwed0.Eq(ui.NewInt(3000)), "owed0=%v", p.TokensOwed0)
	require.True(t, p.TokensOwed1.IsZero())

	// No further growth, zero-delta sync adds nothing.
	require.NoError(t, p.Update(cons.Zero, inside0, cons.Zero))
	require.True(t, p.TokensOwed0.Eq(ui.NewInt(3000)))
}

func TestUpdateUsesLiquidityBeforeDelta(t *testing.T) {
	l := NewLedger()
	p := l.Get("alice", -60, 60)
	require.NoError(t, p.Update(ui.NewInt(100), cons.Zero, cons.Zero))

	// Growth settles against the 100 held, not the 200 after.
	inside0 := cons.Q128.Clone()
	require.NoError(t, p.Update(ui.NewInt(100), inside0, cons.Zero))
	require.True(t, p.TokensOwed0.Eq(ui.NewInt(100)))
	require.True(t, p.Liquidity.Eq(ui.NewInt(200)))
}

func TestUpdateUnderflow(t *testing.T) {
	l := NewLedger()
	p := l.Get("alice", -60, 60)
	require.NoError(t, p.Update(ui.NewInt(50), cons.Zero, cons.Zero))

	err := p.Update(new(ui.Int).Neg(ui.NewInt(51)), cons.Zero, cons.Zero)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	// Failed update leaves the record untouched.
	require.True(t, p.Liquidity.Eq(ui.NewInt(50)))
}

func TestPurge(t *testing.T) {
	l := NewLedger()
	p := l.Get("alice", -60, 60)
	require.NoError(t, p.Update(ui.NewInt(10), cons.Zero, cons.Zero))

	// Holding liquidity: not purgeable.
	l.Purge("alice", -60, 60)
	require.Equal(t, 1, l.Len())

	require.NoError(t, p.Update(new(ui.Int).Neg(ui.NewInt(10)), cons.Zero, cons.Zero))
	l.Purge("alice", -60, 60)
	require.Equal(t, 0, l.Len())
}

func TestKeyIsolation(t *testing.T) {
	l := NewLedger()
	a := l.Get("alice", -60, 60)
	b := l.Get("bob", -60, 60)
	c := l.Get("alice", -120, 60)
	require.NoError(t, a.Update(ui.NewInt(1), cons.Zero, cons.Zero))
	require.True(t, b.Liquidity.IsZero())
	require.True(t, c.Liquidity.IsZero())
	require.Equal(t, 3, l.Len())
}
