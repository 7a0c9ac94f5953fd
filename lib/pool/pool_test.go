package pool

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/fluxline/clpool/lib/bank"
	cons "github.com/fluxline/clpool/lib/constants"
	"github.com/fluxline/clpool/lib/fullmath"
	"github.com/fluxline/clpool/lib/position"
	"github.com/fluxline/clpool/lib/sqrtprice"
	"github.com/fluxline/clpool/lib/tickmath"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	testPoolID = "pool:T0/T1/3000"
	lp         = "alice"
	trader     = "bob"
)

type fixture struct {
	bank *bank.Bank
	pool *Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bank.New()
	funds := ui.MustFromDecimal("1000000000000000000000000")
	for _, acct := range []string{lp, trader} {
		b.Credit(acct, "T0", funds)
		b.Credit(acct, "T1", funds)
	}
	p := New(Config{
		ID:          testPoolID,
		Token0:      "T0",
		Token1:      "T1",
		Fee:         3000,
		TickSpacing: 60,
	}, b, nil)
	return &fixture{bank: b, pool: p}
}

func (f *fixture) initAtTick(t *testing.T, tick int) {
	t.Helper()
	price, err := tickmath.GetSqrtRatioAtTick(tick)
	require.NoError(t, err)
	require.NoError(t, f.pool.Initialize(price))
}

func (f *fixture) payFrom(account string) func(*ui.Int, *ui.Int, []byte) error {
	return f.bank.Payer(account, testPoolID, "T0", "T1")
}

func (f *fixture) mint(t *testing.T, owner string, lower, upper int, liquidity uint64) (*ui.Int, *ui.Int) {
	t.Helper()
	a0, a1, err := f.pool.Mint(owner, lower, upper, ui.NewInt(liquidity), nil, f.payFrom(owner))
	require.NoError(t, err)
	return a0, a1
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.pool.Initialized())

	f.initAtTick(t, 0)
	require.True(t, f.pool.Initialized())
	require.Equal(t, 0, f.pool.CurrentTick())
	require.Equal(t, cons.Q96.ToBig().String(), f.pool.CurrentPrice().ToBig().String())
}

func TestInitializeTwice(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	err := f.pool.Initialize(cons.Q96.Clone())
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeBadPrice(t *testing.T) {
	f := newFixture(t)
	err := f.pool.Initialize(ui.NewInt(1))
	require.ErrorIs(t, err, tickmath.ErrSqrtRatioRange)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.pool.Mint(lp, -60, 60, ui.NewInt(1000), nil, f.payFrom(lp))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, _, err = f.pool.Burn(lp, -60, 60, ui.NewInt(1000))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, _, err = f.pool.Swap(trader, true, ui.NewInt(1000), nil, nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	_, _, err := f.pool.Mint(lp, -60, 60, new(ui.Int), nil, f.payFrom(lp))
	require.ErrorIs(t, err, ErrZeroAmount)

	_, _, err = f.pool.Mint(lp, 60, 60, ui.NewInt(1), nil, f.payFrom(lp))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = f.pool.Mint(lp, 120, 60, ui.NewInt(1), nil, f.payFrom(lp))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = f.pool.Mint(lp, -50, 60, ui.NewInt(1), nil, f.payFrom(lp))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = f.pool.Mint(lp, -887280, 60, ui.NewInt(1), nil, f.payFrom(lp))
	require.ErrorIs(t, err, tickmath.ErrTickRange)
}

func TestMintAmounts(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	// Straddling the current price takes both tokens.
	a0, a1 := f.mint(t, lp, -60, 60, 1_000_000_000)
	require.Positive(t, a0.Sign())
	require.Positive(t, a1.Sign())

	// Entirely above the price takes only token0.
	a0, a1 = f.mint(t, lp, 60, 120, 1_000_000_000)
	require.Positive(t, a0.Sign())
	require.True(t, a1.IsZero())

	// Entirely below takes only token1.
	a0, a1 = f.mint(t, lp, -120, -60, 1_000_000_000)
	require.True(t, a0.IsZero())
	require.Positive(t, a1.Sign())

	// Only the straddling range contributes to active liquidity.
	require.Equal(t, uint64(1_000_000_000), f.pool.TotalLiquidity().Uint64())
}

func TestMintPaymentVerified(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	short := func(a0, a1 *ui.Int, _ []byte) error {
		if a0.Sign() > 0 {
			half := new(ui.Int).Rsh(a0, 1)
			return f.bank.Transfer("T0", lp, testPoolID, half)
		}
		return nil
	}
	_, _, err := f.pool.Mint(lp, -60, 60, ui.NewInt(1_000_000), nil, short)
	require.ErrorIs(t, err, ErrInsufficientPayment)

	// Everything rolled back.
	require.True(t, f.pool.TotalLiquidity().IsZero())
	_, ok := f.pool.PositionInfo(lp, -60, 60)
	require.False(t, ok)
	require.False(t, f.pool.TickInfo(-60).Initialized())
	require.False(t, f.pool.TickInfo(60).Initialized())
}

func TestMintNilCallback(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	_, _, err := f.pool.Mint(lp, -60, 60, ui.NewInt(1_000_000), nil, nil)
	require.ErrorIs(t, err, ErrInsufficientPayment)
	require.True(t, f.pool.TotalLiquidity().IsZero())
}

func TestBurnMoreThanOwned(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 1000)

	_, _, err := f.pool.Burn(lp, -60, 60, ui.NewInt(1001))
	require.ErrorIs(t, err, position.ErrInsufficientLiquidity)

	_, _, err = f.pool.Burn(trader, -60, 60, ui.NewInt(1))
	require.ErrorIs(t, err, position.ErrInsufficientLiquidity)
}

func TestBurnZeroUnknownPosition(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	a0, a1, err := f.pool.Burn(lp, -60, 60, new(ui.Int))
	require.NoError(t, err)
	require.True(t, a0.IsZero())
	require.True(t, a1.IsZero())

	// Nothing was materialized by the no-op sync.
	require.Equal(t, 0, f.pool.ticks.Len())
	require.Equal(t, 0, f.pool.positions.Len())
	_, ok := f.pool.PositionInfo(lp, -60, 60)
	require.False(t, ok)
}

func TestMintBurnCollectRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	minted0, minted1 := f.mint(t, lp, -60, 60, 1_000_000_000)

	owed0, owed1, err := f.pool.Burn(lp, -60, 60, ui.NewInt(1_000_000_000))
	require.NoError(t, err)

	// Mint rounds against the owner, burn rounds in the pool's favor, so
	// each side may differ by at most one unit.
	diff0 := new(ui.Int).Sub(minted0, owed0)
	diff1 := new(ui.Int).Sub(minted1, owed1)
	require.LessOrEqual(t, diff0.Uint64(), uint64(1))
	require.LessOrEqual(t, diff1.Uint64(), uint64(1))

	got0, got1, err := f.pool.Collect(lp, -60, 60, lp, cons.MaxUint128, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, got0.Eq(owed0))
	require.True(t, got1.Eq(owed1))

	// The position is gone and liquidity drained.
	_, ok := f.pool.PositionInfo(lp, -60, 60)
	require.False(t, ok)
	require.True(t, f.pool.TotalLiquidity().IsZero())
	require.False(t, f.pool.TickInfo(-60).Initialized())
	require.False(t, f.pool.TickInfo(60).Initialized())
}

func TestCollectRepeatedNoOp(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 1_000_000)

	_, _, err := f.pool.Burn(lp, -60, 60, ui.NewInt(1_000_000))
	require.NoError(t, err)

	first0, first1, err := f.pool.Collect(lp, -60, 60, lp, cons.MaxUint128, cons.MaxUint128)
	require.NoError(t, err)
	require.Positive(t, first0.Sign())
	require.Positive(t, first1.Sign())

	again0, again1, err := f.pool.Collect(lp, -60, 60, lp, cons.MaxUint128, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, again0.IsZero())
	require.True(t, again1.IsZero())
}

func TestCollectUnknownPosition(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	a0, a1, err := f.pool.Collect("nobody", -60, 60, "nobody", cons.MaxUint128, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, a0.IsZero())
	require.True(t, a1.IsZero())
}

func TestCollectPartial(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 1_000_000)

	owed0, _, err := f.pool.Burn(lp, -60, 60, ui.NewInt(1_000_000))
	require.NoError(t, err)
	require.Greater(t, owed0.Uint64(), uint64(10))

	got0, _, err := f.pool.Collect(lp, -60, 60, lp, ui.NewInt(10), cons.MaxUint128)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got0.Uint64())

	pos, ok := f.pool.PositionInfo(lp, -60, 60)
	require.True(t, ok)
	want := new(ui.Int).SubUint64(owed0, 10)
	require.True(t, pos.TokensOwed0.Eq(want))
}

func TestSwapValidation(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 1_000_000_000)

	_, _, err := f.pool.Swap(trader, true, new(ui.Int), nil, nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrZeroAmount)

	// Limit equal to the current price can never be satisfied.
	_, _, err = f.pool.Swap(trader, true, ui.NewInt(1000), f.pool.CurrentPrice(), nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrInvalidPriceLimit)

	// Limit on the wrong side of the price for the direction.
	above := new(ui.Int).AddUint64(f.pool.CurrentPrice(), 1)
	_, _, err = f.pool.Swap(trader, true, ui.NewInt(1000), above, nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrInvalidPriceLimit)

	below := new(ui.Int).SubUint64(f.pool.CurrentPrice(), 1)
	_, _, err = f.pool.Swap(trader, false, ui.NewInt(1000), below, nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrInvalidPriceLimit)

	// Limits at the domain edges are rejected too.
	_, _, err = f.pool.Swap(trader, true, ui.NewInt(1000), tickmath.MinSqrtRatio.Clone(), nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrInvalidPriceLimit)
	_, _, err = f.pool.Swap(trader, false, ui.NewInt(1000), tickmath.MaxSqrtRatio.Clone(), nil, f.payFrom(trader))
	require.ErrorIs(t, err, ErrInvalidPriceLimit)
}

func TestSwapExactInputWithinRange(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	const liquidity = 2_000_000_000_000_000
	f.mint(t, lp, -60, 60, liquidity)

	priceBefore := f.pool.CurrentPrice()
	traderT0Before := f.bank.BalanceOf(trader, "T0")
	traderT1Before := f.bank.BalanceOf(trader, "T1")
	amountIn := ui.NewInt(1_000_000)

	amount0, amount1, err := f.pool.Swap(trader, true, amountIn, nil, nil, f.payFrom(trader))
	require.NoError(t, err)

	// The full input is consumed, remainder-after-rounding going to fees.
	require.True(t, amount0.Eq(amountIn))
	require.Negative(t, amount1.Sign())

	// Output matches the closed form for a single in-range step.
	l := ui.NewInt(liquidity)
	lessFee := new(ui.Int).Mul(amountIn, ui.NewInt(997_000))
	lessFee.Div(lessFee, cons.E6)
	wantPrice := sqrtprice.NextFromInput(priceBefore, l, lessFee, true)
	wantOut := sqrtprice.Amount1Delta(wantPrice, priceBefore, l, false)

	gotOut := new(ui.Int).Neg(amount1)
	require.True(t, gotOut.Eq(wantOut))
	require.True(t, f.pool.CurrentPrice().Eq(wantPrice))

	// No tick was crossed, so active liquidity is untouched.
	require.True(t, f.pool.TotalLiquidity().Eq(l))

	// Fees accrued into the global accumulator for token0 only.
	chargedIn := sqrtprice.Amount0Delta(wantPrice, priceBefore, l, true)
	fee := new(ui.Int).Sub(amountIn, chargedIn)
	fg0, fg1 := f.pool.FeeGrowthGlobal()
	wantGrowth := new(ui.Int).Mul(fee, cons.Q128)
	wantGrowth.Div(wantGrowth, l)
	require.True(t, fg0.Eq(wantGrowth))
	require.True(t, fg1.IsZero())

	// Trader paid token0 and received token1.
	paid := new(ui.Int).Sub(traderT0Before, f.bank.BalanceOf(trader, "T0"))
	received := new(ui.Int).Sub(f.bank.BalanceOf(trader, "T1"), traderT1Before)
	require.True(t, paid.Eq(amountIn))
	require.True(t, received.Eq(gotOut))
}

func TestSwapExactOutput(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 2_000_000_000_000_000)

	want := ui.NewInt(500_000)
	specified := new(ui.Int).Neg(want)

	amount0, amount1, err := f.pool.Swap(trader, true, specified, nil, nil, f.payFrom(trader))
	require.NoError(t, err)

	got1 := new(ui.Int).Neg(amount1)
	require.True(t, got1.Eq(want))
	require.Positive(t, amount0.Sign())

	// Input exceeds output value: the price moved plus the fee.
	require.Greater(t, amount0.Uint64(), want.Uint64())
}

func TestSwapCrossesTick(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	f.mint(t, lp, -60, 60, 1_000_000_000)
	f.mint(t, lp, 0, 120, 500_000_000)
	require.Equal(t, uint64(1_500_000_000), f.pool.TotalLiquidity().Uint64())

	limit, err := tickmath.GetSqrtRatioAtTick(90)
	require.NoError(t, err)

	amount0, amount1, err := f.pool.Swap(trader, false, ui.NewInt(20_000_000), limit, nil, f.payFrom(trader))
	require.NoError(t, err)
	require.Positive(t, amount1.Sign())
	require.Negative(t, amount0.Sign())

	// The price ran to the limit, past tick 60, so only the [0, 120)
	// range is active now.
	require.True(t, f.pool.CurrentPrice().Eq(limit))
	require.Equal(t, 90, f.pool.CurrentTick())
	require.Equal(t, uint64(500_000_000), f.pool.TotalLiquidity().Uint64())

	// Crossing recorded the growth split on tick 60: the input token's
	// accumulator at cross time, the untouched one for token0.
	info := f.pool.TickInfo(60)
	require.True(t, info.Initialized())
	require.Positive(t, info.FeeGrowthOutside1X128.Sign())
	require.True(t, info.FeeGrowthOutside0X128.IsZero())

	// Fees after the cross accrued to token1's global only, so the
	// outside snapshot is a strict prefix of it.
	_, global1 := f.pool.FeeGrowthGlobal()
	require.Negative(t, info.FeeGrowthOutside1X128.Cmp(global1))

	// Each range earns exactly the growth of the path segment it was
	// active for: [-60,60) only up to the cross, [0,120) the whole way.
	_, _, err = f.pool.Burn(lp, -60, 60, new(ui.Int))
	require.NoError(t, err)
	_, _, err = f.pool.Burn(lp, 0, 120, new(ui.Int))
	require.NoError(t, err)

	posA, ok := f.pool.PositionInfo(lp, -60, 60)
	require.True(t, ok)
	posB, ok := f.pool.PositionInfo(lp, 0, 120)
	require.True(t, ok)

	wantA := fullmath.MulDiv(ui.NewInt(1_000_000_000), info.FeeGrowthOutside1X128, cons.Q128)
	wantB := fullmath.MulDiv(ui.NewInt(500_000_000), global1, cons.Q128)
	require.True(t, posA.TokensOwed1.Eq(wantA))
	require.True(t, posB.TokensOwed1.Eq(wantB))
	require.True(t, posA.TokensOwed0.IsZero())
	require.True(t, posB.TokensOwed0.IsZero())
}

func TestLiquidityInvariantUnderRandomOps(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)

	// A backstop range that is never burned keeps the price walking
	// through the contested region instead of running off to the bounds.
	f.mint(t, lp, -720, 720, 1_000_000_000)

	ranges := [][2]int{{-120, 120}, {-60, 60}, {0, 120}, {60, 180}, {-180, -60}, {-240, 240}}
	owned := make([]uint64, len(ranges))

	checkInvariant := func() {
		tick := f.pool.CurrentTick()
		want := new(ui.Int)
		f.pool.EachPosition(func(pos *position.Info) {
			if pos.TickLower <= tick && tick < pos.TickUpper {
				want.Add(want, pos.Liquidity)
			}
		})
		require.True(t, f.pool.TotalLiquidity().Eq(want),
			"tick %d: liquidity %s, sum of in-range positions %s",
			tick, f.pool.TotalLiquidity().ToBig(), want.ToBig())
	}

	rng := rand.New(rand.NewSource(7))
	checkInvariant()
	for i := 0; i < 60; i++ {
		switch rng.Intn(4) {
		case 0:
			r := rng.Intn(len(ranges))
			amount := uint64(100_000_000 + rng.Intn(900_000_000))
			f.mint(t, lp, ranges[r][0], ranges[r][1], amount)
			owned[r] += amount
		case 1:
			r := rng.Intn(len(ranges))
			if owned[r] == 0 {
				break
			}
			portion := 1 + uint64(rng.Int63n(int64(owned[r])))
			_, _, err := f.pool.Burn(lp, ranges[r][0], ranges[r][1], ui.NewInt(portion))
			require.NoError(t, err)
			owned[r] -= portion
		default:
			zeroForOne := rng.Intn(2) == 0
			amount := ui.NewInt(uint64(1_000_000 + rng.Intn(8_000_000)))
			_, _, err := f.pool.Swap(trader, zeroForOne, amount, nil, nil, f.payFrom(trader))
			require.NoError(t, err)
		}
		checkInvariant()
	}
}

func TestSwapFeesCollectable(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 2_000_000_000_000)

	_, _, err := f.pool.Swap(trader, true, ui.NewInt(10_000_000), nil, nil, f.payFrom(trader))
	require.NoError(t, err)

	// A zero burn syncs accrued fees into the owed balances.
	a0, a1, err := f.pool.Burn(lp, -60, 60, new(ui.Int))
	require.NoError(t, err)
	require.True(t, a0.IsZero())
	require.True(t, a1.IsZero())

	pos, ok := f.pool.PositionInfo(lp, -60, 60)
	require.True(t, ok)
	require.Positive(t, pos.TokensOwed0.Sign())
	require.True(t, pos.TokensOwed1.IsZero())

	got0, _, err := f.pool.Collect(lp, -60, 60, lp, cons.MaxUint128, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, got0.Eq(pos.TokensOwed0))
}

func TestSwapInsufficientInput(t *testing.T) {
	f := newFixture(t)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 2_000_000_000_000)

	priceBefore := f.pool.CurrentPrice()
	liqBefore := f.pool.TotalLiquidity()
	poolT0 := f.bank.BalanceOf(testPoolID, "T0")
	poolT1 := f.bank.BalanceOf(testPoolID, "T1")

	broke := func(a0, a1 *ui.Int, _ []byte) error {
		return errors.New("payer refused")
	}
	_, _, err := f.pool.Swap(trader, true, ui.NewInt(1_000_000), nil, nil, broke)
	require.ErrorIs(t, err, ErrInsufficientInput)

	// Committed state and balances are unchanged, including the output
	// leg that was clawed back.
	require.True(t, f.pool.CurrentPrice().Eq(priceBefore))
	require.True(t, f.pool.TotalLiquidity().Eq(liqBefore))
	require.True(t, f.bank.BalanceOf(testPoolID, "T0").Eq(poolT0))
	require.True(t, f.bank.BalanceOf(testPoolID, "T1").Eq(poolT1))

	fg0, fg1 := f.pool.FeeGrowthGlobal()
	require.True(t, fg0.IsZero())
	require.True(t, fg1.IsZero())
}

func TestSwapRecordsEvents(t *testing.T) {
	f := newFixture(t)
	rec := &captureRecorder{}
	f.pool.SetRecorder(rec)
	f.initAtTick(t, 0)
	f.mint(t, lp, -60, 60, 2_000_000_000_000)

	_, _, err := f.pool.Swap(trader, true, ui.NewInt(1_000_000), nil, nil, f.payFrom(trader))
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	require.Equal(t, EventInitialize, rec.events[0].Kind)
	require.Equal(t, EventMint, rec.events[1].Kind)
	require.Equal(t, EventSwap, rec.events[2].Kind)
	require.Equal(t, testPoolID, rec.events[2].Pool)
}

type captureRecorder struct {
	events []Event
}

func (c *captureRecorder) Record(ev Event) error {
	c.events = append(c.events, ev)
	return nil
}
