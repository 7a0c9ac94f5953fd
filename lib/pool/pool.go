package pool

import (
	"fmt"
	"sync"

	"github.com/fluxline/clpool/lib/position"
	"github.com/fluxline/clpool/lib/sqrtprice"
	"github.com/fluxline/clpool/lib/tick"
	"github.com/fluxline/clpool/lib/tickbitmap"
	"github.com/fluxline/clpool/lib/tickmath"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config carries a pool's immutable construction parameters, supplied by
// the registry and read once.
type Config struct {
	ID          string
	Token0      string
	Token1      string
	Fee         int // pips
	TickSpacing int
}

// Pool owns all mutable state of one market: the current price and tick,
// active liquidity, the global fee-growth accumulators, and the tick and
// position ledgers. Operations serialize on the internal mutex; settlement
// callbacks run while it is held, so callbacks must not reenter the pool.
type Pool struct {
	mu sync.Mutex

	id                  string
	token0              string
	token1              string
	fee                 int
	tickSpacing         int
	maxLiquidityPerTick *ui.Int

	sqrtPriceX96         *ui.Int
	tickCurrent          int
	liquidity            *ui.Int
	feeGrowthGlobal0X128 *ui.Int
	feeGrowthGlobal1X128 *ui.Int

	ticks     *tick.Ledger
	bitmap    *tickbitmap.Bitmap
	positions *position.Ledger

	settlement Settlement
	recorder   Recorder
	log        *zap.Logger
}

func New(cfg Config, settlement Settlement, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		id:                   cfg.ID,
		token0:               cfg.Token0,
		token1:               cfg.Token1,
		fee:                  cfg.Fee,
		tickSpacing:          cfg.TickSpacing,
		maxLiquidityPerTick:  tickmath.TickSpacingToMaxLiquidityPerTick(cfg.TickSpacing),
		sqrtPriceX96:         new(ui.Int),
		liquidity:            new(ui.Int),
		feeGrowthGlobal0X128: new(ui.Int),
		feeGrowthGlobal1X128: new(ui.Int),
		ticks:                tick.NewLedger(),
		bitmap:               tickbitmap.NewBitmap(),
		positions:            position.NewLedger(),
		settlement:           settlement,
		log:                  logger.With(zap.String("pool", cfg.ID)),
	}
}

// SetRecorder attaches an event sink for committed operations.
func (p *Pool) SetRecorder(r Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

// Initialize sets the starting price. Every other operation requires it.
func (p *Pool) Initialize(sqrtPriceX96 *ui.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.sqrtPriceX96.IsZero() {
		return ErrAlreadyInitialized
	}
	t, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return err
	}
	p.sqrtPriceX96 = sqrtPriceX96.Clone()
	p.tickCurrent = t

	p.log.Info("pool initialized",
		zap.String("sqrtPriceX96", sqrtPriceX96.ToBig().String()),
		zap.Int("tick", t))
	p.emit(Event{
		Kind:         EventInitialize,
		SqrtPriceX96: p.sqrtPriceX96.ToBig().String(),
		Liquidity:    p.liquidity.ToBig().String(),
		Tick:         p.tickCurrent,
		Amount0:      "0",
		Amount1:      "0",
	})
	return nil
}

// Mint adds liquidity to [tickLower, tickUpper) for owner. The computed
// token amounts are pulled through the pay callback and verified against
// the pool's balances; on under-delivery all ledger effects are undone.
func (p *Pool) Mint(owner string, tickLower, tickUpper int, amount *ui.Int, data []byte, pay PayCallback) (*ui.Int, *ui.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sqrtPriceX96.IsZero() {
		return nil, nil, ErrNotInitialized
	}
	if amount.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	_, amount0, amount1, err := p.modifyPosition(owner, tickLower, tickUpper, amount)
	if err != nil {
		return nil, nil, err
	}

	if err := p.pullPayment(amount0, amount1, data, pay, ErrInsufficientPayment); err != nil {
		// Undo: the inverse delta restores ticks, bitmap, active liquidity
		// and the position. No fee growth happened in between, so the
		// position's owed balances are untouched.
		neg := new(ui.Int).Neg(amount)
		if _, _, _, rbErr := p.modifyPosition(owner, tickLower, tickUpper, neg); rbErr != nil {
			p.log.Error("mint rollback failed", zap.Error(rbErr))
		}
		p.positions.Purge(owner, tickLower, tickUpper)
		return nil, nil, err
	}

	p.log.Info("mint",
		zap.String("owner", owner),
		zap.Int("tickLower", tickLower),
		zap.Int("tickUpper", tickUpper),
		zap.String("liquidity", amount.ToBig().String()),
		zap.String("amount0", amount0.ToBig().String()),
		zap.String("amount1", amount1.ToBig().String()))
	p.emit(Event{
		Kind:         EventMint,
		Owner:        owner,
		TickLower:    tickLower,
		TickUpper:    tickUpper,
		Amount0:      SignedDecimal(amount0),
		Amount1:      SignedDecimal(amount1),
		SqrtPriceX96: p.sqrtPriceX96.ToBig().String(),
		Liquidity:    p.liquidity.ToBig().String(),
		Tick:         p.tickCurrent,
	})
	return amount0, amount1, nil
}

// Burn removes liquidity from the position. The freed token amounts are
// not transferred: they accrue into the position's owed balances until a
// Collect. A zero amount is a legal fee sync for the owner's position.
func (p *Pool) Burn(owner string, tickLower, tickUpper int, amount *ui.Int) (*ui.Int, *ui.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sqrtPriceX96.IsZero() {
		return nil, nil, ErrNotInitialized
	}
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	if amount.Sign() > 0 {
		pos, ok := p.positions.Peek(owner, tickLower, tickUpper)
		if !ok || pos.Liquidity.Cmp(amount) < 0 {
			return nil, nil, position.ErrInsufficientLiquidity
		}
	} else if _, ok := p.positions.Peek(owner, tickLower, tickUpper); !ok {
		// A zero burn is a fee sync; with no position there is nothing to
		// sync and no reason to materialize tick or position records.
		return new(ui.Int), new(ui.Int), nil
	}

	neg := new(ui.Int).Neg(amount)
	pos, amount0, amount1, err := p.modifyPosition(owner, tickLower, tickUpper, neg)
	if err != nil {
		return nil, nil, err
	}

	owed0 := new(ui.Int).Neg(amount0)
	owed1 := new(ui.Int).Neg(amount1)
	pos.TokensOwed0.Add(pos.TokensOwed0, owed0)
	pos.TokensOwed1.Add(pos.TokensOwed1, owed1)

	p.log.Info("burn",
		zap.String("owner", owner),
		zap.Int("tickLower", tickLower),
		zap.Int("tickUpper", tickUpper),
		zap.String("liquidity", amount.ToBig().String()),
		zap.String("amount0", owed0.ToBig().String()),
		zap.String("amount1", owed1.ToBig().String()))
	p.emit(Event{
		Kind:         EventBurn,
		Owner:        owner,
		TickLower:    tickLower,
		TickUpper:    tickUpper,
		Amount0:      SignedDecimal(amount0),
		Amount1:      SignedDecimal(amount1),
		SqrtPriceX96: p.sqrtPriceX96.ToBig().String(),
		Liquidity:    p.liquidity.ToBig().String(),
		Tick:         p.tickCurrent,
	})
	return owed0, owed1, nil
}

// Collect pays out up to the requested maxima of the position's owed
// balances to recipient through the settlement collaborator. Collecting
// from an empty or unknown position is a no-op returning zeros.
func (p *Pool) Collect(owner string, tickLower, tickUpper int, recipient string, amount0Max, amount1Max *ui.Int) (*ui.Int, *ui.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sqrtPriceX96.IsZero() {
		return nil, nil, ErrNotInitialized
	}
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	pos, ok := p.positions.Peek(owner, tickLower, tickUpper)
	if !ok {
		return new(ui.Int), new(ui.Int), nil
	}

	amount0 := uiMin(pos.TokensOwed0, amount0Max)
	amount1 := uiMin(pos.TokensOwed1, amount1Max)

	if amount0.Sign() > 0 {
		if err := p.settlement.Transfer(p.token0, p.id, recipient, amount0); err != nil {
			return nil, nil, fmt.Errorf("collect token0: %w", err)
		}
		pos.TokensOwed0.Sub(pos.TokensOwed0, amount0)
	}
	if amount1.Sign() > 0 {
		if err := p.settlement.Transfer(p.token1, p.id, recipient, amount1); err != nil {
			return nil, nil, fmt.Errorf("collect token1: %w", err)
		}
		pos.TokensOwed1.Sub(pos.TokensOwed1, amount1)
	}
	p.positions.Purge(owner, tickLower, tickUpper)

	p.log.Info("collect",
		zap.String("owner", owner),
		zap.String("recipient", recipient),
		zap.Int("tickLower", tickLower),
		zap.Int("tickUpper", tickUpper),
		zap.String("amount0", amount0.ToBig().String()),
		zap.String("amount1", amount1.ToBig().String()))
	p.emit(Event{
		Kind:         EventCollect,
		Owner:        owner,
		Recipient:    recipient,
		TickLower:    tickLower,
		TickUpper:    tickUpper,
		Amount0:      SignedDecimal(new(ui.Int).Neg(amount0)),
		Amount1:      SignedDecimal(new(ui.Int).Neg(amount1)),
		SqrtPriceX96: p.sqrtPriceX96.ToBig().String(),
		Liquidity:    p.liquidity.ToBig().String(),
		Tick:         p.tickCurrent,
	})
	return amount0, amount1, nil
}

func (p *Pool) checkTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return ErrInvalidRange
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return tickmath.ErrTickRange
	}
	if tickLower%p.tickSpacing != 0 || tickUpper%p.tickSpacing != 0 {
		return ErrInvalidRange
	}
	return nil
}

// modifyPosition applies a signed liquidity delta to the two boundary
// ticks, the bitmap, the position record and, when the current price is
// inside the range, the active liquidity. It returns the token amounts
// (signed: positive owed to the pool) implied by the delta at the current
// price, split three ways on where the price sits relative to the range:
// outside the range only the asset ahead of the price is involved.
func (p *Pool) modifyPosition(owner string, tickLower, tickUpper int, liquidityDelta *ui.Int) (*position.Info, *ui.Int, *ui.Int, error) {
	flippedLower, err := p.ticks.Update(tickLower, p.tickCurrent, liquidityDelta,
		p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, false, p.maxLiquidityPerTick)
	if err != nil {
		return nil, nil, nil, err
	}
	flippedUpper, err := p.ticks.Update(tickUpper, p.tickCurrent, liquidityDelta,
		p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, true, p.maxLiquidityPerTick)
	if err != nil {
		p.revertTickUpdate(tickLower, liquidityDelta, false, flippedLower)
		return nil, nil, nil, err
	}

	if flippedLower {
		p.bitmap.Flip(tickLower, p.tickSpacing)
	}
	if flippedUpper {
		p.bitmap.Flip(tickUpper, p.tickSpacing)
	}

	inside0, inside1 := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.tickCurrent,
		p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128)

	pos := p.positions.Get(owner, tickLower, tickUpper)
	if err := pos.Update(liquidityDelta, inside0, inside1); err != nil {
		if flippedLower {
			p.bitmap.Flip(tickLower, p.tickSpacing)
		}
		if flippedUpper {
			p.bitmap.Flip(tickUpper, p.tickSpacing)
		}
		p.revertTickUpdate(tickLower, liquidityDelta, false, flippedLower)
		p.revertTickUpdate(tickUpper, liquidityDelta, true, flippedUpper)
		p.positions.Purge(owner, tickLower, tickUpper)
		return nil, nil, nil, err
	}

	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			p.ticks.Clear(tickLower)
		}
		if flippedUpper {
			p.ticks.Clear(tickUpper)
		}
	}

	amount0 := new(ui.Int)
	amount1 := new(ui.Int)
	lowerRatio, err := tickmath.GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	upperRatio, err := tickmath.GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}

	switch {
	case p.tickCurrent < tickLower:
		amount0 = sqrtprice.Amount0DeltaSigned(lowerRatio, upperRatio, liquidityDelta)
	case p.tickCurrent < tickUpper:
		amount0 = sqrtprice.Amount0DeltaSigned(p.sqrtPriceX96, upperRatio, liquidityDelta)
		amount1 = sqrtprice.Amount1DeltaSigned(lowerRatio, p.sqrtPriceX96, liquidityDelta)
		p.liquidity.Add(p.liquidity, liquidityDelta)
	default:
		amount1 = sqrtprice.Amount1DeltaSigned(lowerRatio, upperRatio, liquidityDelta)
	}
	return pos, amount0, amount1, nil
}

// revertTickUpdate undoes one ticks.Update call. The inverse delta cannot
// fail: it removes exactly what was just added.
func (p *Pool) revertTickUpdate(index int, liquidityDelta *ui.Int, upper bool, flipped bool) {
	neg := new(ui.Int).Neg(liquidityDelta)
	if _, err := p.ticks.Update(index, p.tickCurrent, neg,
		p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, upper, p.maxLiquidityPerTick); err != nil {
		p.log.Error("tick revert failed", zap.Int("tick", index), zap.Error(err))
		return
	}
	if flipped {
		p.ticks.Clear(index)
	}
}

// pullPayment verifies the pay callback delivered the owed amounts by
// comparing the pool's balances before and after.
func (p *Pool) pullPayment(amount0, amount1 *ui.Int, data []byte, pay PayCallback, underErr error) error {
	owed0 := uiMaxZero(amount0)
	owed1 := uiMaxZero(amount1)
	if owed0.IsZero() && owed1.IsZero() {
		return nil
	}
	if pay == nil {
		return underErr
	}

	before0 := p.settlement.BalanceOf(p.id, p.token0)
	before1 := p.settlement.BalanceOf(p.id, p.token1)

	if err := pay(owed0, owed1, data); err != nil {
		return fmt.Errorf("%w: %v", underErr, err)
	}

	if owed0.Sign() > 0 {
		after0 := p.settlement.BalanceOf(p.id, p.token0)
		if new(ui.Int).Sub(after0, before0).Cmp(owed0) < 0 {
			return underErr
		}
	}
	if owed1.Sign() > 0 {
		after1 := p.settlement.BalanceOf(p.id, p.token1)
		if new(ui.Int).Sub(after1, before1).Cmp(owed1) < 0 {
			return underErr
		}
	}
	return nil
}

func (p *Pool) emit(ev Event) {
	if p.recorder == nil {
		return
	}
	ev.Pool = p.id
	if err := p.recorder.Record(ev); err != nil {
		p.log.Warn("event recorder failed", zap.Error(err))
	}
}

func uiMin(a, b *ui.Int) *ui.Int {
	if a.Cmp(b) <= 0 {
		return a.Clone()
	}
	return b.Clone()
}

// uiMaxZero clamps a signed value at zero.
func uiMaxZero(x *ui.Int) *ui.Int {
	if x.Sign() > 0 {
		return x.Clone()
	}
	return new(ui.Int)
}
