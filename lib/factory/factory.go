// Package factory creates and tracks pools. Each (token pair, fee tier)
// combination maps to at most one pool, with the pair stored in
// canonical order so lookups are direction-free.
package factory

import (
	"errors"
	"fmt"
	"sync"

	cons "github.com/fluxline/clpool/lib/constants"
	"github.com/fluxline/clpool/lib/pool"

	"go.uber.org/zap"
)

var (
	ErrIdenticalTokens = errors.New("factory: identical tokens")
	ErrEmptyToken      = errors.New("factory: empty token symbol")
	ErrUnknownFee      = errors.New("factory: unknown fee tier")
	ErrPoolExists      = errors.New("factory: pool already exists")
	ErrPoolNotFound    = errors.New("factory: pool not found")
)

type Factory struct {
	mu         sync.Mutex
	pools      map[string]*pool.Pool
	settlement pool.Settlement
	recorder   pool.Recorder
	log        *zap.Logger
}

func New(settlement pool.Settlement, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		pools:      make(map[string]*pool.Pool),
		settlement: settlement,
		log:        logger,
	}
}

// SetRecorder attaches an event sink to every pool created from now on.
func (f *Factory) SetRecorder(r pool.Recorder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorder = r
}

// SortTokens puts a token pair in canonical order.
func SortTokens(tokenA, tokenB string) (string, string) {
	if tokenA > tokenB {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PoolID names the settlement account a pool holds its reserves under.
func PoolID(token0, token1 string, fee int) string {
	return fmt.Sprintf("pool:%s/%s/%d", token0, token1, fee)
}

// Create builds the pool for the pair and fee tier. The tier fixes the
// tick spacing. Token order does not matter.
func (f *Factory) Create(tokenA, tokenB string, fee int) (*pool.Pool, error) {
	if tokenA == "" || tokenB == "" {
		return nil, ErrEmptyToken
	}
	if tokenA == tokenB {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalTokens, tokenA)
	}
	spacing, ok := cons.TickSpacings[fee]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFee, fee)
	}

	token0, token1 := SortTokens(tokenA, tokenB)
	id := PoolID(token0, token1, fee)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pools[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolExists, id)
	}

	p := pool.New(pool.Config{
		ID:          id,
		Token0:      token0,
		Token1:      token1,
		Fee:         fee,
		TickSpacing: spacing,
	}, f.settlement, f.log)
	if f.recorder != nil {
		p.SetRecorder(f.recorder)
	}
	f.pools[id] = p

	f.log.Info("pool created",
		zap.String("pool", id),
		zap.Int("fee", fee),
		zap.Int("tickSpacing", spacing))
	return p, nil
}

// Get looks the pool up by pair and fee, in either token order.
func (f *Factory) Get(tokenA, tokenB string, fee int) (*pool.Pool, error) {
	token0, token1 := SortTokens(tokenA, tokenB)
	id := PoolID(token0, token1, fee)

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return p, nil
}

// Each visits every pool.
func (f *Factory) Each(fn func(*pool.Pool)) {
	f.mu.Lock()
	pools := make([]*pool.Pool, 0, len(f.pools))
	for _, p := range f.pools {
		pools = append(pools, p)
	}
	f.mu.Unlock()
	for _, p := range pools {
		fn(p)
	}
}

func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pools)
}
