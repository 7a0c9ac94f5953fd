package pool

import (
	ui "github.com/holiman/uint256"
)

type EventKind string

const (
	EventInitialize EventKind = "initialize"
	EventMint       EventKind = "mint"
	EventBurn       EventKind = "burn"
	EventCollect    EventKind = "collect"
	EventSwap       EventKind = "swap"
)

// Event is the record emitted after every committed state transition, for
// off-engine indexing. Amounts are signed decimal strings from the pool's
// perspective: positive flows into the pool.
type Event struct {
	Kind         EventKind `json:"kind"`
	Pool         string    `json:"pool"`
	Owner        string    `json:"owner,omitempty"`
	Recipient    string    `json:"recipient,omitempty"`
	TickLower    int       `json:"tickLower,omitempty"`
	TickUpper    int       `json:"tickUpper,omitempty"`
	Amount0      string    `json:"amount0"`
	Amount1      string    `json:"amount1"`
	SqrtPriceX96 string    `json:"sqrtPriceX96"`
	Liquidity    string    `json:"liquidity"`
	Tick         int       `json:"tick"`
}

// Recorder receives committed events. Recorder failures are logged and do
// not fail the operation: observers are not part of correctness.
type Recorder interface {
	Record(Event) error
}

// SignedDecimal renders a two's-complement uint256 as a signed decimal
// string.
func SignedDecimal(x *ui.Int) string {
	if x.Sign() < 0 {
		return "-" + new(ui.Int).Neg(x).ToBig().String()
	}
	return x.ToBig().String()
}
