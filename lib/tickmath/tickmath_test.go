package tickmath

import (
	"fmt"
	"math/big"
	"testing"

	cons "github.com/fluxline/clpool/lib/constants"

	ui "github.com/holiman/uint256"
)

func TestGetSqrtRatioAtTickBounds(t *testing.T) {
	if _, err := GetSqrtRatioAtTick(MinTick - 1); err != ErrTickRange {
		t.Fatalf("expected ErrTickRange, got %v", err)
	}
	if _, err := GetSqrtRatioAtTick(MaxTick + 1); err != ErrTickRange {
		t.Fatalf("expected ErrTickRange, got %v", err)
	}

	low, err := GetSqrtRatioAtTick(MinTick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !low.Eq(MinSqrtRatio) {
		t.Fatalf("ratio at MinTick = %v, want %v", low, MinSqrtRatio)
	}

	high, err := GetSqrtRatioAtTick(MaxTick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !high.Eq(MaxSqrtRatio) {
		t.Fatalf("ratio at MaxTick = %v, want %v", high, MaxSqrtRatio)
	}
}

func TestGetSqrtRatioAtTickZero(t *testing.T) {
	ratio, err := GetSqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ratio.Eq(cons.Q96) {
		t.Fatalf("ratio at tick 0 = %v, want %v", ratio, cons.Q96)
	}
}

func TestRoundTrip(t *testing.T) {
	ticks := []int{
		MinTick, MinTick + 1, -887220, -100000, -887272 / 2, -60, -1, 0, 1, 60,
		193200, 500000, 887220, MaxTick - 1, MaxTick,
	}
	for _, tick := range ticks {
		t.Run(fmt.Sprint(tick), func(t *testing.T) {
			ratio, err := GetSqrtRatioAtTick(tick)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := GetTickAtSqrtRatio(ratio)
			if tick == MaxTick {
				// MaxSqrtRatio itself is outside the half-open domain.
				if err != ErrSqrtRatioRange {
					t.Fatalf("expected ErrSqrtRatioRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tick {
				t.Fatalf("round trip of tick %d produced %d", tick, got)
			}
		})
	}
}

func TestRoundTripDense(t *testing.T) {
	for tick := -3000; tick <= 3000; tick += 7 {
		ratio, err := GetSqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("unexpected error at tick %d: %v", tick, err)
		}
		got, err := GetTickAtSqrtRatio(ratio)
		if err != nil {
			t.Fatalf("unexpected error at tick %d: %v", tick, err)
		}
		if got != tick {
			t.Fatalf("round trip of tick %d produced %d", tick, got)
		}
	}
}

func TestMonotonic(t *testing.T) {
	prev, err := GetSqrtRatioAtTick(-10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for tick := -9999; tick <= 10000; tick++ {
		ratio, err := GetSqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("unexpected error at tick %d: %v", tick, err)
		}
		if ratio.Cmp(prev) <= 0 {
			t.Fatalf("ratio not strictly increasing at tick %d", tick)
		}
		prev = ratio
	}
}

func TestGetTickAtSqrtRatioRoundsDown(t *testing.T) {
	// A price strictly between two tick ratios maps to the lower tick.
	a, _ := GetSqrtRatioAtTick(100)
	b, _ := GetSqrtRatioAtTick(101)
	mid := new(ui.Int).Add(a, new(ui.Int).Div(new(ui.Int).Sub(b, a), ui.NewInt(2)))
	tick, err := GetTickAtSqrtRatio(mid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != 100 {
		t.Fatalf("tick at mid-ratio = %d, want 100", tick)
	}
}

func TestGetTickAtSqrtRatioBounds(t *testing.T) {
	below := new(ui.Int).Sub(MinSqrtRatio, cons.One)
	if _, err := GetTickAtSqrtRatio(below); err != ErrSqrtRatioRange {
		t.Fatalf("expected ErrSqrtRatioRange, got %v", err)
	}
	if _, err := GetTickAtSqrtRatio(MaxSqrtRatio); err != ErrSqrtRatioRange {
		t.Fatalf("expected ErrSqrtRatioRange, got %v", err)
	}
	tick, err := GetTickAtSqrtRatio(MinSqrtRatio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != MinTick {
		t.Fatalf("tick at MinSqrtRatio = %d, want %d", tick, MinTick)
	}
}

func TestTickSpacingToMaxLiquidityPerTick(t *testing.T) {
	tests := []struct {
		spacing int
		want    string
	}{
		{10, "1917569901783203986719870431555990"},
		{60, "11505743598341114571880798222544994"},
		{200, "38350317471085141830651933667504588"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.spacing), func(t *testing.T) {
			wantBig, _ := new(big.Int).SetString(tt.want, 10)
			want, _ := ui.FromBig(wantBig)
			got := TickSpacingToMaxLiquidityPerTick(tt.spacing)
			if !got.Eq(want) {
				t.Fatalf("spacing %d: got %v want %v", tt.spacing, got, want)
			}
		})
	}
}
