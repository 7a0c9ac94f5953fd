package tickbitmap

import (
	"math/bits"

	ui "github.com/holiman/uint256"
)

// Bitmap tracks initialized ticks as one bit per spacing-aligned tick,
// packed into 256-bit words. Only touched words are materialized.
type Bitmap struct {
	words map[int]*ui.Int
}

func NewBitmap() *Bitmap {
	return &Bitmap{words: make(map[int]*ui.Int)}
}

func (b *Bitmap) Clone() *Bitmap {
	words := make(map[int]*ui.Int, len(b.words))
	for k, v := range b.words {
		words[k] = v.Clone()
	}
	return &Bitmap{words: words}
}

// position splits a compressed tick into its word and the bit within it.
func position(compressed int) (wordPos int, bitPos uint) {
	wordPos = compressed >> 8
	bitPos = uint(compressed & 0xff)
	return
}

// compress maps tick to tick/spacing rounding toward negative infinity.
func compress(tick, tickSpacing int) int {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed
}

// Flip toggles the initialized bit for tick. The tick must be aligned to
// the spacing; a misaligned tick is a caller bug.
func (b *Bitmap) Flip(tick, tickSpacing int) {
	if tick%tickSpacing != 0 {
		panic("tickbitmap: tick not aligned to spacing")
	}
	wordPos, bitPos := position(tick / tickSpacing)
	word, ok := b.words[wordPos]
	if !ok {
		word = new(ui.Int)
		b.words[wordPos] = word
	}
	mask := new(ui.Int).Lsh(ui.NewInt(1), bitPos)
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b.words, wordPos)
	}
}

// NextInitializedTickWithinOneWord returns the nearest initialized tick in
// the search direction within one word of the bitmap, or the word boundary
// with initialized=false so the caller can keep scanning adjacent words.
// lte=true searches at or below tick, lte=false strictly above.
func (b *Bitmap) NextInitializedTickWithinOneWord(tick, tickSpacing int, lte bool) (next int, initialized bool) {
	compressed := compress(tick, tickSpacing)

	if lte {
		wordPos, bitPos := position(compressed)
		// bits at or below bitPos
		mask := new(ui.Int).Sub(new(ui.Int).Lsh(ui.NewInt(1), bitPos+1), ui.NewInt(1))
		masked := b.maskedWord(wordPos, mask)

		if !masked.IsZero() {
			msb := mostSignificantBit(masked)
			return (compressed - int(bitPos) + int(msb)) * tickSpacing, true
		}
		return (compressed - int(bitPos)) * tickSpacing, false
	}

	compressed++
	wordPos, bitPos := position(compressed)
	// bits at or above bitPos
	mask := new(ui.Int).Lsh(ui.NewInt(1), bitPos)
	mask.Neg(mask)
	masked := b.maskedWord(wordPos, mask)

	if !masked.IsZero() {
		lsb := leastSignificantBit(masked)
		return (compressed + int(lsb) - int(bitPos)) * tickSpacing, true
	}
	return (compressed + 255 - int(bitPos)) * tickSpacing, false
}

func (b *Bitmap) maskedWord(wordPos int, mask *ui.Int) *ui.Int {
	word, ok := b.words[wordPos]
	if !ok {
		return new(ui.Int)
	}
	return new(ui.Int).And(word, mask)
}

func mostSignificantBit(x *ui.Int) uint {
	return uint(x.BitLen() - 1)
}

func leastSignificantBit(x *ui.Int) uint {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return uint(i*64 + bits.TrailingZeros64(x[i]))
		}
	}
	panic("tickbitmap: lsb of zero word")
}
