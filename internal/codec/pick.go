package codec

import (
	"fmt"
	"math/bits"
)

const (
	// UniverseSize is the number of tracked assets.
	UniverseSize = 42
	// PickSize is the number of assets in one pick.
	PickSize = 6
)

// PickMask is a 42-bit set over the tracked universe, one bit per asset
// index. Overlap scoring between two masks is a single AND + popcount.
type PickMask uint64

// universeMask has the low UniverseSize bits set.
const universeMask = PickMask(1<<UniverseSize - 1)

// Encode validates indices and packs them into a mask. Each index must be
// unique and < UniverseSize, and exactly PickSize indices must be given.
func Encode(indices []uint8) (PickMask, error) {
	if len(indices) != PickSize {
		return 0, fmt.Errorf("pick must have exactly %d assets, got %d", PickSize, len(indices))
	}

	var mask PickMask
	for _, idx := range indices {
		if idx >= UniverseSize {
			return 0, fmt.Errorf("asset index %d out of range [0,%d)", idx, UniverseSize)
		}
		bit := PickMask(1) << idx
		if mask&bit != 0 {
			return 0, fmt.Errorf("duplicate asset index %d", idx)
		}
		mask |= bit
	}
	return mask, nil
}

// Decode expands a mask back into sorted asset indices.
func Decode(mask PickMask) []uint8 {
	indices := make([]uint8, 0, PickSize)
	for idx := uint8(0); idx < UniverseSize; idx++ {
		if mask&(1<<idx) != 0 {
			indices = append(indices, idx)
		}
	}
	return indices
}

// Valid reports whether mask is a well-formed pick: PickSize bits, all
// within the universe.
func Valid(mask PickMask) bool {
	return mask&^universeMask == 0 && bits.OnesCount64(uint64(mask)) == PickSize
}

// Overlap returns the number of assets two masks share.
func Overlap(a, b PickMask) int {
	return bits.OnesCount64(uint64(a & b))
}

// Contains reports whether the asset index is in the mask.
func Contains(mask PickMask, idx uint8) bool {
	return idx < UniverseSize && mask&(1<<idx) != 0
}
