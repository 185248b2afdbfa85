package lotto

import (
	"encoding/binary"
	"sort"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPickIDOf(t *testing.T) {
	assert := assert.New(t)

	assert.True(PickIDOf(nil).IsZero())
	assert.True(PickIDOf([]uint8{}).IsZero())

	id := PickIDOf([]uint8{1, 3, 7})
	assert.True(id.Bit(1))
	assert.True(id.Bit(3))
	assert.True(id.Bit(7))
	assert.False(id.Bit(2))
	assert.False(id.IsZero())

	// Bitset layout is big-endian sum(1 << v)
	assert.Equal(int64(1<<1|1<<3|1<<7), id.Int().Int64())

	// Value 255 lands in the first byte
	high := PickIDOf([]uint8{255})
	assert.True(high.Bit(255))
	assert.Equal(uint8(0x80), high[0])
}

func TestPickIDBallsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balls := rapid.SliceOfNDistinct(rapid.Uint8Range(1, 255), 1, 32, rapid.ID[uint8]).Draw(t, "balls")
		sort.Slice(balls, func(i, j int) bool { return balls[i] < balls[j] })

		id := PickIDOf(balls)
		require.Equal(t, balls, id.Balls(uint8(len(balls))))
	})
}

func TestValidatePick(t *testing.T) {
	for _, tc := range []struct {
		name  string
		balls []uint8
		err   error
	}{
		{"valid", []uint8{1, 2, 3}, nil},
		{"dummy", nil, nil},
		{"tooShort", []uint8{1, 2}, ErrInvalidPickLength},
		{"tooLong", []uint8{1, 2, 3, 4}, ErrInvalidPickLength},
		{"zeroBall", []uint8{0, 1, 2}, ErrInvalidBallValue},
		{"ballTooLarge", []uint8{1, 2, 16}, ErrInvalidBallValue},
		{"duplicate", []uint8{1, 2, 2}, ErrUnsortedPick},
		{"descending", []uint8{3, 2, 1}, ErrUnsortedPick},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePick(tc.balls, 3, 15)
			if tc.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestShuffleBijective(t *testing.T) {
	seed := ethcommon.BytesToHash([]byte("shuffle seed"))
	for _, domain := range []uint64{2, 35, 99, 256} {
		seen := make(map[uint64]bool)
		for x := uint64(0); x < domain; x++ {
			y := shuffle(x, domain, seed, drawRounds)
			require.Less(t, y, domain)
			require.False(t, seen[y], "domain %v: value %v hit twice", domain, y)
			seen[y] = true
		}
	}
}

func TestDrawPickDeterministic(t *testing.T) {
	seed := ethcommon.BytesToHash([]byte("draw seed"))
	first := DrawPick(7, 35, seed)
	second := DrawPick(7, 35, seed)
	assert.Equal(t, first, second)
	assert.NoError(t, ValidatePick(first, 7, 35))
}

func TestDrawPickVariesWithSeed(t *testing.T) {
	distinct := make(map[string]bool)
	for i := 0; i < 200; i++ {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		seed := ethcommon.BytesToHash(buf[:])
		distinct[PickIDOf(DrawPick(5, 35, seed)).Hex()] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestDrawPickProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pickLength := rapid.Uint8Range(1, 10).Draw(t, "pickLength")
		maxBallValue := rapid.Uint8Range(pickLength, 255).Draw(t, "maxBallValue")
		var seed ethcommon.Hash
		copy(seed[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "seed"))

		balls := DrawPick(pickLength, maxBallValue, seed)
		require.Len(t, balls, int(pickLength))
		require.NoError(t, ValidatePick(balls, pickLength, maxBallValue))
	})
}
