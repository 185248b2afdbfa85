package lotto

import (
	"encoding/binary"
	"math"
	"math/big"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// drawRounds is the number of Feistel rounds used when deriving a winning
// pick from a random seed. The derivation must be reproducible bit-for-bit
// off-process, so this is a protocol constant rather than configuration.
const drawRounds = 12

// maxBallDomain is the size of the bitset domain backing PickID.
const maxBallDomain = 256

// PickID is the identity of a pick: a 256-bit set with bit v set iff ball
// value v is present. The byte layout matches the big-endian integer
// sum(1 << v), so Int() round-trips with Solidity-style uint256 encodings.
// The zero value denotes a dummy (non-participating) ticket or an undrawn
// game.
type PickID [32]byte

// PickIDOf folds a list of ball values into a PickID. Ordering and
// duplicates are NOT validated here; callers that require a well-formed
// pick must run ValidatePick first.
func PickIDOf(balls []uint8) PickID {
	var id PickID
	for _, v := range balls {
		id[31-v/8] |= 1 << (v % 8)
	}
	return id
}

// Bit reports whether ball value v is present in the pick.
func (id PickID) Bit(v uint8) bool {
	return id[31-v/8]&(1<<(v%8)) != 0
}

// IsZero reports whether the pick is empty.
func (id PickID) IsZero() bool {
	return id == PickID{}
}

// Int returns the pick as a big integer, sum(1 << v) over present balls.
func (id PickID) Int() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Hex returns the 0x-prefixed hex encoding of the pick bitset.
func (id PickID) Hex() string {
	return ethcommon.Hash(id).Hex()
}

// Balls is the inverse of PickIDOf for well-formed picks: it scans bit
// positions ascending and collects set bits until pickLength values are
// gathered or the domain is exhausted. The result is ascending by
// construction.
func (id PickID) Balls(pickLength uint8) []uint8 {
	balls := make([]uint8, 0, pickLength)
	for v := 0; v < maxBallDomain && len(balls) < int(pickLength); v++ {
		if id.Bit(uint8(v)) {
			balls = append(balls, uint8(v))
		}
	}
	return balls
}

// ValidatePick checks that balls is a strictly-ascending, duplicate-free
// sequence of exactly pickLength values in [1, maxBallValue]. An empty
// sequence is accepted as a dummy pick and its contents are not inspected.
func ValidatePick(balls []uint8, pickLength, maxBallValue uint8) error {
	if len(balls) == 0 {
		return nil
	}
	if len(balls) != int(pickLength) {
		return errorf(ErrInvalidPickLength, "got %v balls, want %v", len(balls), pickLength)
	}
	prev := uint8(0)
	for _, v := range balls {
		if v < 1 || v > maxBallValue {
			return errorf(ErrInvalidBallValue, "ball %v outside [1, %v]", v, maxBallValue)
		}
		if v <= prev {
			return errorf(ErrUnsortedPick, "ball %v follows %v", v, prev)
		}
		prev = v
	}
	return nil
}

// DrawPick derives a winning pick from a random seed. Each index in
// [0, pickLength) is mapped through a keyed bijective permutation of
// [0, maxBallValue), guaranteeing pairwise-distinct values, then shifted
// into [1, maxBallValue] and sorted ascending. The output is a pure
// function of (pickLength, maxBallValue, seed).
func DrawPick(pickLength, maxBallValue uint8, seed ethcommon.Hash) []uint8 {
	balls := make([]uint8, pickLength)
	for i := uint8(0); i < pickLength; i++ {
		balls[i] = 1 + uint8(shuffle(uint64(i), uint64(maxBallValue), seed, drawRounds))
	}
	sort.Slice(balls, func(i, j int) bool { return balls[i] < balls[j] })
	return balls
}

// shuffle is a format-preserving permutation of [0, domain) keyed by seed.
// It runs a balanced Feistel network over the smallest h*h square covering
// the domain and cycle-walks any output that lands outside it. For a fixed
// (seed, domain) the mapping is a true bijection, which is what makes the
// drawn balls distinct without retry loops.
func shuffle(x, domain uint64, seed ethcommon.Hash, rounds int) uint64 {
	h := uint64(math.Ceil(math.Sqrt(float64(domain))))
	for {
		l := x % h
		r := x / h
		for i := 0; i < rounds; i++ {
			l, r = r, (l+roundValue(seed, r, uint64(i), domain))%h
		}
		x = l + r*h
		if x < domain {
			return x
		}
	}
}

// roundValue is the Feistel round function: keccak256 over the seed and the
// round inputs, reduced to a uint64.
func roundValue(seed ethcommon.Hash, r, round, domain uint64) uint64 {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], r)
	binary.BigEndian.PutUint64(buf[8:], round)
	binary.BigEndian.PutUint64(buf[16:], domain)
	digest := crypto.Keccak256(seed[:], buf[:])
	return binary.BigEndian.Uint64(digest[:8])
}
