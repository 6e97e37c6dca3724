package election

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const primeCertainty = 32

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Group holds the public parameters of the prime field the protocol runs in:
// a large prime modulus P and a generator G.
type Group struct {
	P *big.Int `json:"p"`
	G *big.Int `json:"g"`
}

// GenerateGroup draws a fresh safe prime p = 2q+1 of the requested bit length
// and fixes g = 4. Since 4 is a square it generates the order-q subgroup, so
// every public key and ballot lands in the same subgroup.
func GenerateGroup(bits int) (Group, error) {
	if bits < 16 {
		return Group{}, fmt.Errorf("group size %d too small", bits)
	}
	for {
		q, err := rand.Prime(rand.Reader, bits-1)
		if err != nil {
			return Group{}, fmt.Errorf("failed to generate prime: %w", err)
		}
		p := new(big.Int).Lsh(q, 1)
		p.Add(p, one)
		if p.ProbablyPrime(primeCertainty) {
			return Group{P: p, G: big.NewInt(4)}, nil
		}
	}
}

// Validate checks that the parameters describe a usable field.
func (g Group) Validate() error {
	if g.P == nil || g.G == nil {
		return fmt.Errorf("%w: missing group parameters", ErrInvalidConfiguration)
	}
	if !g.P.ProbablyPrime(primeCertainty) {
		return fmt.Errorf("%w: modulus is not prime", ErrInvalidConfiguration)
	}
	if g.G.Cmp(two) < 0 || g.G.Cmp(new(big.Int).Sub(g.P, one)) >= 0 {
		return fmt.Errorf("%w: generator outside (1, p-1)", ErrInvalidConfiguration)
	}
	return nil
}

// SlotWidth returns the minimal m with 2^m > candidateCount, the number of
// exponent bits reserved per candidate so counts cannot overflow into a
// neighboring candidate's slot.
func SlotWidth(candidateCount int) (uint, error) {
	if candidateCount < 1 {
		return 0, fmt.Errorf("%w: need at least one candidate", ErrInvalidConfiguration)
	}
	m := uint(1)
	for 1<<m <= candidateCount {
		m++
	}
	return m, nil
}

// slotExponent returns 2^(index*width), the exponent a single vote for the
// candidate at the given position contributes to the aggregate.
func slotExponent(index int, width uint) *big.Int {
	return new(big.Int).Lsh(one, uint(index)*width)
}
