// Package voter holds the client-side half of the protocol: key generation,
// registration proof construction and ballot encoding. Nothing in here is
// consulted by the election engine; it exists for the voter CLI and tests.
package voter

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"openvote-backend/arith"
	"openvote-backend/election"
	"openvote-backend/schnorr"
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// KeyPair is a voter's secret and the matching public key pk = g^x mod p.
type KeyPair struct {
	Secret    *big.Int
	PublicKey *big.Int
}

// GenerateKeyPair draws a secret x uniformly from [1, p-2].
func GenerateKeyPair(group election.Group) (*KeyPair, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}

	secret, err := rand.Int(rand.Reader, new(big.Int).Sub(group.P, two))
	if err != nil {
		return nil, fmt.Errorf("failed to draw secret: %w", err)
	}
	secret.Add(secret, one)

	publicKey, err := arith.Exp(group.G, secret, group.P)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &KeyPair{Secret: secret, PublicKey: publicKey}, nil
}

// RegistrationProof builds the proof of key ownership submitted during
// registration, bound to the voter's identity.
func (kp *KeyPair) RegistrationProof(voterID string, group election.Group) (schnorr.Proof, error) {
	return schnorr.Prove(kp.Secret, voterID, group.P, group.G)
}

// EncodeBallot returns the ballot g^(2^(index*slotWidth)) mod p for a vote
// for the candidate at the given position.
func EncodeBallot(index int, slotWidth uint, group election.Group) (*big.Int, error) {
	if index < 0 {
		return nil, fmt.Errorf("candidate index %d out of range", index)
	}
	exponent := new(big.Int).Lsh(one, uint(index)*slotWidth)
	ballot, err := arith.Exp(group.G, exponent, group.P)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ballot: %w", err)
	}
	return ballot, nil
}
