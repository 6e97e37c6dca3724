// Package schnorr implements the non-interactive proof of knowledge used
// during voter registration: a Fiat-Shamir transformed Schnorr proof that the
// submitter knows the discrete logarithm x behind a public key pk = g^x mod p.
// The challenge is bound to the prover's identity so a proof recorded for one
// voter cannot be replayed by another.
package schnorr

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"openvote-backend/arith"
)

var one = big.NewInt(1)

// Proof carries the public transcript of a registration proof. The secret x
// and the nonce v never leave the prover.
type Proof struct {
	PublicKey  *big.Int `json:"public_key"` // pk = g^x mod p
	Commitment *big.Int `json:"commitment"` // gv = g^v mod p for a fresh nonce v
	Response   *big.Int `json:"response"`   // r = v - x*c mod p-1
}

// Challenge derives the Fiat-Shamir challenge c = H(g, gv, pk, identity),
// reduced into the exponent group mod p-1.
func Challenge(g, commitment, publicKey *big.Int, identity string, p *big.Int) *big.Int {
	digest := crypto.Keccak256(
		g.Bytes(),
		commitment.Bytes(),
		publicKey.Bytes(),
		[]byte(identity),
	)
	c := new(big.Int).SetBytes(digest)
	return c.Mod(c, new(big.Int).Sub(p, one))
}

// Prove builds a proof of knowledge of secret for the given identity.
// It is the voter-side half of the protocol; the election engine only
// ever verifies.
func Prove(secret *big.Int, identity string, p, g *big.Int) (Proof, error) {
	if secret == nil || secret.Sign() <= 0 {
		return Proof{}, errors.New("secret must be a positive integer")
	}
	order := new(big.Int).Sub(p, one)

	publicKey, err := arith.Exp(g, secret, p)
	if err != nil {
		return Proof{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	// Fresh nonce v in [1, p-2]. A reused or predictable nonce leaks x.
	v, err := rand.Int(rand.Reader, new(big.Int).Sub(order, one))
	if err != nil {
		return Proof{}, fmt.Errorf("failed to draw nonce: %w", err)
	}
	v.Add(v, one)

	commitment, err := arith.Exp(g, v, p)
	if err != nil {
		return Proof{}, fmt.Errorf("failed to compute commitment: %w", err)
	}

	c := Challenge(g, commitment, publicKey, identity, p)

	// r = v - x*c over the integers, reduced mod p-1.
	r := new(big.Int).Mul(secret, c)
	r.Sub(v, r)
	r.Mod(r, order)

	return Proof{
		PublicKey:  publicKey,
		Commitment: commitment,
		Response:   r,
	}, nil
}

// Verify checks the proof transcript against the identity it was submitted
// under: gv == g^r * pk^c (mod p) for the recomputed challenge c.
func Verify(proof Proof, identity string, p, g *big.Int) error {
	if err := checkElement(proof.PublicKey, p); err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	if err := checkElement(proof.Commitment, p); err != nil {
		return fmt.Errorf("commitment: %w", err)
	}
	if proof.Response == nil || proof.Response.Sign() < 0 {
		return errors.New("response must be a non-negative integer")
	}

	c := Challenge(g, proof.Commitment, proof.PublicKey, identity, p)

	gr, err := arith.Exp(g, proof.Response, p)
	if err != nil {
		return fmt.Errorf("failed to compute g^r: %w", err)
	}
	pkc, err := arith.Exp(proof.PublicKey, c, p)
	if err != nil {
		return fmt.Errorf("failed to compute pk^c: %w", err)
	}
	expected, err := arith.MulMod(gr, pkc, p)
	if err != nil {
		return fmt.Errorf("failed to combine verification terms: %w", err)
	}

	if proof.Commitment.Cmp(expected) != 0 {
		return errors.New("proof transcript does not verify")
	}
	return nil
}

func checkElement(e, p *big.Int) error {
	if e == nil {
		return errors.New("missing value")
	}
	if e.Sign() <= 0 || e.Cmp(p) >= 0 {
		return errors.New("value outside the field range")
	}
	return nil
}
