package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RegistrationMessage is the public record of one voter's key registration:
// the Schnorr proof transcript bound to the voter's identity.
type RegistrationMessage struct {
	VoterID    string `json:"voter_id"`
	PublicKey  string `json:"public_key"`
	Commitment string `json:"commitment"`
	Response   string `json:"response"`
	Timestamp  int64  `json:"timestamp"`
}

// BallotMessage is the public record of one encoded ballot.
type BallotMessage struct {
	ReceiptID string `json:"receipt_id"`
	VoterID   string `json:"voter_id"`
	Ballot    string `json:"ballot"`
	Timestamp int64  `json:"timestamp"`
}

// TallyMessage is the public record of an accepted tally claim.
type TallyMessage struct {
	SubmissionID string   `json:"submission_id"`
	Counts       []uint64 `json:"counts"`
	Candidates   []string `json:"candidates"`
	Winner       string   `json:"winner"`
	Timestamp    int64    `json:"timestamp"`
}

// EncodeBig renders a field element as a 0x-prefixed hex string.
func EncodeBig(v *big.Int) string {
	return hexutil.EncodeBig(v)
}

// DecodeBig parses a 0x-prefixed hex field element.
func DecodeBig(s string) (*big.Int, error) {
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("invalid field element %q: %w", s, err)
	}
	return v, nil
}
