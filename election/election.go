// Package election implements the self-tallying election protocol engine: a
// four-round state machine over a fixed voter roster. Voters first register a
// public key with a proof of knowledge of its secret, then submit one
// homomorphically encoded ballot each; the running product of all ballots is
// the aggregate, and any party may close the election by presenting the
// per-candidate counts that reconstruct it.
package election

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"openvote-backend/arith"
	"openvote-backend/schnorr"
)

// Round is the phase the election is in. Transitions are one-way.
type Round int

const (
	RoundRegistration Round = iota
	RoundVoting
	RoundTallyPending
	RoundClosed
)

func (r Round) String() string {
	switch r {
	case RoundRegistration:
		return "registration"
	case RoundVoting:
		return "voting"
	case RoundTallyPending:
		return "tally_pending"
	case RoundClosed:
		return "closed"
	default:
		return fmt.Sprintf("round(%d)", int(r))
	}
}

// Config carries everything the initializer supplies at construction.
type Config struct {
	Candidates []string `json:"candidates"`
	Voters     []string `json:"voters"`
	Group      Group    `json:"group"`
	SlotWidth  uint     `json:"slot_width"`

	// StrictBallots additionally requires every submitted ballot to be one
	// of the valid per-candidate slot encodings. The base protocol accepts
	// any field element, which lets a malicious voter corrupt the tally;
	// enabling this closes that gap but changes which submissions are
	// accepted, so it is opt-in.
	StrictBallots bool `json:"strict_ballots"`
}

// voterRecord tracks one roster entry through the protocol.
type voterRecord struct {
	eligible  bool // consumed on ballot submission
	publicKey *big.Int
}

// Election owns all mutable protocol state. Every operation runs under the
// single mutex, validates all its preconditions and only then writes, so a
// failed call leaves no partial state behind.
type Election struct {
	mu sync.RWMutex

	candidates []string
	group      Group
	slotWidth  uint
	strict     bool

	voters    map[string]*voterRecord
	keyOwners map[string]string // hex(pk) -> voter ID, enforces injectivity

	round      Round
	registered int
	balloted   int
	aggregate  *big.Int

	// Populated at closure.
	counts map[string]uint64
	winner string

	// Valid ballot values, one per candidate, used by strict checking.
	slotValues []*big.Int
}

// New validates the configuration and builds an election in the
// registration round with the aggregate at the multiplicative identity.
func New(cfg Config) (*Election, error) {
	if len(cfg.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidConfiguration)
	}
	if len(cfg.Voters) == 0 {
		return nil, fmt.Errorf("%w: no voters", ErrInvalidConfiguration)
	}
	if err := cfg.Group.Validate(); err != nil {
		return nil, err
	}

	// 2^m > candidateCount >= 2^(m-1): the narrowest width that still
	// keeps per-candidate counts from overflowing into the next slot.
	n := len(cfg.Candidates)
	m := cfg.SlotWidth
	if m < 1 || 1<<m <= n || (m > 1 && n < 1<<(m-1)) {
		return nil, fmt.Errorf("%w: slot width %d does not fit %d candidates", ErrInvalidConfiguration, m, n)
	}

	seen := make(map[string]bool, n)
	for _, name := range cfg.Candidates {
		if name == "" {
			return nil, fmt.Errorf("%w: empty candidate name", ErrInvalidConfiguration)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate candidate %q", ErrInvalidConfiguration, name)
		}
		seen[name] = true
	}

	voters := make(map[string]*voterRecord, len(cfg.Voters))
	for _, id := range cfg.Voters {
		if id == "" {
			return nil, fmt.Errorf("%w: empty voter identity", ErrInvalidConfiguration)
		}
		if _, exists := voters[id]; exists {
			return nil, fmt.Errorf("%w: duplicate voter %q", ErrInvalidConfiguration, id)
		}
		voters[id] = &voterRecord{eligible: true}
	}

	slotValues := make([]*big.Int, n)
	for i := range cfg.Candidates {
		value, err := arith.Exp(cfg.Group.G, slotExponent(i, m), cfg.Group.P)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		slotValues[i] = value
	}

	return &Election{
		candidates: append([]string(nil), cfg.Candidates...),
		group:      Group{P: new(big.Int).Set(cfg.Group.P), G: new(big.Int).Set(cfg.Group.G)},
		slotWidth:  m,
		strict:     cfg.StrictBallots,
		voters:     voters,
		keyOwners:  make(map[string]string, len(voters)),
		round:      RoundRegistration,
		aggregate:  big.NewInt(1),
		slotValues: slotValues,
	}, nil
}

// SubmitPublicKey registers a voter's public key after verifying the
// accompanying proof of knowledge. Once every roster entry has registered,
// the election advances to the voting round.
func (e *Election) SubmitPublicKey(voterID string, proof schnorr.Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != RoundRegistration {
		return fmt.Errorf("%w: registration is over (round %s)", ErrWrongRound, e.round)
	}

	record, ok := e.voters[voterID]
	if !ok {
		return fmt.Errorf("%w: %q is not on the roster", ErrUnauthorized, voterID)
	}
	if record.publicKey != nil {
		return fmt.Errorf("%w: %q has already registered", ErrUnauthorized, voterID)
	}

	if proof.PublicKey == nil || proof.PublicKey.Sign() <= 0 || proof.PublicKey.Cmp(e.group.P) >= 0 {
		return fmt.Errorf("%w: public key outside the field range", ErrInvalidProof)
	}

	keyID := hex.EncodeToString(proof.PublicKey.Bytes())
	if owner, bound := e.keyOwners[keyID]; bound {
		return fmt.Errorf("%w: key already bound to %q", ErrDuplicateKey, owner)
	}

	if err := schnorr.Verify(proof, voterID, e.group.P, e.group.G); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	record.publicKey = new(big.Int).Set(proof.PublicKey)
	e.keyOwners[keyID] = voterID
	e.registered++

	if e.registered == len(e.voters) {
		e.round = RoundVoting
	}
	return nil
}

// SubmitVote folds one encoded ballot into the aggregate and consumes the
// voter's eligibility. Once every roster entry has voted, the election
// advances to the tally-pending round.
func (e *Election) SubmitVote(voterID string, ballot *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != RoundVoting {
		return fmt.Errorf("%w: voting is not open (round %s)", ErrWrongRound, e.round)
	}

	record, ok := e.voters[voterID]
	if !ok {
		return fmt.Errorf("%w: %q is not on the roster", ErrUnauthorized, voterID)
	}
	if !record.eligible {
		return fmt.Errorf("%w: %q has already voted", ErrUnauthorized, voterID)
	}

	if ballot == nil || ballot.Sign() <= 0 || ballot.Cmp(e.group.P) >= 0 {
		return fmt.Errorf("%w: ballot outside the field range", ErrInvalidProof)
	}
	if e.strict && !e.isSlotValue(ballot) {
		return fmt.Errorf("%w: ballot is not a valid slot encoding", ErrInvalidProof)
	}

	updated, err := arith.MulMod(e.aggregate, ballot, e.group.P)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	record.eligible = false
	e.aggregate = updated
	e.balloted++

	if e.balloted == len(e.voters) {
		e.round = RoundTallyPending
	}
	return nil
}

// ResolveTally checks a claimed per-candidate count vector against the
// aggregate. On a match it records the counts, selects the winner and closes
// the election; on a mismatch nothing changes and the claim is rejected.
func (e *Election) ResolveTally(claimed []uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != RoundTallyPending {
		return fmt.Errorf("%w: tally is not open (round %s)", ErrWrongRound, e.round)
	}
	if len(claimed) != len(e.candidates) {
		return fmt.Errorf("%w: got %d counts for %d candidates", ErrTallyMismatch, len(claimed), len(e.candidates))
	}

	// v = sum(claimed[i] * 2^(i*m)) mod p, then aggregate must equal g^v.
	v := big.NewInt(0)
	for i, count := range claimed {
		term, err := arith.MulMod(new(big.Int).SetUint64(count), slotExponent(i, e.slotWidth), e.group.P)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTallyMismatch, err)
		}
		v, err = arith.AddMod(v, term, e.group.P)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTallyMismatch, err)
		}
	}
	expected, err := arith.Exp(e.group.G, v, e.group.P)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTallyMismatch, err)
	}
	if e.aggregate.Cmp(expected) != 0 {
		return fmt.Errorf("%w: aggregate does not reconstruct from the claimed counts", ErrTallyMismatch)
	}

	counts := make(map[string]uint64, len(e.candidates))
	winner := ""
	var best uint64
	for i, name := range e.candidates {
		counts[name] = claimed[i]
		// Strict comparison: the earliest candidate keeps a tie.
		if claimed[i] > best {
			best = claimed[i]
			winner = name
		}
	}

	e.counts = counts
	e.winner = winner
	e.round = RoundClosed
	return nil
}

// Candidates returns the candidate list in ballot order.
func (e *Election) Candidates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.candidates...)
}

// Round reports the current protocol round.
func (e *Election) Round() Round {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// Group returns the public field parameters.
func (e *Election) Group() Group {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Group{P: new(big.Int).Set(e.group.P), G: new(big.Int).Set(e.group.G)}
}

// SlotWidth returns the per-candidate exponent width m.
func (e *Election) SlotWidth() uint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.slotWidth
}

// RegisteredCount reports how many voters have submitted a public key.
func (e *Election) RegisteredCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registered
}

// BallotCount reports how many ballots have been folded into the aggregate.
func (e *Election) BallotCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balloted
}

// RosterSize reports the number of eligible voters.
func (e *Election) RosterSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.voters)
}

// Aggregate returns the running product of all submitted ballots.
func (e *Election) Aggregate() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.aggregate)
}

// CandidateVotes returns the verified count for one candidate. Only valid
// once the election has closed.
func (e *Election) CandidateVotes(name string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round != RoundClosed {
		return 0, fmt.Errorf("%w: round is %s", ErrNotYetFinalized, e.round)
	}
	count, ok := e.counts[name]
	if !ok {
		return 0, fmt.Errorf("unknown candidate %q", name)
	}
	return count, nil
}

// Results returns the verified per-candidate counts. Only valid once the
// election has closed.
func (e *Election) Results() (map[string]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round != RoundClosed {
		return nil, fmt.Errorf("%w: round is %s", ErrNotYetFinalized, e.round)
	}
	results := make(map[string]uint64, len(e.counts))
	for name, count := range e.counts {
		results[name] = count
	}
	return results, nil
}

// Winner returns the winning candidate. The winner is the empty string when
// every count is zero. Only valid once the election has closed.
func (e *Election) Winner() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round != RoundClosed {
		return "", fmt.Errorf("%w: round is %s", ErrNotYetFinalized, e.round)
	}
	return e.winner, nil
}

func (e *Election) isSlotValue(ballot *big.Int) bool {
	for _, value := range e.slotValues {
		if ballot.Cmp(value) == 0 {
			return true
		}
	}
	return false
}
