package election

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"openvote-backend/schnorr"
)

// 2^255 - 19 is prime and far larger than any exponent sum these tests can
// produce, so slot arithmetic never wraps the group order.
func testGroup() Group {
	p := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))
	return Group{P: p, G: big.NewInt(2)}
}

func testConfig() Config {
	return Config{
		Candidates: []string{"alpha", "beta", "gamma"},
		Voters:     []string{"v1", "v2", "v3"},
		Group:      testGroup(),
		SlotWidth:  2,
	}
}

func newTestElection(t *testing.T) *Election {
	t.Helper()
	e, err := New(testConfig())
	require.NoError(t, err)
	return e
}

var voterSecrets = map[string]*big.Int{
	"v1": big.NewInt(101),
	"v2": big.NewInt(211),
	"v3": big.NewInt(307),
}

func registerAll(t *testing.T, e *Election) {
	t.Helper()
	group := testGroup()
	for _, id := range []string{"v1", "v2", "v3"} {
		proof, err := schnorr.Prove(voterSecrets[id], id, group.P, group.G)
		require.NoError(t, err)
		require.NoError(t, e.SubmitPublicKey(id, proof))
	}
}

// ballotFor encodes a vote for the candidate at the given position:
// g^(2^(index*m)) mod p.
func ballotFor(index int, slotWidth uint) *big.Int {
	group := testGroup()
	exponent := new(big.Int).Lsh(big.NewInt(1), uint(index)*slotWidth)
	return new(big.Int).Exp(group.G, exponent, group.P)
}

func TestFullProtocolRun(t *testing.T) {
	e := newTestElection(t)
	require.Equal(t, RoundRegistration, e.Round())

	registerAll(t, e)
	require.Equal(t, RoundVoting, e.Round())

	// Votes for candidates 0, 1, 1.
	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v2", ballotFor(1, 2)))
	require.NoError(t, e.SubmitVote("v3", ballotFor(1, 2)))
	require.Equal(t, RoundTallyPending, e.Round())

	require.NoError(t, e.ResolveTally([]uint64{1, 2, 0}))
	require.Equal(t, RoundClosed, e.Round())

	winner, err := e.Winner()
	require.NoError(t, err)
	require.Equal(t, "beta", winner)

	for name, want := range map[string]uint64{"alpha": 1, "beta": 2, "gamma": 0} {
		votes, err := e.CandidateVotes(name)
		require.NoError(t, err)
		require.Equal(t, want, votes, name)
	}

	results, err := e.Results()
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{"alpha": 1, "beta": 2, "gamma": 0}, results)
}

func TestRegistrationThresholdExact(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	for i, id := range []string{"v1", "v2"} {
		proof, err := schnorr.Prove(voterSecrets[id], id, group.P, group.G)
		require.NoError(t, err)
		require.NoError(t, e.SubmitPublicKey(id, proof))
		require.Equal(t, RoundRegistration, e.Round(), "round advanced after %d of 3 registrations", i+1)
	}

	proof, err := schnorr.Prove(voterSecrets["v3"], "v3", group.P, group.G)
	require.NoError(t, err)
	require.NoError(t, e.SubmitPublicKey("v3", proof))
	require.Equal(t, RoundVoting, e.Round())
}

func TestVotingThresholdExact(t *testing.T) {
	e := newTestElection(t)
	registerAll(t, e)

	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.Equal(t, RoundVoting, e.Round())
	require.NoError(t, e.SubmitVote("v2", ballotFor(0, 2)))
	require.Equal(t, RoundVoting, e.Round())
	require.NoError(t, e.SubmitVote("v3", ballotFor(0, 2)))
	require.Equal(t, RoundTallyPending, e.Round())
}

func TestAggregationOrderIndependence(t *testing.T) {
	ballots := map[string]*big.Int{
		"v1": ballotFor(0, 2),
		"v2": ballotFor(1, 2),
		"v3": ballotFor(2, 2),
	}

	orders := [][]string{
		{"v1", "v2", "v3"},
		{"v3", "v1", "v2"},
		{"v2", "v3", "v1"},
	}

	var aggregates []*big.Int
	for _, order := range orders {
		e := newTestElection(t)
		registerAll(t, e)
		for _, id := range order {
			require.NoError(t, e.SubmitVote(id, ballots[id]))
		}
		aggregates = append(aggregates, e.Aggregate())
	}

	require.Equal(t, aggregates[0], aggregates[1])
	require.Equal(t, aggregates[0], aggregates[2])
}

func TestDuplicateKeyRejected(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	proof, err := schnorr.Prove(voterSecrets["v1"], "v1", group.P, group.G)
	require.NoError(t, err)
	require.NoError(t, e.SubmitPublicKey("v1", proof))
	require.Equal(t, 1, e.RegisteredCount())

	// A second voter claiming the same public key must be turned away
	// before proof verification is even attempted.
	stolen := schnorr.Proof{
		PublicKey:  proof.PublicKey,
		Commitment: proof.Commitment,
		Response:   proof.Response,
	}
	err = e.SubmitPublicKey("v2", stolen)
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.Equal(t, 1, e.RegisteredCount())
}

func TestInvalidProofRejected(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	proof, err := schnorr.Prove(voterSecrets["v1"], "v1", group.P, group.G)
	require.NoError(t, err)

	// A proof generated for v1 replayed under v2's identity.
	err = e.SubmitPublicKey("v2", proof)
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Equal(t, 0, e.RegisteredCount())
}

func TestMalformedRegistrationProofRejected(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	proof, err := schnorr.Prove(voterSecrets["v1"], "v1", group.P, group.G)
	require.NoError(t, err)

	// Proofs with a missing or out-of-range public key must be rejected,
	// not crash the engine.
	for name, malformed := range map[string]schnorr.Proof{
		"zero value":         {},
		"missing public key": {Commitment: proof.Commitment, Response: proof.Response},
		"zero public key":    {PublicKey: big.NewInt(0), Commitment: proof.Commitment, Response: proof.Response},
		"key above modulus":  {PublicKey: group.P, Commitment: proof.Commitment, Response: proof.Response},
	} {
		err := e.SubmitPublicKey("v1", malformed)
		require.ErrorIs(t, err, ErrInvalidProof, name)
		require.Equal(t, 0, e.RegisteredCount(), name)
	}

	require.NoError(t, e.SubmitPublicKey("v1", proof))
}

func TestUnauthorizedSubmissions(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	proof, err := schnorr.Prove(big.NewInt(999), "mallory", group.P, group.G)
	require.NoError(t, err)
	require.ErrorIs(t, e.SubmitPublicKey("mallory", proof), ErrUnauthorized)

	proof, err = schnorr.Prove(voterSecrets["v1"], "v1", group.P, group.G)
	require.NoError(t, err)
	require.NoError(t, e.SubmitPublicKey("v1", proof))
	require.ErrorIs(t, e.SubmitPublicKey("v1", proof), ErrUnauthorized)
}

func TestDoubleVoteRejected(t *testing.T) {
	e := newTestElection(t)
	registerAll(t, e)

	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	err := e.SubmitVote("v1", ballotFor(1, 2))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, e.BallotCount())
}

func TestWrongRoundRejections(t *testing.T) {
	e := newTestElection(t)
	group := testGroup()

	// Voting and tallying during registration.
	require.ErrorIs(t, e.SubmitVote("v1", ballotFor(0, 2)), ErrWrongRound)
	require.ErrorIs(t, e.ResolveTally([]uint64{3, 0, 0}), ErrWrongRound)

	registerAll(t, e)

	// Registration and tallying during voting.
	proof, err := schnorr.Prove(voterSecrets["v1"], "v1", group.P, group.G)
	require.NoError(t, err)
	require.ErrorIs(t, e.SubmitPublicKey("v1", proof), ErrWrongRound)
	require.ErrorIs(t, e.ResolveTally([]uint64{3, 0, 0}), ErrWrongRound)

	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v2", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v3", ballotFor(0, 2)))

	// Voting after the voting round has closed.
	require.ErrorIs(t, e.SubmitVote("v1", ballotFor(0, 2)), ErrWrongRound)

	require.NoError(t, e.ResolveTally([]uint64{3, 0, 0}))

	// Everything mutating after closure.
	require.ErrorIs(t, e.ResolveTally([]uint64{3, 0, 0}), ErrWrongRound)
	require.ErrorIs(t, e.SubmitVote("v1", ballotFor(0, 2)), ErrWrongRound)
	require.ErrorIs(t, e.SubmitPublicKey("v1", proof), ErrWrongRound)
}

func TestTallyMismatchRejected(t *testing.T) {
	e := newTestElection(t)
	registerAll(t, e)
	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v2", ballotFor(1, 2)))
	require.NoError(t, e.SubmitVote("v3", ballotFor(1, 2)))

	aggregate := e.Aggregate()

	// Single-unit perturbations of the true count vector.
	for _, claimed := range [][]uint64{
		{2, 2, 0},
		{0, 2, 0},
		{1, 1, 0},
		{1, 3, 0},
		{1, 2, 1},
		{2, 1, 0},
	} {
		err := e.ResolveTally(claimed)
		require.ErrorIs(t, err, ErrTallyMismatch, "claimed %v", claimed)
		require.Equal(t, RoundTallyPending, e.Round())
		require.Equal(t, aggregate, e.Aggregate())
	}

	// Wrong vector length.
	require.ErrorIs(t, e.ResolveTally([]uint64{1, 2}), ErrTallyMismatch)

	// The true counts still resolve.
	require.NoError(t, e.ResolveTally([]uint64{1, 2, 0}))
}

func TestWinnerTieBreaksToEarliestCandidate(t *testing.T) {
	e, err := New(Config{
		Candidates: []string{"alpha", "beta"},
		Voters:     []string{"v1", "v2"},
		Group:      testGroup(),
		SlotWidth:  2,
	})
	require.NoError(t, err)

	group := testGroup()
	for _, id := range []string{"v1", "v2"} {
		proof, err := schnorr.Prove(voterSecrets[id], id, group.P, group.G)
		require.NoError(t, err)
		require.NoError(t, e.SubmitPublicKey(id, proof))
	}

	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v2", ballotFor(1, 2)))
	require.NoError(t, e.ResolveTally([]uint64{1, 1}))

	winner, err := e.Winner()
	require.NoError(t, err)
	require.Equal(t, "alpha", winner)
}

func TestStrictBallotChecking(t *testing.T) {
	cfg := testConfig()
	cfg.StrictBallots = true
	e, err := New(cfg)
	require.NoError(t, err)
	registerAll(t, e)

	// g^3 is not one of the three slot encodings.
	group := testGroup()
	bogus := new(big.Int).Exp(group.G, big.NewInt(3), group.P)
	require.ErrorIs(t, e.SubmitVote("v1", bogus), ErrInvalidProof)
	require.Equal(t, 0, e.BallotCount())

	require.NoError(t, e.SubmitVote("v1", ballotFor(2, 2)))
}

func TestBallotRangeChecking(t *testing.T) {
	e := newTestElection(t)
	registerAll(t, e)

	require.ErrorIs(t, e.SubmitVote("v1", nil), ErrInvalidProof)
	require.ErrorIs(t, e.SubmitVote("v1", big.NewInt(0)), ErrInvalidProof)
	require.ErrorIs(t, e.SubmitVote("v1", testGroup().P), ErrInvalidProof)
	require.Equal(t, 0, e.BallotCount())
}

func TestResultsBeforeClosure(t *testing.T) {
	e := newTestElection(t)

	_, err := e.Winner()
	require.ErrorIs(t, err, ErrNotYetFinalized)
	_, err = e.CandidateVotes("alpha")
	require.ErrorIs(t, err, ErrNotYetFinalized)
	_, err = e.Results()
	require.ErrorIs(t, err, ErrNotYetFinalized)
}

func TestUnknownCandidateQuery(t *testing.T) {
	e := newTestElection(t)
	registerAll(t, e)
	require.NoError(t, e.SubmitVote("v1", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v2", ballotFor(0, 2)))
	require.NoError(t, e.SubmitVote("v3", ballotFor(0, 2)))
	require.NoError(t, e.ResolveTally([]uint64{3, 0, 0}))

	_, err := e.CandidateVotes("nobody")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotYetFinalized)
}

func TestInvalidConfiguration(t *testing.T) {
	base := testConfig()

	cases := map[string]func(*Config){
		"no candidates":       func(c *Config) { c.Candidates = nil },
		"no voters":           func(c *Config) { c.Voters = nil },
		"duplicate candidate": func(c *Config) { c.Candidates = []string{"alpha", "alpha", "beta"} },
		"empty candidate":     func(c *Config) { c.Candidates = []string{"alpha", "", "beta"} },
		"duplicate voter":     func(c *Config) { c.Voters = []string{"v1", "v1", "v2"} },
		"empty voter":         func(c *Config) { c.Voters = []string{"v1", "", "v2"} },
		"slot width too narrow": func(c *Config) { c.SlotWidth = 1 },
		"slot width too wide":   func(c *Config) { c.SlotWidth = 3 },
		"zero slot width":       func(c *Config) { c.SlotWidth = 0 },
		"composite modulus":     func(c *Config) { c.Group.P = big.NewInt(2580) },
		"missing modulus":       func(c *Config) { c.Group.P = nil },
		"generator too small":   func(c *Config) { c.Group.G = big.NewInt(1) },
		"generator too large":   func(c *Config) { c.Group.G = new(big.Int).Sub(c.Group.P, big.NewInt(1)) },
	}

	for name, mutate := range cases {
		cfg := base
		cfg.Candidates = append([]string(nil), base.Candidates...)
		cfg.Voters = append([]string(nil), base.Voters...)
		mutate(&cfg)

		_, err := New(cfg)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrInvalidConfiguration), "%s: got %v", name, err)
	}
}

func TestSlotWidth(t *testing.T) {
	cases := map[int]uint{
		1:  1,
		2:  2,
		3:  2,
		4:  3,
		7:  3,
		8:  4,
		15: 4,
		16: 5,
	}
	for candidates, want := range cases {
		got, err := SlotWidth(candidates)
		require.NoError(t, err)
		require.Equal(t, want, got, "candidates=%d", candidates)
	}

	_, err := SlotWidth(0)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestGenerateGroup(t *testing.T) {
	group, err := GenerateGroup(64)
	require.NoError(t, err)
	require.NoError(t, group.Validate())

	// p = 2q+1 with q prime.
	q := new(big.Int).Rsh(new(big.Int).Sub(group.P, big.NewInt(1)), 1)
	require.True(t, q.ProbablyPrime(32))
}
