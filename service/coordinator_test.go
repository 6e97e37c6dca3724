package service

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"openvote-backend/board"
	"openvote-backend/election"
	"openvote-backend/roster"
	"openvote-backend/storage"
	"openvote-backend/voter"
)

func testGroup() election.Group {
	p := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))
	return election.Group{P: p, G: big.NewInt(2)}
}

var (
	testCandidates = []string{"alpha", "beta", "gamma"}
	testVoterIDs   = []string{"v1", "v2", "v3"}
)

func newTestCoordinator(t *testing.T, store *storage.JSONStore) *CoordinatorService {
	t.Helper()

	voterList, err := roster.NewStatic(testVoterIDs)
	require.NoError(t, err)

	cs, err := NewCoordinatorService(Config{
		Candidates: testCandidates,
		Roster:     voterList,
		Group:      testGroup(),
		Store:      store,
	})
	require.NoError(t, err)
	return cs
}

// runElection drives a coordinator through the full protocol: every voter
// registers, votes for the candidate at votes[i], and the true tally is
// submitted. Returns the per-voter key pairs for reuse.
func runElection(t *testing.T, cs *CoordinatorService, votes []int) map[string]*voter.KeyPair {
	t.Helper()
	group := testGroup()

	keys := make(map[string]*voter.KeyPair, len(testVoterIDs))
	for _, id := range testVoterIDs {
		kp, err := voter.GenerateKeyPair(group)
		require.NoError(t, err)
		keys[id] = kp

		proof, err := kp.RegistrationProof(id, group)
		require.NoError(t, err)
		require.NoError(t, cs.SubmitRegistration(id, proof))
	}
	require.Equal(t, election.RoundVoting, cs.Round())

	slotWidth := cs.Params().SlotWidth
	counts := make([]uint64, len(testCandidates))
	for i, id := range testVoterIDs {
		ballot, err := voter.EncodeBallot(votes[i], slotWidth, group)
		require.NoError(t, err)

		receiptID, err := cs.SubmitBallot(id, ballot)
		require.NoError(t, err)
		require.NotEmpty(t, receiptID)

		counts[votes[i]]++
	}
	require.Equal(t, election.RoundTallyPending, cs.Round())

	tally, err := cs.SubmitTally(counts)
	require.NoError(t, err)
	require.Equal(t, counts, tally.Counts)
	require.Equal(t, election.RoundClosed, cs.Round())

	return keys
}

func TestCoordinatorFullElection(t *testing.T) {
	cs := newTestCoordinator(t, nil)

	status := cs.Status()
	require.Equal(t, election.RoundRegistration.String(), status.Round)
	require.Equal(t, 3, status.RosterSize)
	require.True(t, status.WindowOpen)

	runElection(t, cs, []int{0, 1, 1})

	results, err := cs.Results()
	require.NoError(t, err)
	require.Equal(t, "beta", results.Winner)
	require.Equal(t, map[string]uint64{"alpha": 1, "beta": 2, "gamma": 0}, results.Counts)

	votes, err := cs.CandidateVotes("beta")
	require.NoError(t, err)
	require.Equal(t, uint64(2), votes)

	// Every accepted submission landed on the board.
	require.Len(t, cs.RegistrationEntries(), 3)
	require.Len(t, cs.BallotEntries(), 3)
	require.Len(t, cs.TallyEntries(), 1)
	require.NoError(t, board.Validate(cs.RegistrationEntries()))
	require.NoError(t, board.Validate(cs.BallotEntries()))

	metrics := cs.Metrics()
	require.Equal(t, 3, metrics.Registration.Count)
	require.Equal(t, 3, metrics.Voting.Count)
	require.Equal(t, 1, metrics.Tally.Count)
}

func TestCoordinatorRejectsEngineErrors(t *testing.T) {
	cs := newTestCoordinator(t, nil)
	group := testGroup()

	kp, err := voter.GenerateKeyPair(group)
	require.NoError(t, err)

	proof, err := kp.RegistrationProof("intruder", group)
	require.NoError(t, err)
	err = cs.SubmitRegistration("intruder", proof)
	require.ErrorIs(t, err, election.ErrUnauthorized)
	require.Empty(t, cs.RegistrationEntries())

	// Voting before the registration round completes.
	_, err = cs.SubmitBallot("v1", big.NewInt(2))
	require.ErrorIs(t, err, election.ErrWrongRound)

	_, err = cs.Results()
	require.ErrorIs(t, err, election.ErrNotYetFinalized)
}

func TestCoordinatorResumesFromStore(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONStore(dir)
	require.NoError(t, err)

	cs := newTestCoordinator(t, store)
	runElection(t, cs, []int{2, 2, 0})

	// A fresh coordinator over the same store replays the board and ends up
	// in the same closed state.
	resumed := newTestCoordinator(t, store)
	require.Equal(t, election.RoundClosed, resumed.Round())

	results, err := resumed.Results()
	require.NoError(t, err)
	require.Equal(t, "gamma", results.Winner)
	require.Equal(t, map[string]uint64{"alpha": 1, "beta": 0, "gamma": 2}, results.Counts)

	require.Len(t, resumed.RegistrationEntries(), 3)
	require.Len(t, resumed.BallotEntries(), 3)
	require.Len(t, resumed.TallyEntries(), 1)
	require.Equal(t, cs.RegistrationEntries(), resumed.RegistrationEntries())
}

func TestCoordinatorResumesMidElection(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONStore(dir)
	require.NoError(t, err)

	cs := newTestCoordinator(t, store)
	group := testGroup()

	keys := make(map[string]*voter.KeyPair, len(testVoterIDs))
	for _, id := range testVoterIDs {
		kp, err := voter.GenerateKeyPair(group)
		require.NoError(t, err)
		keys[id] = kp

		proof, err := kp.RegistrationProof(id, group)
		require.NoError(t, err)
		require.NoError(t, cs.SubmitRegistration(id, proof))
	}

	// Restart after registration: the resumed coordinator accepts ballots.
	resumed := newTestCoordinator(t, store)
	require.Equal(t, election.RoundVoting, resumed.Round())

	slotWidth := resumed.Params().SlotWidth
	for _, id := range testVoterIDs {
		ballot, err := voter.EncodeBallot(1, slotWidth, group)
		require.NoError(t, err)
		_, err = resumed.SubmitBallot(id, ballot)
		require.NoError(t, err)
	}

	_, err = resumed.SubmitTally([]uint64{0, 3, 0})
	require.NoError(t, err)
	require.Equal(t, election.RoundClosed, resumed.Round())
}

func TestCloseWindowRejectsSubmissions(t *testing.T) {
	cs := newTestCoordinator(t, nil)
	group := testGroup()

	kp, err := voter.GenerateKeyPair(group)
	require.NoError(t, err)
	proof, err := kp.RegistrationProof("v1", group)
	require.NoError(t, err)

	cs.CloseWindow()
	require.False(t, cs.Status().WindowOpen)

	err = cs.SubmitRegistration("v1", proof)
	require.ErrorIs(t, err, election.ErrWrongRound)

	_, err = cs.SubmitBallot("v1", big.NewInt(2))
	require.ErrorIs(t, err, election.ErrWrongRound)
}

func TestParams(t *testing.T) {
	cs := newTestCoordinator(t, nil)

	params := cs.Params()
	require.Equal(t, testCandidates, params.Candidates)
	require.Equal(t, uint(2), params.SlotWidth)
	require.NotEmpty(t, params.P)
	require.Equal(t, "0x2", params.G)
}

func TestStatusForError(t *testing.T) {
	require.Equal(t, 403, StatusForError(election.ErrUnauthorized))
	require.Equal(t, 409, StatusForError(election.ErrWrongRound))
	require.Equal(t, 409, StatusForError(election.ErrDuplicateKey))
	require.Equal(t, 422, StatusForError(election.ErrTallyMismatch))
	require.Equal(t, 409, StatusForError(election.ErrNotYetFinalized))
	require.Equal(t, 400, StatusForError(election.ErrInvalidProof))
	require.Equal(t, 400, StatusForError(errors.New("anything else")))
}
