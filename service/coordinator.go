package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"openvote-backend/board"
	"openvote-backend/election"
	"openvote-backend/models"
	"openvote-backend/roster"
	"openvote-backend/schnorr"
	"openvote-backend/storage"
)

const (
	registrationLog = "registrations"
	ballotLog       = "ballots"
	tallyLog        = "tally"
)

// Config wires a coordinator together.
type Config struct {
	Candidates []string
	Roster     roster.Roster
	Group      election.Group

	// SlotWidth of 0 derives the minimal width from the candidate count.
	SlotWidth     uint
	StrictBallots bool

	// Window of 0 means no submission deadline.
	Window time.Duration

	// Store of nil keeps the election in memory only.
	Store *storage.JSONStore
}

// CoordinatorService runs one election: it feeds submissions into the
// protocol engine, records every accepted message on the bulletin board and
// persists the board so a restart can replay it.
type CoordinatorService struct {
	mu sync.RWMutex

	election      *election.Election
	voterRoster   roster.Roster
	registrations *board.Log
	ballots       *board.Log
	tallies       *board.Log
	store         *storage.JSONStore
	metrics       *MetricsCollector
	window        *SubmissionWindow
}

// Status is the public view of a running election.
type Status struct {
	Round      string   `json:"round"`
	Candidates []string `json:"candidates"`
	RosterSize int      `json:"roster_size"`
	Registered int      `json:"registered"`
	Balloted   int      `json:"balloted"`
	WindowOpen bool     `json:"window_open"`
	Aggregate  string   `json:"aggregate"`
}

// Params is everything a voter client needs to participate.
type Params struct {
	P          string   `json:"p"`
	G          string   `json:"g"`
	SlotWidth  uint     `json:"slot_width"`
	Candidates []string `json:"candidates"`
}

// Results is the verified outcome of a closed election.
type Results struct {
	Counts map[string]uint64 `json:"counts"`
	Winner string            `json:"winner"`
}

// NewCoordinatorService builds the election engine from the roster and, when
// a store is configured, replays any persisted board logs into it.
func NewCoordinatorService(cfg Config) (*CoordinatorService, error) {
	if cfg.Roster == nil {
		return nil, fmt.Errorf("%w: no roster", election.ErrInvalidConfiguration)
	}

	slotWidth := cfg.SlotWidth
	if slotWidth == 0 {
		var err error
		slotWidth, err = election.SlotWidth(len(cfg.Candidates))
		if err != nil {
			return nil, err
		}
	}

	engine, err := election.New(election.Config{
		Candidates:    cfg.Candidates,
		Voters:        cfg.Roster.IDs(),
		Group:         cfg.Group,
		SlotWidth:     slotWidth,
		StrictBallots: cfg.StrictBallots,
	})
	if err != nil {
		return nil, err
	}

	cs := &CoordinatorService{
		election:      engine,
		voterRoster:   cfg.Roster,
		registrations: board.NewLog(),
		ballots:       board.NewLog(),
		tallies:       board.NewLog(),
		store:         cfg.Store,
		metrics:       NewMetricsCollector(),
		window:        NewSubmissionWindow(cfg.Window),
	}

	if cs.store != nil {
		if err := cs.replayFromStore(); err != nil {
			return nil, fmt.Errorf("failed to resume election: %w", err)
		}
	}

	return cs, nil
}

// SubmitRegistration verifies and records one voter's public key.
func (cs *CoordinatorService) SubmitRegistration(voterID string, proof schnorr.Proof) error {
	start := time.Now()
	defer func() { cs.metrics.RecordRegistration(time.Since(start)) }()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.window.IsOpen() {
		return fmt.Errorf("%w: submission window has closed", election.ErrWrongRound)
	}

	before := cs.election.Round()
	if err := cs.election.SubmitPublicKey(voterID, proof); err != nil {
		return err
	}

	msg := models.RegistrationMessage{
		VoterID:    voterID,
		PublicKey:  models.EncodeBig(proof.PublicKey),
		Commitment: models.EncodeBig(proof.Commitment),
		Response:   models.EncodeBig(proof.Response),
		Timestamp:  time.Now().Unix(),
	}
	cs.appendAndPersist(cs.registrations, registrationLog, board.KindRegistration, msg)

	if after := cs.election.Round(); after != before {
		log.Printf("all %d voters registered, round advanced to %s", cs.voterRoster.Size(), after)
	}
	return nil
}

// SubmitBallot folds one encoded ballot into the aggregate and returns a
// receipt ID for the board entry.
func (cs *CoordinatorService) SubmitBallot(voterID string, ballot *big.Int) (string, error) {
	start := time.Now()
	defer func() { cs.metrics.RecordBallot(time.Since(start)) }()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.window.IsOpen() {
		return "", fmt.Errorf("%w: submission window has closed", election.ErrWrongRound)
	}

	before := cs.election.Round()
	if err := cs.election.SubmitVote(voterID, ballot); err != nil {
		return "", err
	}

	msg := models.BallotMessage{
		ReceiptID: uuid.New().String(),
		VoterID:   voterID,
		Ballot:    models.EncodeBig(ballot),
		Timestamp: time.Now().Unix(),
	}
	cs.appendAndPersist(cs.ballots, ballotLog, board.KindBallot, msg)

	if after := cs.election.Round(); after != before {
		log.Printf("all %d ballots received, round advanced to %s", cs.voterRoster.Size(), after)
	}
	return msg.ReceiptID, nil
}

// SubmitTally checks a claimed count vector against the aggregate; on a
// match the election closes and the accepted claim is recorded.
func (cs *CoordinatorService) SubmitTally(counts []uint64) (*models.TallyMessage, error) {
	start := time.Now()
	defer func() { cs.metrics.RecordTally(time.Since(start)) }()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.election.ResolveTally(counts); err != nil {
		return nil, err
	}

	winner, err := cs.election.Winner()
	if err != nil {
		return nil, err
	}

	msg := models.TallyMessage{
		SubmissionID: uuid.New().String(),
		Counts:       append([]uint64(nil), counts...),
		Candidates:   cs.election.Candidates(),
		Winner:       winner,
		Timestamp:    time.Now().Unix(),
	}
	cs.appendAndPersist(cs.tallies, tallyLog, board.KindTally, msg)

	log.Printf("tally accepted, election closed, winner %q", winner)
	return &msg, nil
}

// Status reports the current election state.
func (cs *CoordinatorService) Status() Status {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Status{
		Round:      cs.election.Round().String(),
		Candidates: cs.election.Candidates(),
		RosterSize: cs.election.RosterSize(),
		Registered: cs.election.RegisteredCount(),
		Balloted:   cs.election.BallotCount(),
		WindowOpen: cs.window.IsOpen(),
		Aggregate:  models.EncodeBig(cs.election.Aggregate()),
	}
}

// Params reports the public parameters voter clients need.
func (cs *CoordinatorService) Params() Params {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	group := cs.election.Group()
	return Params{
		P:          models.EncodeBig(group.P),
		G:          models.EncodeBig(group.G),
		SlotWidth:  cs.election.SlotWidth(),
		Candidates: cs.election.Candidates(),
	}
}

// Results returns the verified outcome once the election has closed.
func (cs *CoordinatorService) Results() (*Results, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	counts, err := cs.election.Results()
	if err != nil {
		return nil, err
	}
	winner, err := cs.election.Winner()
	if err != nil {
		return nil, err
	}
	return &Results{Counts: counts, Winner: winner}, nil
}

// CandidateVotes returns one candidate's verified count.
func (cs *CoordinatorService) CandidateVotes(name string) (uint64, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.election.CandidateVotes(name)
}

// Round reports the engine round.
func (cs *CoordinatorService) Round() election.Round {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.election.Round()
}

// RegistrationEntries returns the registration board log.
func (cs *CoordinatorService) RegistrationEntries() []*board.Entry {
	return cs.registrations.Entries()
}

// BallotEntries returns the ballot board log.
func (cs *CoordinatorService) BallotEntries() []*board.Entry {
	return cs.ballots.Entries()
}

// TallyEntries returns the tally board log.
func (cs *CoordinatorService) TallyEntries() []*board.Entry {
	return cs.tallies.Entries()
}

// Metrics returns timing metrics per protocol phase.
func (cs *CoordinatorService) Metrics() MetricsResponse {
	return cs.metrics.GetMetrics()
}

// CloseWindow ends the submission window; registrations and ballots arriving
// afterwards are rejected.
func (cs *CoordinatorService) CloseWindow() {
	cs.window.Close()
	log.Printf("submission window closed")
}

func (cs *CoordinatorService) appendAndPersist(l *board.Log, name string, kind board.EntryKind, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("warning: failed to marshal %s board entry: %v", name, err)
		return
	}
	l.Append(kind, data)

	if cs.store == nil {
		return
	}
	if err := cs.store.SaveLog(name, l.Entries()); err != nil {
		log.Printf("warning: failed to persist %s log: %v", name, err)
	}
}

// replayFromStore feeds persisted board entries back through the engine in
// protocol order: registrations, then ballots, then the tally.
func (cs *CoordinatorService) replayFromStore() error {
	entries, err := cs.store.LoadLog(registrationLog)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		var msg models.RegistrationMessage
		if err := json.Unmarshal(entry.Data, &msg); err != nil {
			return fmt.Errorf("corrupt registration entry %d: %w", entry.Index, err)
		}
		proof, err := decodeProof(msg)
		if err != nil {
			return fmt.Errorf("corrupt registration entry %d: %w", entry.Index, err)
		}
		if err := cs.election.SubmitPublicKey(msg.VoterID, proof); err != nil {
			return fmt.Errorf("replaying registration for %q: %w", msg.VoterID, err)
		}
	}
	if err := cs.registrations.Restore(entries); err != nil {
		return err
	}

	entries, err = cs.store.LoadLog(ballotLog)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		var msg models.BallotMessage
		if err := json.Unmarshal(entry.Data, &msg); err != nil {
			return fmt.Errorf("corrupt ballot entry %d: %w", entry.Index, err)
		}
		ballot, err := models.DecodeBig(msg.Ballot)
		if err != nil {
			return fmt.Errorf("corrupt ballot entry %d: %w", entry.Index, err)
		}
		if err := cs.election.SubmitVote(msg.VoterID, ballot); err != nil {
			return fmt.Errorf("replaying ballot for %q: %w", msg.VoterID, err)
		}
	}
	if err := cs.ballots.Restore(entries); err != nil {
		return err
	}

	entries, err = cs.store.LoadLog(tallyLog)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		var msg models.TallyMessage
		if err := json.Unmarshal(entry.Data, &msg); err != nil {
			return fmt.Errorf("corrupt tally entry %d: %w", entry.Index, err)
		}
		if err := cs.election.ResolveTally(msg.Counts); err != nil {
			return fmt.Errorf("replaying tally: %w", err)
		}
	}
	if err := cs.tallies.Restore(entries); err != nil {
		return err
	}

	if total := cs.registrations.Len() + cs.ballots.Len() + cs.tallies.Len(); total > 0 {
		log.Printf("resumed election from %d board entries, round %s", total, cs.election.Round())
	}
	return nil
}

func decodeProof(msg models.RegistrationMessage) (schnorr.Proof, error) {
	publicKey, err := models.DecodeBig(msg.PublicKey)
	if err != nil {
		return schnorr.Proof{}, err
	}
	commitment, err := models.DecodeBig(msg.Commitment)
	if err != nil {
		return schnorr.Proof{}, err
	}
	response, err := models.DecodeBig(msg.Response)
	if err != nil {
		return schnorr.Proof{}, err
	}
	return schnorr.Proof{PublicKey: publicKey, Commitment: commitment, Response: response}, nil
}

// StatusForError maps an engine failure to an HTTP-ish classification used
// by the API layer. Unknown errors are treated as bad requests.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, election.ErrUnauthorized):
		return 403
	case errors.Is(err, election.ErrWrongRound), errors.Is(err, election.ErrDuplicateKey):
		return 409
	case errors.Is(err, election.ErrTallyMismatch):
		return 422
	case errors.Is(err, election.ErrNotYetFinalized):
		return 409
	default:
		return 400
	}
}
