package service

import (
	"errors"
	"log"
	"math/big"
	"sync"

	"openvote-backend/models"
	"openvote-backend/schnorr"
)

var errQueueFull = errors.New("submission queue is full")

// QueueProcessor funnels every mutating submission through a single worker
// goroutine. The engine's own mutex already makes each operation atomic; the
// queue additionally gives the deployment one total order over submissions,
// so the coordinator behaves like the serialized execution environment the
// protocol was designed for.
type QueueProcessor struct {
	coordinator    *CoordinatorService
	registrationCh chan *registrationRequest
	ballotCh       chan *ballotRequest
	tallyCh        chan *tallyRequest
	shutdownCh     chan struct{}
	processingWg   sync.WaitGroup
}

type registrationRequest struct {
	voterID  string
	proof    schnorr.Proof
	resultCh chan<- *ProcessingResult
}

type ballotRequest struct {
	voterID  string
	ballot   *big.Int
	resultCh chan<- *ProcessingResult
}

type tallyRequest struct {
	counts   []uint64
	resultCh chan<- *ProcessingResult
}

// ProcessingResult contains the outcome of a queued submission.
type ProcessingResult struct {
	Success   bool
	VoterID   string
	ReceiptID string
	Tally     *models.TallyMessage
	Err       error
}

// NewQueueProcessor creates a queue in front of the coordinator.
func NewQueueProcessor(coordinator *CoordinatorService, queueSize int) *QueueProcessor {
	return &QueueProcessor{
		coordinator:    coordinator,
		registrationCh: make(chan *registrationRequest, queueSize),
		ballotCh:       make(chan *ballotRequest, queueSize),
		tallyCh:        make(chan *tallyRequest, queueSize),
		shutdownCh:     make(chan struct{}),
	}
}

// Start begins processing queued submissions.
func (qp *QueueProcessor) Start() {
	qp.processingWg.Add(1)
	go qp.worker()
}

// Stop gracefully shuts down the queue processor.
func (qp *QueueProcessor) Stop() {
	close(qp.shutdownCh)
	qp.processingWg.Wait()
}

// QueueRegistration enqueues a registration and returns the channel its
// result will arrive on.
func (qp *QueueProcessor) QueueRegistration(voterID string, proof schnorr.Proof) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.registrationCh <- &registrationRequest{voterID: voterID, proof: proof, resultCh: resultCh}:
	default:
		log.Printf("warning: registration queue full, rejecting submission from %q", voterID)
		resultCh <- &ProcessingResult{Err: errQueueFull}
		close(resultCh)
	}
	return resultCh
}

// QueueBallot enqueues a ballot submission.
func (qp *QueueProcessor) QueueBallot(voterID string, ballot *big.Int) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.ballotCh <- &ballotRequest{voterID: voterID, ballot: ballot, resultCh: resultCh}:
	default:
		log.Printf("warning: ballot queue full, rejecting submission from %q", voterID)
		resultCh <- &ProcessingResult{Err: errQueueFull}
		close(resultCh)
	}
	return resultCh
}

// QueueTally enqueues a tally claim.
func (qp *QueueProcessor) QueueTally(counts []uint64) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.tallyCh <- &tallyRequest{counts: counts, resultCh: resultCh}:
	default:
		log.Printf("warning: tally queue full, rejecting submission")
		resultCh <- &ProcessingResult{Err: errQueueFull}
		close(resultCh)
	}
	return resultCh
}

// worker is the single goroutine applying submissions, in arrival order,
// one at a time.
func (qp *QueueProcessor) worker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			return
		case req := <-qp.registrationCh:
			err := qp.coordinator.SubmitRegistration(req.voterID, req.proof)
			req.resultCh <- &ProcessingResult{Success: err == nil, VoterID: req.voterID, Err: err}
			close(req.resultCh)
		case req := <-qp.ballotCh:
			receiptID, err := qp.coordinator.SubmitBallot(req.voterID, req.ballot)
			req.resultCh <- &ProcessingResult{Success: err == nil, VoterID: req.voterID, ReceiptID: receiptID, Err: err}
			close(req.resultCh)
		case req := <-qp.tallyCh:
			tally, err := qp.coordinator.SubmitTally(req.counts)
			req.resultCh <- &ProcessingResult{Success: err == nil, Tally: tally, Err: err}
			close(req.resultCh)
		}
	}
}
