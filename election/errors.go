package election

import "errors"

// Failure kinds surfaced by election operations. Callers inspect them with
// errors.Is; the wrapped message carries the human-readable reason.
var (
	// ErrInvalidConfiguration rejects bad constructor parameters.
	ErrInvalidConfiguration = errors.New("invalid election configuration")

	// ErrUnauthorized rejects callers that are not on the roster or have
	// already acted in the current round.
	ErrUnauthorized = errors.New("voter not authorized")

	// ErrWrongRound rejects operations invoked outside their valid round.
	ErrWrongRound = errors.New("operation not valid in current round")

	// ErrInvalidProof rejects registrations whose proof of key ownership
	// does not verify, and malformed ballots when strict checking is on.
	ErrInvalidProof = errors.New("proof verification failed")

	// ErrDuplicateKey rejects a public key already bound to another voter.
	ErrDuplicateKey = errors.New("public key already registered")

	// ErrTallyMismatch rejects a claimed count vector that does not
	// reconstruct the aggregate.
	ErrTallyMismatch = errors.New("claimed tally does not match aggregate")

	// ErrNotYetFinalized rejects result queries before the election closes.
	ErrNotYetFinalized = errors.New("election not yet finalized")
)
