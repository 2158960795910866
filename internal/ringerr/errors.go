// Package ringerr defines the sentinel errors shared across the ring
// components, so callers can distinguish retryable transport failures
// from ring-state exhaustion from storage faults with errors.Is.
package ringerr

import "golang.org/x/xerrors"

var (
	// ErrUnreachable means a remote call could not reach its target node.
	ErrUnreachable = xerrors.New("ringd: node unreachable")

	// ErrTimeout means a remote call exceeded its transport-level deadline.
	ErrTimeout = xerrors.New("ringd: call timed out")

	// ErrRetriesExhausted means the retry budget of the remote-call
	// facade ran out without a successful reply.
	ErrRetriesExhausted = xerrors.New("ringd: retries exhausted")

	// ErrSuccessorListExhausted means every cached successor failed to
	// answer; the caller should fall back to self and flag a rejoin.
	ErrSuccessorListExhausted = xerrors.New("ringd: successor list exhausted")

	// ErrSeedUnreachable means Join could not reach the seed node.
	ErrSeedUnreachable = xerrors.New("ringd: seed unreachable")

	// ErrStoreNotFound means no store exists for the given owner id.
	ErrStoreNotFound = xerrors.New("ringd: no store for owner")

	// ErrVersionRegressed means a ReplicateIn arrived with a version
	// number lower than what the replica previously believed the
	// primary to be on, a protocol-inconsistency case corrected by
	// DeleteStore plus a full reseed.
	ErrVersionRegressed = xerrors.New("ringd: replica version regressed")

	// ErrInvalidNode marks a programmer error: an operation was asked
	// to act on a nil or self-referential node where that is invalid.
	ErrInvalidNode = xerrors.New("ringd: invalid node reference")
)

// Wrap attaches context to err using xerrors' %w wrapping, preserving
// errors.Is/As compatibility with the sentinels above.
func Wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", context, err)
}
