package types

import (
	"golang.org/x/xerrors"
)

// CallerError wraps an error caused by invalid caller input: an
// over-sized piece, an unknown sector id, a piece key that doesn't
// exist, a staged-sector cap that's already full.
type CallerError struct {
	err error
}

func NewCallerError(err error) error {
	return &CallerError{err: err}
}

func (e *CallerError) Error() string { return "caller error: " + e.err.Error() }
func (e *CallerError) Unwrap() error { return e.err }

// ReceiverError wraps an internal failure that was safely detected and
// reported: a short write while ingesting a piece, an I/O error. Some
// receiver errors (snapshot write failure) are additionally marked
// Unrecoverable.
type ReceiverError struct {
	err error
}

func NewReceiverError(err error) error {
	return &ReceiverError{err: err}
}

func (e *ReceiverError) Error() string { return "receiver error: " + e.err.Error() }
func (e *ReceiverError) Unwrap() error { return e.err }

// UnclassifiedError wraps an external-library error not otherwise
// mapped to a Caller/Receiver class.
type UnclassifiedError struct {
	err error
}

func NewUnclassifiedError(err error) error {
	return &UnclassifiedError{err: err}
}

func (e *UnclassifiedError) Error() string { return "unclassified error: " + e.err.Error() }
func (e *UnclassifiedError) Unwrap() error { return e.err }

// UnrecoverableError marks an error that leaves engine state
// potentially inconsistent: a snapshot write failure, a worker panic,
// an invariant violation. Callers that see one should treat the
// Builder as no longer safe to use.
type UnrecoverableError struct {
	err error
}

func NewUnrecoverableError(err error) error {
	return &UnrecoverableError{err: err}
}

func (e *UnrecoverableError) Error() string { return "unrecoverable: " + e.err.Error() }
func (e *UnrecoverableError) Unwrap() error { return e.err }

// IsUnrecoverable reports whether err (or something it wraps) is an
// UnrecoverableError.
func IsUnrecoverable(err error) bool {
	var u *UnrecoverableError
	return xerrors.As(err, &u)
}

// ErrPieceNotFound is returned by ReadPieceFromSealedSector when no
// sealed sector holds the given piece key, and by piecedir.Index.Get
// when the key has no recorded location.
func ErrPieceNotFound(pieceKey string) error {
	return NewCallerError(xerrors.Errorf("piece not found: %s", pieceKey))
}

// ErrFullyStaged is returned by AddPiece when the staged-sector cap is
// reached and no existing staged sector has room for the piece.
var ErrFullyStaged = NewCallerError(xerrors.Errorf("no room left in any staged sector and max_num_staged_sectors reached"))
