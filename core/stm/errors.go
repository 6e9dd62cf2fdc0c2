package stm

import "github.com/pkg/errors"

var (
	// ErrAborted is the error carried by Abort(nil).
	ErrAborted = errors.New("stm: transaction aborted")
	// ErrTooManyConflicts is returned by Commit when a Runtime configured with
	// WithMaxConflicts sees more consecutive validation failures than allowed.
	ErrTooManyConflicts = errors.New("stm: too many conflicting commits")
)

// errRetry is the control signal produced by Retry and a failed Check. It
// never leaves the interpreter/commit loop.
var errRetry = errors.New("stm: retry")

// errStale reports that an attempt panicked while its reads were no longer
// consistent. The attempt is re-run like any other validation failure.
var errStale = errors.New("stm: stale read")
