package scatter

import "github.com/pkg/errors"

// Error kinds reported by the scatter engine. They classify every synchronously detected failure;
// use errors.Is to test for them. A state or size error leaves the context unmodified.
var (
	// ErrWrongState reports a call in the wrong lifecycle state: re-entrant Begin, or destroying
	// the last reference of a context that is mid-transfer.
	ErrWrongState = errors.New("scatter context in wrong state")

	// ErrSizeMismatch reports a vector whose local size disagrees with the declared size of the
	// corresponding context side, when that size is known.
	ErrSizeMismatch = errors.New("vector size does not match scatter context")

	// ErrNotSupported reports an operation the context's format combination has no rule for,
	// such as remapping a non-identity stride.
	ErrNotSupported = errors.New("operation not supported for this scatter format")
)
