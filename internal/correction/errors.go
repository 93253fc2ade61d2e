package correction

import "errors"

// Failure kinds of a correction cycle. None of them reach the editor: the
// engine logs them, counts them and leaves the user's text untouched.
var (
	// ErrTransportUnavailable wraps any error returned by the oracle.
	ErrTransportUnavailable = errors.New("correction: oracle unavailable")

	// ErrPositionNotFound means the submitted sentence could no longer be
	// located in the document, or only a partial anchor was found that the
	// correction cannot be aligned with.
	ErrPositionNotFound = errors.New("correction: sentence position not found")

	// ErrStaleDocument means the document changed between locating the
	// sentence and applying the replacement.
	ErrStaleDocument = errors.New("correction: document changed before patch")
)
