package capture

import (
	"errors"
	"fmt"
)

// ErrEmptySelection reports that a selection-based capture found no
// content. Callers treat it as a silent no-op, not a failure to surface.
var ErrEmptySelection = errors.New("capture: empty selection")

// ErrPermissionDenied reports that the user (or the platform) refused a
// capability the capture needed, typically screen capture. User-facing:
// the UI should instruct re-granting the permission.
var ErrPermissionDenied = errors.New("capture: permission denied")

// ExtractionError is the catch-all failure for a capture attempt. Any
// unexpected panic or error during DOM traversal is converted into one;
// extraction never propagates an uncaught failure to its caller.
type ExtractionError struct {
	Type   Type
	Reason string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture: %s extraction failed: %s: %v", e.Type, e.Reason, e.Cause)
	}
	return fmt.Sprintf("capture: %s extraction failed: %s", e.Type, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }
