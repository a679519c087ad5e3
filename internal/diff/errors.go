package diff

import (
	"errors"
	"fmt"
)

// ComputationError reports a broken identity/content contract or a script
// that does not fit the list it is applied to. It indicates a defect, not a
// data error, and callers should surface it loudly.
type ComputationError struct {
	Reason string
	Key    string
}

func (e *ComputationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("diff: %s (key=%q)", e.Reason, e.Key)
	}
	return "diff: " + e.Reason
}

// IsComputationError reports whether err is, or wraps, a ComputationError.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
