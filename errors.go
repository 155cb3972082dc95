package scriptrate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSentenceIndex is returned when an operation that addresses a sentence
// has no sentence index to address it with. The operation is aborted rather
// than guessed: misattributing an edit to the wrong sentence is never
// acceptable.
var ErrNoSentenceIndex = errors.New("fragment has no sentence index")

// ErrReplaceUnchanged is returned when an AI replace produced no usable
// replacement: the server declined, or echoed the original text back.
var ErrReplaceUnchanged = errors.New("no replacement produced; try a manual edit or a different target rating")

// ErrStageNotReady signals that a polled pipeline stage has not produced
// output yet. It is a normal transient state, not a failure.
var ErrStageNotReady = errors.New("stage not ready")

// ErrStreamStalled is returned when the analysis stream produced no data
// within the watchdog window.
var ErrStreamStalled = errors.New("analysis stream stalled")

// ExportBlockedError reports that report export is not allowed because some
// edited scenes have not been recalculated yet.
type ExportBlockedError struct {
	Pending []int // scene numbers edited since their last recalculation
}

// Error implements the error interface.
func (e *ExportBlockedError) Error() string {
	nums := make([]string, len(e.Pending))
	for i, n := range e.Pending {
		nums[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("recalculate scenes %s before exporting the report", strings.Join(nums, ", "))
}
