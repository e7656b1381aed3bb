package graph

import (
	"fmt"
	"strings"
)

// ValidationError describes one structural problem found while building a
// graph. It always names the stage the problem was detected on.
type ValidationError struct {
	StageID string
	Msg     string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %q: %s", e.StageID, e.Msg)
}

// ValidationErrors aggregates every problem found in a single Build pass,
// so a caller sees all of them at once instead of fixing one per attempt.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "pipeline validation failed with %d errors:", len(e))
	for _, err := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}
