package tasks

import (
	"fmt"

	"github.com/wonny/argos/internal/contracts"
)

// AlreadyRunningError rejects a submit whose subject already occupies an
// execution slot. It carries the existing task's view so callers can
// hand it back instead of creating anything.
type AlreadyRunningError struct {
	Existing contracts.StatusView
}

func (e *AlreadyRunningError) Error() string {
	if e.Existing.Symbol != "" {
		return fmt.Sprintf("symbol %s already has an active task %s (%s)",
			e.Existing.Symbol, e.Existing.TaskID, e.Existing.Status)
	}
	return fmt.Sprintf("a bulk run is already active: task %s (%s)",
		e.Existing.TaskID, e.Existing.Status)
}
