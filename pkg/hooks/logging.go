package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/operations-host/pkg/registry"
)

// LogFailures is an ErrorHandler that logs each failure, with the stack
// when the operation panicked.
type LogFailures struct{}

// HandleError implements ErrorHandler.
func (LogFailures) HandleError(_ context.Context, f *Failure) error {
	where := f.Route
	if f.Source == SourceTask {
		where = "task " + f.Task
	}
	slog.Error(fmt.Sprintf("hooks:logging - %s failure at %s (correlation %s): %v", f.Source, where, f.CorrelationID, f.Err))

	var pe *registry.PanicError
	if errors.As(f.Err, &pe) {
		slog.Debug(fmt.Sprintf("hooks:logging - stack:\n%s", pe.Stack))
	}
	return nil
}
