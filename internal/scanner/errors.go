package scanner

import (
	"errors"

	"github.com/bissquit/eventrelay/internal/pkg/postgres"
)

// ErrPrecondition is returned by a source when the storage it scans is not
// ready (missing table, column or index). The run is skipped, not failed.
var ErrPrecondition = errors.New("scan precondition not met")

// isPrecondition reports whether err means the run should be skipped.
func isPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition) || postgres.IsUndefinedObject(err)
}
