// Patient directory capability used by the uploader: resolve the subject a
// session belongs to and apply score/time increments to their record. The
// full patient roster CRUD lives outside this system; telemetry only needs
// these two operations.

package patients

import (
	"context"
	"errors"
)

// ErrNoSubject is returned when no patient is currently checked in on this
// device.
var ErrNoSubject = errors.New("patients: no current subject")

type Directory interface {
	// ResolveCurrentSubject returns the id of the patient currently checked
	// in on this device.
	ResolveCurrentSubject(ctx context.Context) (string, error)
	// ApplyIncrement adds a score/time delta to the patient's per-activity
	// and total tallies.
	ApplyIncrement(ctx context.Context, subjectID, kind string, scoreInc, timeInc int) error
}

// Noop is the default collaborator when no directory is configured, e.g.
// demo sessions bound to a fixed patient id.
type Noop struct{}

func (Noop) ResolveCurrentSubject(ctx context.Context) (string, error) {
	return "", ErrNoSubject
}

func (Noop) ApplyIncrement(ctx context.Context, subjectID, kind string, scoreInc, timeInc int) error {
	return nil
}
