// Subject resolution strategies for the uploader. Demo games bind to a
// fixed patient id, integrated deployments look the subject up in the
// patient directory at session start.

package uploader

import (
	"CareCast/internal/patients"
	"context"
	"errors"
)

// ErrNoFixedSubject is returned when a fixed resolver was built without an id.
var ErrNoFixedSubject = errors.New("uploader: no fixed subject id configured")

// SubjectResolver yields the subject a new session belongs to.
type SubjectResolver func(ctx context.Context) (string, error)

// FixedSubject always resolves to the given id.
func FixedSubject(subjectID string) SubjectResolver {
	return func(ctx context.Context) (string, error) {
		if subjectID == "" {
			return "", ErrNoFixedSubject
		}
		return subjectID, nil
	}
}

// DirectorySubject resolves whichever patient is currently checked in on
// this device, with fallbackID used when nobody is.
func DirectorySubject(directory patients.Directory, fallbackID string) SubjectResolver {
	return func(ctx context.Context) (string, error) {
		subjectID, rerr := directory.ResolveCurrentSubject(ctx)
		if errors.Is(rerr, patients.ErrNoSubject) && fallbackID != "" {
			return fallbackID, nil
		}
		if rerr != nil {
			return "", rerr
		}
		return subjectID, nil
	}
}
