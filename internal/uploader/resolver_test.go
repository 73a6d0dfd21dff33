// Subject resolution tests in CareCast.

package uploader

import (
	"CareCast/internal/patients"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubDirectory struct {
	subjectID string
	err       error
}

func (d stubDirectory) ResolveCurrentSubject(ctx context.Context) (string, error) {
	return d.subjectID, d.err
}

func (d stubDirectory) ApplyIncrement(ctx context.Context, subjectID, kind string, scoreInc, timeInc int) error {
	return nil
}

func TestFixedSubject(t *testing.T) {
	subjectID, rerr := FixedSubject("102")(context.Background())
	assert.NoError(t, rerr)
	assert.Equal(t, "102", subjectID)

	_, rerr = FixedSubject("")(context.Background())
	assert.ErrorIs(t, rerr, ErrNoFixedSubject)
}

func TestDirectorySubject(t *testing.T) {
	resolve := DirectorySubject(stubDirectory{subjectID: "205"}, "102")
	subjectID, rerr := resolve(context.Background())
	assert.NoError(t, rerr)
	assert.Equal(t, "205", subjectID)
}

func TestDirectorySubjectFallsBackWhenNobodyCheckedIn(t *testing.T) {
	resolve := DirectorySubject(patients.Noop{}, "102")
	subjectID, rerr := resolve(context.Background())
	assert.NoError(t, rerr)
	assert.Equal(t, "102", subjectID)

	// Without a fallback id the resolution error propagates
	resolve = DirectorySubject(patients.Noop{}, "")
	_, rerr = resolve(context.Background())
	assert.ErrorIs(t, rerr, patients.ErrNoSubject)
}
