// Uploader tests in CareCast.

package uploader

import (
	"CareCast/internal/entity"
	"CareCast/internal/transport"
	"CareCast/pkg/log"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during uploader testing.
var logger log.Logger = log.New("test")

// Global context
var ctx context.Context = context.Background()

// recordingDispatcher captures every dispatched upload on a channel so
// tests can wait for the asynchronous tick loop deterministically.
type recordingDispatcher struct {
	route   transport.Route
	uploads chan entity.GameUpload
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{route: transport.RouteRelay, uploads: make(chan entity.GameUpload, 32)}
}

func (d *recordingDispatcher) Send(ctx context.Context, upload entity.GameUpload) (transport.Route, error) {
	d.uploads <- upload
	return d.route, nil
}

// next blocks until the uploader dispatches one upload.
func (d *recordingDispatcher) next(t *testing.T) entity.GameUpload {
	t.Helper()
	select {
	case upload := <-d.uploads:
		return upload
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a dispatched upload")
	}
	return entity.GameUpload{}
}

// assertNone asserts nothing gets dispatched in a short window.
func (d *recordingDispatcher) assertNone(t *testing.T) {
	t.Helper()
	select {
	case upload := <-d.uploads:
		t.Fatalf("Unexpected upload dispatched: %+v", upload)
	case <-time.After(100 * time.Millisecond):
	}
}

// scoreSource mimics the game's cumulative score counter.
type scoreSource struct {
	mu    sync.Mutex
	value int
}

func (s *scoreSource) set(value int) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

func (s *scoreSource) read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Helper to build an uploader with a fake clock for the tests below.
func newTestUploader(kind string) (*Uploader, clockwork.FakeClock, *recordingDispatcher, *scoreSource) {
	clock := clockwork.NewFakeClock()
	dispatcher := newRecordingDispatcher()
	score := &scoreSource{}
	upl := New(kind, FixedSubject("102"), score.read, dispatcher, nil, clock, logger)
	return upl, clock, dispatcher, score
}

// tick advances the fake clock by one flush period and returns the upload
// it produced.
func tick(t *testing.T, clock clockwork.FakeClock, dispatcher *recordingDispatcher) entity.GameUpload {
	t.Helper()
	clock.Advance(FlushPeriod)
	return dispatcher.next(t)
}

func TestPeriodicFlushPerTick(t *testing.T) {
	upl, clock, dispatcher, score := newTestUploader("coordination")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	// Idle tick still carries the time increment
	first := tick(t, clock, dispatcher)
	assert.Equal(t, entity.SubjectID("102"), first.PatientID)
	assert.Equal(t, "coordination", first.GameType)
	assert.Equal(t, 0, first.ScoreIncrease)
	assert.Equal(t, 15, first.TimeIncrease)
	assert.False(t, first.IsFinalUpload)

	// Score moved between ticks, delta relative to the watermark
	score.set(5)
	second := tick(t, clock, dispatcher)
	assert.Equal(t, 5, second.ScoreIncrease)
	assert.Equal(t, 15, second.TimeIncrease)

	// Watermark advanced, an unchanged score yields a zero delta again
	third := tick(t, clock, dispatcher)
	assert.Equal(t, 0, third.ScoreIncrease)

	upl.Stop()
}

func TestLegacyKindNormalized(t *testing.T) {
	upl, clock, dispatcher, _ := newTestUploader("fruit")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	upload := tick(t, clock, dispatcher)
	assert.Equal(t, "reaction", upload.GameType)

	upl.Stop()
}

func TestConservationAcrossSession(t *testing.T) {
	upl, clock, dispatcher, score := newTestUploader("reaction")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	var totalScore, totalTime int
	collect := func(upload entity.GameUpload) {
		totalScore += upload.ScoreIncrease
		totalTime += upload.TimeIncrease
	}

	score.set(3)
	collect(tick(t, clock, dispatcher))
	collect(tick(t, clock, dispatcher))
	score.set(8)
	collect(tick(t, clock, dispatcher))

	// End mid-period, the residual seconds and score go out with the
	// final marker
	clock.Advance(7 * time.Second)
	upl.End(ctx, 10)
	final := dispatcher.next(t)
	assert.True(t, final.IsFinalUpload)
	assert.Equal(t, 2, final.ScoreIncrease)
	assert.Equal(t, 7, final.TimeIncrease)
	collect(final)

	// Sum of deltas equals the final cumulative score and total elapsed time
	assert.Equal(t, 10, totalScore)
	assert.Equal(t, 52, totalTime)
}

func TestEndIsIdempotent(t *testing.T) {
	upl, clock, dispatcher, _ := newTestUploader("cognitive")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	clock.Advance(7 * time.Second)
	upl.End(ctx, 4)
	final := dispatcher.next(t)
	assert.True(t, final.IsFinalUpload)
	assert.Equal(t, 4, final.ScoreIncrease)
	assert.Equal(t, 7, final.TimeIncrease)

	// Second End is a no-op, the residual is already zero
	upl.End(ctx, 4)
	dispatcher.assertNone(t)
}

func TestZeroResidualEndDispatchesNothing(t *testing.T) {
	upl, _, dispatcher, _ := newTestUploader("coordination")
	assert.NoError(t, upl.Start(ctx, 0))

	upl.End(ctx, 0)
	dispatcher.assertNone(t)
}

func TestStopDispatchesNothing(t *testing.T) {
	upl, clock, dispatcher, score := newTestUploader("coordination")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	score.set(9)
	upl.Stop()
	dispatcher.assertNone(t)
}

func TestManualUploadAdvancesWatermark(t *testing.T) {
	upl, clock, dispatcher, score := newTestUploader("reaction")
	assert.NoError(t, upl.Start(ctx, 0))
	clock.BlockUntil(1)

	upl.ManualUpload(ctx, 2, 3)
	manual := dispatcher.next(t)
	assert.Equal(t, 2, manual.ScoreIncrease)
	assert.Equal(t, 3, manual.TimeIncrease)
	assert.False(t, manual.IsFinalUpload)

	// An all-zero manual upload is suppressed
	upl.ManualUpload(ctx, 0, 0)
	dispatcher.assertNone(t)

	// The manual increment counted against the watermark, so the next tick
	// sees no new score
	score.set(2)
	periodic := tick(t, clock, dispatcher)
	assert.Equal(t, 0, periodic.ScoreIncrease)

	upl.Stop()
}

func TestStartWhileActiveFails(t *testing.T) {
	upl, _, _, _ := newTestUploader("coordination")
	assert.NoError(t, upl.Start(ctx, 0))
	assert.ErrorIs(t, upl.Start(ctx, 0), ErrSessionActive)
	upl.Stop()
}

func TestStartWithoutSubjectFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dispatcher := newRecordingDispatcher()
	upl := New("coordination", FixedSubject(""), func() int { return 0 }, dispatcher, nil, clock, logger)

	assert.Error(t, upl.Start(ctx, 0))
	dispatcher.assertNone(t)
}
