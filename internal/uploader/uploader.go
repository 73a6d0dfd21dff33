// Uploader turns a live game session into a bounded sequence of delta
// uploads: sample the score on a fixed cadence, dispatch what changed since
// the last flush, and flush the residual once on session end. The sum of
// all dispatched deltas equals the session's final cumulative score and
// elapsed time, even though no individual upload is acknowledged.

package uploader

import (
	"CareCast/internal/entity"
	"CareCast/internal/patients"
	"CareCast/internal/transport"
	"CareCast/pkg/log"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FlushPeriod is the fixed cadence between periodic uploads. Time is counted
// in these discrete ticks, not wall-clock elapsed, so scheduling drift never
// corrupts the time ledger.
const FlushPeriod = 15 * time.Second

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("uploader: session already active")

// ScoreFunc reads the game's current cumulative score. The uploader pulls
// rather than being pushed to, so it stays decoupled from the game's
// internal state shape.
type ScoreFunc func() int

// Dispatcher delivers one upload somewhere durable or observable and
// reports the route taken.
type Dispatcher interface {
	Send(ctx context.Context, upload entity.GameUpload) (transport.Route, error)
}

// Uploader flushes one game session's telemetry on a fixed cadence.
// One Uploader tracks at most one active session at a time.
type Uploader struct {
	kind      string
	resolve   SubjectResolver
	score     ScoreFunc
	dispatch  Dispatcher
	directory patients.Directory
	clock     clockwork.Clock
	logger    log.Logger

	// mu guards the session watermark; End racing a pending tick must not
	// double-count, the watermark is the single source of truth.
	mu      sync.Mutex
	session *entity.Session
	ticker  clockwork.Ticker
	stop    chan struct{}
}

// New builds an Uploader for one activity kind. directory may be nil, in
// which case increments are not mirrored into any patient record.
func New(kind string, resolve SubjectResolver, score ScoreFunc, dispatch Dispatcher, directory patients.Directory, clock clockwork.Clock, logger log.Logger) *Uploader {
	kind = entity.NormalizeActivityKind(kind)
	if !entity.IsActivityKind(kind) {
		logger.Warn().Msgf("Unknown activity kind %q, uploads will carry it as-is", kind)
	}
	if directory == nil {
		directory = patients.Noop{}
	}
	return &Uploader{
		kind:      kind,
		resolve:   resolve,
		score:     score,
		dispatch:  dispatch,
		directory: directory,
		clock:     clock,
		logger:    logger,
	}
}

// Start marks the session active with initialScore as the watermark and
// arms the periodic flush timer.
func (u *Uploader) Start(ctx context.Context, initialScore int) error {
	subjectID, rerr := u.resolve(ctx)
	if rerr != nil {
		u.logger.Warn().Err(rerr).Msg("No subject resolved, telemetry upload not started")
		return rerr
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session != nil && u.session.Active {
		return ErrSessionActive
	}
	u.session = &entity.Session{
		SubjectID:      subjectID,
		ActivityKind:   u.kind,
		StartedAt:      u.clock.Now(),
		LastFlushScore: initialScore,
		Active:         true,
	}
	u.ticker = u.clock.NewTicker(FlushPeriod)
	u.stop = make(chan struct{})
	go u.run(ctx, u.ticker, u.stop)

	u.logger.Info().Msgf("Started %s telemetry for patient %s", entity.ActivityLabel(u.kind), subjectID)
	return nil
}

func (u *Uploader) run(ctx context.Context, ticker clockwork.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.Chan():
			u.flushTick(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// flushTick dispatches the delta accumulated since the last flush. Time
// advances by exactly one period per tick, so a tick is never a no-op while
// the session is active.
func (u *Uploader) flushTick(ctx context.Context) {
	u.mu.Lock()
	if u.session == nil || !u.session.Active {
		u.mu.Unlock()
		return
	}
	current := u.score()
	scoreDelta := current - u.session.LastFlushScore
	timeDelta := int(FlushPeriod / time.Second)
	subjectID := u.session.SubjectID
	u.session.LastFlushScore = current
	u.session.LastFlushSeconds += timeDelta
	u.mu.Unlock()

	u.dispatchUpload(ctx, subjectID, scoreDelta, timeDelta, false)
}

// End disarms the timer, flushes the residual delta once with the final
// marker and leaves the session inactive. A second End is a no-op, the
// residual is already zero.
func (u *Uploader) End(ctx context.Context, finalScore int) {
	u.mu.Lock()
	if u.session == nil || !u.session.Active {
		u.mu.Unlock()
		return
	}
	u.session.Active = false
	u.disarmLocked()

	scoreDelta := finalScore - u.session.LastFlushScore
	elapsed := int(u.clock.Since(u.session.StartedAt) / time.Second)
	residual := elapsed % int(FlushPeriod/time.Second)
	subjectID := u.session.SubjectID
	u.session.LastFlushScore = finalScore
	u.session.LastFlushSeconds += residual
	u.mu.Unlock()

	if scoreDelta != 0 || residual != 0 {
		u.dispatchUpload(ctx, subjectID, scoreDelta, residual, true)
	}
	u.logger.Info().Msgf("Ended %s telemetry for patient %s, final score %d", entity.ActivityLabel(u.kind), subjectID, finalScore)
}

// Stop halts the timer without a final flush, for abrupt teardown.
func (u *Uploader) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session != nil {
		u.session.Active = false
	}
	u.disarmLocked()
}

// Restart stops any running session and starts a new one from the current
// watermark score.
func (u *Uploader) Restart(ctx context.Context) error {
	u.Stop()
	u.mu.Lock()
	score := 0
	if u.session != nil {
		score = u.session.LastFlushScore
		u.session = nil
	}
	u.mu.Unlock()
	return u.Start(ctx, score)
}

// ManualUpload dispatches an increment immediately on the game's behalf,
// outside the periodic cadence, and advances the watermark by it.
func (u *Uploader) ManualUpload(ctx context.Context, scoreInc, timeInc int) {
	u.mu.Lock()
	if u.session == nil || !u.session.Active {
		u.mu.Unlock()
		return
	}
	subjectID := u.session.SubjectID
	u.session.LastFlushScore += scoreInc
	u.session.LastFlushSeconds += timeInc
	u.mu.Unlock()

	u.dispatchUpload(ctx, subjectID, scoreInc, timeInc, false)
}

// Watermark returns the cumulative score and seconds dispatched so far.
func (u *Uploader) Watermark() (score, seconds int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil {
		return 0, 0
	}
	return u.session.LastFlushScore, u.session.LastFlushSeconds
}

func (u *Uploader) disarmLocked() {
	if u.ticker != nil {
		u.ticker.Stop()
		u.ticker = nil
	}
	if u.stop != nil {
		close(u.stop)
		u.stop = nil
	}
}

func (u *Uploader) dispatchUpload(ctx context.Context, subjectID string, scoreDelta, timeDelta int, final bool) {
	// An all-zero non-final upload is a no-op, suppressed
	if scoreDelta == 0 && timeDelta == 0 && !final {
		return
	}
	upload := entity.GameUpload{
		PatientID:     entity.SubjectID(subjectID),
		GameType:      u.kind,
		ScoreIncrease: scoreDelta,
		TimeIncrease:  timeDelta,
		Timestamp:     u.clock.Now().UTC().Format(time.RFC3339),
		IsFinalUpload: final,
		Source:        "patient",
	}

	route, serr := u.dispatch.Send(ctx, upload)
	if serr != nil {
		u.logger.Error().Err(serr).Msg("Upload could not be delivered anywhere")
		return
	}
	// Distinguishable confirmation: a human can tell whether telemetry
	// reached a remote observer or only this device
	switch route {
	case transport.RouteRelay:
		u.logger.Info().Msgf("%s: score +%d, time +%ds, relayed to care station", entity.ActivityLabel(u.kind), scoreDelta, timeDelta)
	case transport.RouteLocal:
		u.logger.Info().Msgf("%s: score +%d, time +%ds, saved locally", entity.ActivityLabel(u.kind), scoreDelta, timeDelta)
	}

	if aerr := u.directory.ApplyIncrement(ctx, subjectID, u.kind, scoreDelta, timeDelta); aerr != nil {
		u.logger.Warn().Err(aerr).Msg("Couldn't mirror increment into the patient record")
	}
}
