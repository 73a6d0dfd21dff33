// Producer-side delivery of game uploads: try the network relay first, fall
// back to the local same-device channel when it is unreachable. Network
// delivery is best-effort with at most one attempt per upload; a payload
// that fails the network leg is delivered locally instead, never retried.

package transport

import (
	"CareCast/internal/entity"
	"CareCast/internal/fallback"
	"CareCast/pkg/log"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Route identifies where an upload ended up.
type Route int

const (
	// RouteNone means the upload could not be delivered anywhere.
	RouteNone Route = iota
	// RouteRelay means the upload reached the network relay.
	RouteRelay
	// RouteLocal means the upload was saved to the local fallback channel.
	RouteLocal
)

func (r Route) String() string {
	switch r {
	case RouteRelay:
		return "relay"
	case RouteLocal:
		return "local"
	}
	return "none"
}

// Delay before re-probing the relay after a failed send.
const reprobeBackoff = 5 * time.Second

// Bound on one network round trip, short enough not to stall the next
// upload tick.
const requestTimeout = 8 * time.Second

// Transport decides per upload whether the relay is reachable and delivers
// accordingly. Safe for use from multiple goroutines.
type Transport struct {
	serverURL string
	client    *http.Client
	channel   fallback.Channel
	clock     clockwork.Clock
	logger    log.Logger

	mu        sync.Mutex
	connected bool
	reprobing bool
}

// New builds a Transport for the relay at serverURL with channel as the
// local fallback, and probes reachability once before returning. An empty
// serverURL disables the network leg entirely.
func New(serverURL string, channel fallback.Channel, clock clockwork.Clock, logger log.Logger) *Transport {
	t := &Transport{
		serverURL: serverURL,
		client:    &http.Client{Timeout: requestTimeout},
		channel:   channel,
		clock:     clock,
		logger:    logger,
	}
	if serverURL != "" {
		t.Probe(context.Background())
	}
	return t
}

// Probe performs one reachability check against the relay's status endpoint
// and records the outcome.
func (t *Transport) Probe(ctx context.Context) bool {
	connected := t.probeOnce(ctx)
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
	if connected {
		t.logger.Info().Msgf("Relay reachable at %s, network delivery enabled", t.serverURL)
	} else {
		t.logger.Info().Msgf("Relay unreachable at %s, using local delivery", t.serverURL)
	}
	return connected
}

func (t *Transport) probeOnce(ctx context.Context) bool {
	req, rqerr := http.NewRequestWithContext(ctx, http.MethodGet, t.serverURL+"/status", nil)
	if rqerr != nil {
		return false
	}
	resp, herr := t.client.Do(req)
	if herr != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Connected reports whether the last probe or send saw a reachable relay.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send delivers one upload: a single network attempt when the relay is
// believed reachable, otherwise straight to the local fallback channel.
// The returned Route tells the caller whether telemetry reached a remote
// observer or only same-device ones.
func (t *Transport) Send(ctx context.Context, upload entity.GameUpload) (Route, error) {
	if t.Connected() {
		if perr := t.post(ctx, upload); perr == nil {
			return RouteRelay, nil
		} else {
			t.logger.Warn().Err(perr).Msg("Network delivery failed, falling back to local channel")
			t.mu.Lock()
			t.connected = false
			t.mu.Unlock()
			t.scheduleReprobe()
		}
	}

	if t.channel == nil {
		return RouteNone, fmt.Errorf("no fallback channel configured")
	}
	if cerr := t.channel.Publish(ctx, t.logger, upload); cerr != nil {
		return RouteNone, cerr
	}
	return RouteLocal, nil
}

func (t *Transport) post(ctx context.Context, upload entity.GameUpload) error {
	raw, mrserr := json.Marshal(upload)
	if mrserr != nil {
		return mrserr
	}
	req, rqerr := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/upload-game-data", bytes.NewReader(raw))
	if rqerr != nil {
		return rqerr
	}
	req.Header.Set("Content-Type", "application/json")
	resp, herr := t.client.Do(req)
	if herr != nil {
		return herr
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay upload returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// scheduleReprobe arms a single delayed reachability check; repeat send
// failures while one is pending don't stack probes.
func (t *Transport) scheduleReprobe() {
	t.mu.Lock()
	if t.reprobing {
		t.mu.Unlock()
		return
	}
	t.reprobing = true
	t.mu.Unlock()

	t.clock.AfterFunc(reprobeBackoff, func() {
		t.mu.Lock()
		t.reprobing = false
		t.mu.Unlock()
		t.Probe(context.Background())
	})
}
