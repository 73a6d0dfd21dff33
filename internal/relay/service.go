// Service layer of the telemetry relay broker in CareCast.
// Fans every ingress upload out to all currently connected observers.

package relay

import (
	"CareCast/internal/entity"
	"CareCast/pkg/log"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// HeartbeatPeriod is the interval between keep-alive events on an open
// observer stream, so intermediaries do not time the connection out.
const HeartbeatPeriod = 30 * time.Second

// Events an observer may lag behind before being treated as failed.
const clientBuffer = 16

type Service interface {
	// Initializes and / or returns the broadcast instance of entity.SSE
	GetOrSetEvent(ctx context.Context) *entity.SSE
	// Launch a listener for the broker, preferably in a goroutine for non-blockage
	Listen(ctx context.Context)
	// Broadcast fans msg out to every currently connected observer
	Broadcast(ctx context.Context, msg entity.SSEData)
	// ClientCount returns the number of currently connected observers
	ClientCount() int
	// Clock drives stream heartbeats, swappable in tests
	Clock() clockwork.Clock
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
// Also helps to pass objects to be used from outer layer.
type service struct {
	clock  clockwork.Clock
	logger log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(clock clockwork.Clock, logger log.Logger) Service {
	return service{clock, logger}
}

// Global Instance of entity.SSE initialized via GetOrSetEvent().
var event *entity.SSE

// Quit signal to force close observer streams before server shutdown
var quit chan bool

// sync.Once singleton is used to make sure event instantiation is done only once.
var once sync.Once

// Number of currently connected observers, maintained by Listen only.
var clientCount int32

func (s service) GetOrSetEvent(ctx context.Context) *entity.SSE {
	once.Do(func() {
		quit = make(chan bool)
		event = &entity.SSE{
			Broadcast:     make(chan entity.SSEData),
			NewClients:    make(chan entity.SSEClient),
			ClosedClients: make(chan entity.SSEClient),
			TotalClients:  make(map[string]chan entity.SSEData),
		}
		s.logger.WithCtx(ctx).Info().Msg("Initialized CareCast relay broker.")
	})
	return event
}

// Listen owns the observer set; join, leave and broadcast all funnel through
// this single goroutine so the set is never mutated concurrently.
func (s service) Listen(ctx context.Context) {
	for {
		select {
		// Add new available observer
		case client, ok := <-s.GetOrSetEvent(ctx).NewClients:
			if !ok {
				s.logger.WithCtx(ctx).Error().Msgf("Error occured while setting new observer channel for %s", client.ID)
			} else {
				s.GetOrSetEvent(ctx).TotalClients[client.ID] = client.Channel
				atomic.AddInt32(&clientCount, 1)
				s.logger.WithCtx(ctx).Info().Msgf("Added observer %s into the CareCast relay broker", client.ID)
			}

		// Remove closed observer
		case client, ok := <-s.GetOrSetEvent(ctx).ClosedClients:
			if ok {
				// The broadcast loop below may already have dropped this observer
				if channel, exists := s.GetOrSetEvent(ctx).TotalClients[client.ID]; exists {
					close(channel)
					delete(s.GetOrSetEvent(ctx).TotalClients, client.ID)
					atomic.AddInt32(&clientCount, -1)
					s.logger.WithCtx(ctx).Info().Msgf("Removed observer %s from the CareCast relay broker", client.ID)
				}
			}

		// Fan the message out to every connected observer
		case eventMsg, ok := <-s.GetOrSetEvent(ctx).Broadcast:
			if ok {
				for id, channel := range s.GetOrSetEvent(ctx).TotalClients {
					select {
					case channel <- eventMsg:
					default:
						// Observer stopped draining its stream, drop it silently.
						// Never an error for the ingress caller or other observers.
						close(channel)
						delete(s.GetOrSetEvent(ctx).TotalClients, id)
						atomic.AddInt32(&clientCount, -1)
						s.logger.WithCtx(ctx).Warn().Msgf("Dropped unresponsive observer %s from the CareCast relay broker", id)
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s service) Broadcast(ctx context.Context, msg entity.SSEData) {
	s.GetOrSetEvent(ctx).Broadcast <- msg
}

func (s service) ClientCount() int {
	return int(atomic.LoadInt32(&clientCount))
}

func (s service) Clock() clockwork.Clock {
	return s.clock
}

func Cleanup(ctx context.Context) error {
	// This quit signal will close open stream API connections
	close(quit)
	go func() {
		time.Sleep(1 * time.Second)
		close(event.Broadcast)
		close(event.ClosedClients)
		close(event.NewClients)
	}()
	return nil
}
