// Local fallback channel of CareCast: same-device delivery of game uploads
// when no relay is reachable. Observers on this channel poll or react to the
// change notification; there is no acknowledgment and no exactly-once
// guarantee, duplicates across the store and the direct peer path must be
// tolerated by readers.

package fallback

import (
	"CareCast/internal/entity"
	"CareCast/pkg/log"
	"context"
	"sync"
)

// Capacity bounds the shared upload list, oldest evicted first.
const Capacity = 100

type Channel interface {
	// Publish appends upload to the shared bounded list and raises a change
	// notification for subscribed observers.
	Publish(ctx context.Context, logger log.Logger, upload entity.GameUpload) error
	// List returns the current contents of the shared list, oldest first.
	List(ctx context.Context, logger log.Logger) ([]entity.GameUpload, error)
	// Latest returns the most recently published upload, if any.
	Latest(ctx context.Context, logger log.Logger) (entity.GameUpload, bool, error)
	// Subscribe returns a stream of change notifications carrying each newly
	// published upload. The returned cancel func releases the subscription.
	Subscribe(ctx context.Context, logger log.Logger) (<-chan entity.GameUpload, func())
}

// Peer is a best-effort secondary delivery path alongside the shared store,
// the moral equivalent of a direct message to an opener or embedding context.
// Post failures are swallowed; peers may therefore see duplicates.
type Peer interface {
	Post(upload entity.GameUpload) error
}

// Buffered notifications a subscriber may lag behind before updates are dropped.
const subscriberBuffer = 16

// memoryChannel is the in-process implementation, backing redis-less runs
// and tests.
type memoryChannel struct {
	peers []Peer

	mu      sync.Mutex
	entries []entity.GameUpload
	latest  *entity.GameUpload
	subs    map[int]chan entity.GameUpload
	nextSub int
}

// NewMemoryChannel returns an in-process fallback channel. Peers, if any,
// receive a redundant best-effort copy of every published upload.
func NewMemoryChannel(peers ...Peer) Channel {
	return &memoryChannel{peers: peers, subs: make(map[int]chan entity.GameUpload)}
}

func (c *memoryChannel) Publish(ctx context.Context, logger log.Logger, upload entity.GameUpload) error {
	c.mu.Lock()
	c.entries = append(c.entries, upload)
	if len(c.entries) > Capacity {
		c.entries = c.entries[len(c.entries)-Capacity:]
	}
	saved := upload
	c.latest = &saved
	for _, sub := range c.subs {
		select {
		case sub <- upload:
		default:
			// Subscriber not draining, it can still catch up via Latest
		}
	}
	c.mu.Unlock()

	notifyPeers(logger, c.peers, upload)
	return nil
}

func (c *memoryChannel) List(ctx context.Context, logger log.Logger) ([]entity.GameUpload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.GameUpload, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

func (c *memoryChannel) Latest(ctx context.Context, logger log.Logger) (entity.GameUpload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return entity.GameUpload{}, false, nil
	}
	return *c.latest, true, nil
}

func (c *memoryChannel) Subscribe(ctx context.Context, logger log.Logger) (<-chan entity.GameUpload, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	sub := make(chan entity.GameUpload, subscriberBuffer)
	c.subs[id] = sub
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if active, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(active)
		}
		c.mu.Unlock()
	}
	return sub, cancel
}

// notifyPeers posts upload to every peer, swallowing failures.
func notifyPeers(logger log.Logger, peers []Peer, upload entity.GameUpload) {
	for _, peer := range peers {
		if perr := peer.Post(upload); perr != nil {
			logger.Warn().Err(perr).Msg("Peer post failed in fallback.notifyPeers")
		}
	}
}
