// Fallback channel tests in CareCast.

package fallback

import (
	"CareCast/internal/entity"
	"CareCast/pkg/log"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during fallback testing.
var logger log.Logger = log.New("test")

// Global context
var ctx context.Context = context.Background()

func channelUpload(score int) entity.GameUpload {
	return entity.GameUpload{
		PatientID:     "102",
		GameType:      "coordination",
		ScoreIncrease: score,
		TimeIncrease:  15,
	}
}

// recordingPeer remembers every upload posted to it; failing flips it into
// an always-erroring peer.
type recordingPeer struct {
	failing bool
	posts   []entity.GameUpload
}

func (p *recordingPeer) Post(upload entity.GameUpload) error {
	if p.failing {
		return fmt.Errorf("peer window closed")
	}
	p.posts = append(p.posts, upload)
	return nil
}

func TestPublishAndList(t *testing.T) {
	channel := NewMemoryChannel()
	assert.NoError(t, channel.Publish(ctx, logger, channelUpload(1)))
	assert.NoError(t, channel.Publish(ctx, logger, channelUpload(2)))

	uploads, lerr := channel.List(ctx, logger)
	assert.NoError(t, lerr)
	assert.Len(t, uploads, 2)
	assert.Equal(t, 1, uploads[0].ScoreIncrease)
	assert.Equal(t, 2, uploads[1].ScoreIncrease)

	latest, ok, lterr := channel.Latest(ctx, logger)
	assert.NoError(t, lterr)
	assert.True(t, ok)
	assert.Equal(t, 2, latest.ScoreIncrease)
}

func TestLatestOnEmptyChannel(t *testing.T) {
	channel := NewMemoryChannel()
	_, ok, lterr := channel.Latest(ctx, logger)
	assert.NoError(t, lterr)
	assert.False(t, ok)
}

func TestCapacityEvictsOldest(t *testing.T) {
	channel := NewMemoryChannel()
	for i := 0; i < Capacity+50; i++ {
		assert.NoError(t, channel.Publish(ctx, logger, channelUpload(i)))
	}

	uploads, lerr := channel.List(ctx, logger)
	assert.NoError(t, lerr)
	assert.Len(t, uploads, Capacity)
	// Only the newest Capacity uploads survive, in publish order
	assert.Equal(t, 50, uploads[0].ScoreIncrease)
	assert.Equal(t, Capacity+49, uploads[Capacity-1].ScoreIncrease)
}

func TestSubscribeReceivesNotifications(t *testing.T) {
	channel := NewMemoryChannel()
	sub, cancel := channel.Subscribe(ctx, logger)
	defer cancel()

	assert.NoError(t, channel.Publish(ctx, logger, channelUpload(7)))

	select {
	case upload := <-sub:
		assert.Equal(t, 7, upload.ScoreIncrease)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "No change notification received")
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	channel := NewMemoryChannel()
	sub, cancel := channel.Subscribe(ctx, logger)
	cancel()

	assert.NoError(t, channel.Publish(ctx, logger, channelUpload(1)))

	// The subscription channel was closed on cancel
	_, open := <-sub
	assert.False(t, open)
}

func TestFailingPeerDoesNotFailPublish(t *testing.T) {
	broken := &recordingPeer{failing: true}
	healthy := &recordingPeer{}
	channel := NewMemoryChannel(broken, healthy)

	assert.NoError(t, channel.Publish(ctx, logger, channelUpload(9)))

	// The store and the surviving peer both got the upload; readers see it
	// twice and must tolerate that
	uploads, _ := channel.List(ctx, logger)
	assert.Len(t, uploads, 1)
	assert.Len(t, healthy.posts, 1)
	assert.Equal(t, 9, healthy.posts[0].ScoreIncrease)
	assert.Empty(t, broken.posts)
}

func TestPeerSeesEveryPublish(t *testing.T) {
	peer := &recordingPeer{}
	channel := NewMemoryChannel(peer)

	for i := 0; i < 3; i++ {
		assert.NoError(t, channel.Publish(ctx, logger, channelUpload(i)))
	}
	assert.Len(t, peer.posts, 3)
	for i, upload := range peer.posts {
		assert.Equal(t, i, upload.ScoreIncrease)
	}
}
