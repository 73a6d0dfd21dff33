// Redis-backed fallback channel: the shared list plus pub/sub change
// notification that other same-device processes read. Kiosk deployments
// wire this in place of the in-process channel so the caregiver dashboard
// running as a separate process on the workstation sees uploads produced
// while the relay is down; single-process setups use NewMemoryChannel.

package fallback

import (
	"CareCast/internal/entity"
	"CareCast/internal/errors"
	"CareCast/pkg/db"
	"CareCast/pkg/log"
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
)

// Keys mirror the browser deployment's storage layout so a dashboard
// reading either store sees the same shapes.
var (
	uploadListKey   = "gameUploadData"
	latestUploadKey = "latestGameData"
	notifyChannel   = "carecast:upload-notify"
)

type redisChannel struct {
	db    *db.RedisDB
	peers []Peer
}

// NewRedisChannel returns a fallback channel backed by the workstation's
// local redis. Peers, if any, receive a redundant best-effort copy of every
// published upload.
func NewRedisChannel(dbwrp *db.RedisDB, peers ...Peer) Channel {
	return redisChannel{db: dbwrp, peers: peers}
}

func (c redisChannel) Publish(ctx context.Context, logger log.Logger, upload entity.GameUpload) error {
	raw, mrserr := json.Marshal(upload)
	if mrserr != nil {
		logger.WithCtx(ctx).Error().Err(mrserr).Msg("Error occured during marshalling upload in fallback.Publish")
		return errors.InternalServerError("")
	}
	pipe := c.db.Client().TxPipeline()
	pipe.RPush(ctx, uploadListKey, raw)
	pipe.LTrim(ctx, uploadListKey, -int64(Capacity), -1)
	pipe.Set(ctx, latestUploadKey, raw, 0)
	pipe.Publish(ctx, notifyChannel, raw)
	if _, dberr := pipe.Exec(ctx); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis pipeline in fallback.Publish")
		return errors.InternalServerError("")
	}

	notifyPeers(logger, c.peers, upload)
	return nil
}

func (c redisChannel) List(ctx context.Context, logger log.Logger) ([]entity.GameUpload, error) {
	raws, dberr := c.db.Client().LRange(ctx, uploadListKey, 0, -1).Result()
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LRange in fallback.List")
		return nil, errors.InternalServerError("")
	}
	uploads := make([]entity.GameUpload, 0, len(raws))
	for _, raw := range raws {
		var upload entity.GameUpload
		if mrserr := json.Unmarshal([]byte(raw), &upload); mrserr != nil {
			logger.WithCtx(ctx).Warn().Err(mrserr).Msg("Skipping undecodable upload in fallback.List")
			continue
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func (c redisChannel) Latest(ctx context.Context, logger log.Logger) (entity.GameUpload, bool, error) {
	raw, dberr := c.db.Client().Get(ctx, latestUploadKey).Result()
	if dberr == redis.Nil {
		return entity.GameUpload{}, false, nil
	} else if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Get in fallback.Latest")
		return entity.GameUpload{}, false, errors.InternalServerError("")
	}
	var upload entity.GameUpload
	if mrserr := json.Unmarshal([]byte(raw), &upload); mrserr != nil {
		logger.WithCtx(ctx).Error().Err(mrserr).Msg("Error occured during unmarshalling upload in fallback.Latest")
		return entity.GameUpload{}, false, errors.InternalServerError("")
	}
	return upload, true, nil
}

func (c redisChannel) Subscribe(ctx context.Context, logger log.Logger) (<-chan entity.GameUpload, func()) {
	pubsub := c.db.Client().Subscribe(ctx, notifyChannel)
	out := make(chan entity.GameUpload, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var upload entity.GameUpload
			if mrserr := json.Unmarshal([]byte(msg.Payload), &upload); mrserr != nil {
				logger.Warn().Err(mrserr).Msg("Skipping undecodable notification in fallback.Subscribe")
				continue
			}
			select {
			case out <- upload:
			default:
				// Subscriber not draining, it can still catch up via Latest
			}
		}
	}()

	cancel := func() {
		if cerr := pubsub.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Error occured during closing pubsub in fallback.Subscribe")
		}
	}
	return out, cancel
}
