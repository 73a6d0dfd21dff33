// Relay log repository encapsulates the bounded upload log of CareCast.
// The log is a FIFO ring: capped at LogCapacity entries, oldest evicted first.

package relay

import (
	"CareCast/internal/entity"
	"CareCast/internal/errors"
	"CareCast/pkg/db"
	"CareCast/pkg/log"
	"context"
	"encoding/json"
	"sync"
)

// LogCapacity bounds the relay log, matching the game-side fallback cap.
const LogCapacity = 100

// Redis key holding the relay log when the redis backend is configured.
var relayLogKey = "carecast:uploads"

type Repository interface {
	// Append records one received upload, evicting the oldest entry beyond
	// capacity, and returns the resulting total.
	Append(ctx context.Context, logger log.Logger, entry entity.RelayEntry) (int, error)
	// List returns the full current log contents in receipt order.
	List(ctx context.Context, logger log.Logger) ([]entity.RelayEntry, error)
	// Count returns the number of entries currently held.
	Count(ctx context.Context, logger log.Logger) (int, error)
	// Clear empties the log, used for test and reset flows.
	Clear(ctx context.Context, logger log.Logger) error
}

// In-memory ring, the default backend. Handlers run on separate goroutines
// so the slice is mutex-guarded unlike the single-threaded reference server.
type memoryRepository struct {
	mu       sync.Mutex
	capacity int
	entries  []entity.RelayEntry
}

// Returns an in-memory relay log bounded at capacity entries.
func NewMemoryRepository(capacity int) Repository {
	return &memoryRepository{capacity: capacity}
}

func (r *memoryRepository) Append(ctx context.Context, logger log.Logger, entry entity.RelayEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	return len(r.entries), nil
}

func (r *memoryRepository) List(ctx context.Context, logger log.Logger) ([]entity.RelayEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.RelayEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *memoryRepository) Count(ctx context.Context, logger log.Logger) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

func (r *memoryRepository) Clear(ctx context.Context, logger log.Logger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	return nil
}

// Redis-backed ring used when the workstation should keep the log across
// relay restarts.
type redisRepository struct {
	db *db.RedisDB
}

// Returns a redis-backed relay log for other packages to access its interface.
func NewRedisRepository(dbwrp *db.RedisDB) Repository {
	return redisRepository{db: dbwrp}
}

func (r redisRepository) Append(ctx context.Context, logger log.Logger, entry entity.RelayEntry) (int, error) {
	raw, mrserr := json.Marshal(entry)
	if mrserr != nil {
		logger.WithCtx(ctx).Error().Err(mrserr).Msg("Error occured during marshalling entry in relay.Append")
		return 0, errors.InternalServerError("")
	}
	pipe := r.db.Client().TxPipeline()
	pipe.RPush(ctx, relayLogKey, raw)
	pipe.LTrim(ctx, relayLogKey, -int64(LogCapacity), -1)
	total := pipe.LLen(ctx, relayLogKey)
	if _, dberr := pipe.Exec(ctx); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis pipeline in relay.Append")
		return 0, errors.InternalServerError("")
	}
	return int(total.Val()), nil
}

func (r redisRepository) List(ctx context.Context, logger log.Logger) ([]entity.RelayEntry, error) {
	raws, dberr := r.db.Client().LRange(ctx, relayLogKey, 0, -1).Result()
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LRange in relay.List")
		return nil, errors.InternalServerError("")
	}
	entries := make([]entity.RelayEntry, 0, len(raws))
	for _, raw := range raws {
		var entry entity.RelayEntry
		if mrserr := json.Unmarshal([]byte(raw), &entry); mrserr != nil {
			logger.WithCtx(ctx).Warn().Err(mrserr).Msg("Skipping undecodable relay log entry in relay.List")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r redisRepository) Count(ctx context.Context, logger log.Logger) (int, error) {
	total, dberr := r.db.Client().LLen(ctx, relayLogKey).Result()
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LLen in relay.Count")
		return 0, errors.InternalServerError("")
	}
	return int(total), nil
}

func (r redisRepository) Clear(ctx context.Context, logger log.Logger) error {
	if dberr := r.db.Client().Del(ctx, relayLogKey).Err(); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Del in relay.Clear")
		return errors.InternalServerError("")
	}
	return nil
}
