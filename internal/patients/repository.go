// Patients repository encapsulates the data access logic (interactions with
// the DB) for the patient directory capability in CareCast. Game binaries
// construct it through uploader.DirectorySubject; CheckInSubject is called
// by the caregiver workstation's login flow, which lives outside this
// module.

package patients

import (
	"CareCast/internal/entity"
	"CareCast/internal/errors"
	"CareCast/pkg/db"
	"CareCast/pkg/log"
	"context"

	"github.com/go-redis/redis/v8"
)

// Key holding the id of the patient currently checked in on this device.
var currentSubjectKey = "patient:current"

// repository implements Directory on top of one redis hash per patient.
type repository struct {
	db     *db.RedisDB
	logger log.Logger
}

// Returns a new redis-backed patient directory for other packages to access
// its interface.
func NewRepository(dbwrp *db.RedisDB, logger log.Logger) Directory {
	return repository{db: dbwrp, logger: logger}
}

func (r repository) ResolveCurrentSubject(ctx context.Context) (string, error) {
	subjectID, dberr := r.db.Client().Get(ctx, currentSubjectKey).Result()
	if dberr == redis.Nil {
		return "", ErrNoSubject
	} else if dberr != nil {
		r.logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Get in patients.ResolveCurrentSubject")
		return "", errors.InternalServerError("")
	}
	return subjectID, nil
}

func (r repository) ApplyIncrement(ctx context.Context, subjectID, kind string, scoreInc, timeInc int) error {
	kind = entity.NormalizeActivityKind(kind)
	key := "patient:" + subjectID
	pipe := r.db.Client().TxPipeline()
	pipe.HIncrBy(ctx, key, "score:"+kind, int64(scoreInc))
	pipe.HIncrBy(ctx, key, "seconds:"+kind, int64(timeInc))
	pipe.HIncrBy(ctx, key, "total_score", int64(scoreInc))
	pipe.HIncrBy(ctx, key, "total_seconds", int64(timeInc))
	if _, dberr := pipe.Exec(ctx); dberr != nil {
		// Error during interacting with DB
		r.logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis pipeline in patients.ApplyIncrement")
		return errors.InternalServerError("")
	}
	return nil
}

// CheckInSubject marks subjectID as the patient currently using this device.
// The caregiver workstation calls this when a patient logs in.
func CheckInSubject(ctx context.Context, dbwrp *db.RedisDB, logger log.Logger, subjectID string) error {
	if dberr := dbwrp.Client().Set(ctx, currentSubjectKey, subjectID, 0).Err(); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Set in patients.CheckInSubject")
		return errors.InternalServerError("")
	}
	return nil
}
