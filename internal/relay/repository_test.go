// Relay log repository tests in CareCast.

package relay

import (
	"CareCast/internal/entity"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func logEntry(score int) entity.RelayEntry {
	return entity.RelayEntry{
		GameUpload: entity.GameUpload{
			PatientID:     "102",
			GameType:      "cognitive",
			ScoreIncrease: score,
			TimeIncrease:  15,
			Timestamp:     "2026-08-28T10:00:00Z",
		},
		ServerTime: "2026-08-28T10:00:0" + strconv.Itoa(score%10) + "Z",
	}
}

func TestMemoryAppendAndList(t *testing.T) {
	repo := NewMemoryRepository(LogCapacity)

	total, err := repo.Append(ctx, logger, logEntry(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, total)
	total, err = repo.Append(ctx, logger, logEntry(2))
	assert.NoError(t, err)
	assert.Equal(t, 2, total)

	entries, lerr := repo.List(ctx, logger)
	assert.NoError(t, lerr)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ScoreIncrease)
	assert.Equal(t, 2, entries[1].ScoreIncrease)

	count, cerr := repo.Count(ctx, logger)
	assert.NoError(t, cerr)
	assert.Equal(t, 2, count)
}

func TestMemoryRingEviction(t *testing.T) {
	repo := NewMemoryRepository(LogCapacity)
	for i := 0; i < LogCapacity+50; i++ {
		total, err := repo.Append(ctx, logger, logEntry(i))
		assert.NoError(t, err)
		assert.LessOrEqual(t, total, LogCapacity)
	}

	entries, lerr := repo.List(ctx, logger)
	assert.NoError(t, lerr)
	assert.Len(t, entries, LogCapacity)
	// Oldest evicted first, receipt order preserved for the survivors
	assert.Equal(t, 50, entries[0].ScoreIncrease)
	assert.Equal(t, LogCapacity+49, entries[LogCapacity-1].ScoreIncrease)
}

func TestMemoryClear(t *testing.T) {
	repo := NewMemoryRepository(LogCapacity)
	_, err := repo.Append(ctx, logger, logEntry(1))
	assert.NoError(t, err)

	assert.NoError(t, repo.Clear(ctx, logger))
	count, cerr := repo.Count(ctx, logger)
	assert.NoError(t, cerr)
	assert.Zero(t, count)

	entries, lerr := repo.List(ctx, logger)
	assert.NoError(t, lerr)
	assert.Empty(t, entries)
}
