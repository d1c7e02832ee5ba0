package util

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCronExpr(t *testing.T) {
	assert.NoError(t, ValidateCronExpr("*/30 * * * *"))
	assert.NoError(t, ValidateCronExpr("0 2 * * 0"))
	assert.Error(t, ValidateCronExpr("invalid"))
	assert.Error(t, ValidateCronExpr("* * * *"))
}

func TestNextCronTime(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)

	next, err := NextCronTime("*/30 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), next)

	_, err = NextCronTime("bogus", from)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, ok := parseLevel("WARN")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, ok = parseLevel("")
	assert.False(t, ok)
}

func TestNewLogger(t *testing.T) {
	assert.True(t, NewLogger("development", "").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger("production", "").Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, NewLogger("production", "debug").Enabled(context.Background(), slog.LevelDebug))
}
