package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShortCaller(t *testing.T) {
	tests := map[string]string{
		"": "",
		"/home/ci/src/internal/platform/db/postgres.go:38": "internal/platform/db/postgres.go:38",
		"/a/b/c/d/e.go:1": "c/d/e.go:1",
		"x.go:7":          "x.go:7",
	}
	for in, want := range tests {
		assert.Equal(t, want, shortCaller(in), in)
	}
}

func TestTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lg := New(zap.New(core).Sugar())
	sql := func() (string, int64) { return "SELECT 1", 1 }

	// not found is traced as a plain statement, never as an error
	lg.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.FilterMessage("gorm_trace").Len())
	assert.Equal(t, 1, logs.FilterMessage("gorm").FilterLevelExact(zap.DebugLevel).Len())

	lg.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("gorm_trace").Len())

	lg.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Equal(t, 1, logs.FilterMessage("gorm_slow").Len())

	silent := lg.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("gorm_trace").Len())

	quiet := lg.LogMode(gormlogger.Warn)
	quiet.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 1, logs.FilterMessage("gorm").Len())
}
