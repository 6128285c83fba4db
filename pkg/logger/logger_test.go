package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twscraper/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "crawl.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
			if tt.cfg.File != "" {
				assert.FileExists(t, tt.cfg.File)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.WithField("job_id", "j-1").
		WithFields(map[string]interface{}{"page": 3, "range": "media:3"}).
		Info("chained fields")

	out := buf.String()
	assert.Contains(t, out, "chained fields")
	assert.Contains(t, out, `"job_id":"j-1"`)
	assert.Contains(t, out, `"page":3`)
	assert.Contains(t, out, `"range":"media:3"`)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	assert.Same(t, log, log.WithError(nil))

	log.WithError(errors.New("cooldown budget exhausted")).Error("crawl failed")
	assert.Contains(t, buf.String(), "cooldown budget exhausted")
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.InfoWithFields("typed", map[string]interface{}{
		"int64":    int64(1700000000000),
		"duration": 5 * time.Second,
		"ids":      []string{"2", "1"},
		"custom":   struct{ Name string }{Name: "x"},
	})

	out := buf.String()
	assert.Contains(t, out, `"int64":1700000000000`)
	assert.Contains(t, out, `"ids":["2","1"]`)
}

func TestHelpersUseGivenLogger(t *testing.T) {
	log := NewTestLogger()

	LogRequest(log, "UserMedia", 200, 120*time.Millisecond)
	LogRequest(log, "UserMedia", 429, time.Second)
	LogCooldown(log, "twitter.request", "rate_limit", 1, 5*time.Minute)
	LogPage(log, "media:1", 1, 4, 4)

	msgs := log.GetMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "DEBUG", msgs[0].Level)
	assert.Equal(t, "WARN", msgs[1].Level)
	assert.Equal(t, "rate_limit", msgs[2].Fields["reason"])
	assert.Equal(t, "media:1", msgs[3].Fields["range"])
}

func TestTestLoggerSharesCapture(t *testing.T) {
	log := NewTestLogger()
	child := log.WithField("job_id", "abc").WithError(errors.New("boom"))
	child.Error("failed")

	assert.True(t, log.HasError())
	msgs := log.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc", msgs[0].Fields["job_id"])
	assert.EqualError(t, msgs[0].Error, "boom")

	log.Clear()
	assert.Empty(t, log.GetMessages())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	log := NewTestLogger()
	assert.Same(t, log, OrNop(log))
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug"}))
	assert.NotNil(t, GetLogger())

	Info("info message")
	WithField("key", "value").Debug("with field")
}
