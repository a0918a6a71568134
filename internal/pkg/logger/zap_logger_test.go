package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFile(t *testing.T, lines ...string) *ZapLogger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return &ZapLogger{logger: NewNopLogger().Zap(), filePath: path}
}

func TestZapLogger_GetLogs(t *testing.T) {
	l := writeLogFile(t,
		`{"level":"INFO","timestamp":"t1","message":"first","module":"INGEST"}`,
		`not json`,
		`{"level":"ERROR","timestamp":"t2","message":"second","module":"CHAT"}`,
		`{"level":"INFO","timestamp":"t3","message":"third","module":"CHAT"}`,
	)

	tests := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{name: "all newest first", filter: LogFilter{}, want: []string{"third", "second", "first"}},
		{name: "level is case insensitive", filter: LogFilter{Level: "error"}, want: []string{"second"}},
		{name: "module", filter: LogFilter{Module: "CHAT"}, want: []string{"third", "second"}},
		{name: "pagination", filter: LogFilter{Limit: 1, Offset: 1}, want: []string{"second"}},
		{name: "offset past end", filter: LogFilter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.GetLogs(tt.filter)
			require.NoError(t, err)
			msgs := make([]string, 0, len(got))
			for _, e := range got {
				msgs = append(msgs, e.Message)
				assert.NotEmpty(t, e.ID)
			}
			assert.Equal(t, tt.want, msgs)
		})
	}
}

func TestZapLogger_GetLogByID(t *testing.T) {
	l := writeLogFile(t, `{"level":"INFO","message":"only"}`)

	all, err := l.GetLogs(LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := l.GetLogByID(all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "only", got.Message)

	_, err = l.GetLogByID("missing")
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestZapLogger_MissingFile(t *testing.T) {
	l := &ZapLogger{logger: NewNopLogger().Zap(), filePath: filepath.Join(t.TempDir(), "none.log")}
	got, err := l.GetLogs(LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewNopLogger().GetLogs(LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

type recordingLogger struct {
	*ZapLogger
	last map[string]interface{}
}

func (r *recordingLogger) Error(_, _ string, details map[string]interface{}) { r.last = details }
func (r *recordingLogger) Info(_, _ string, details map[string]interface{})  { r.last = details }

func TestWatermillAdapter_With(t *testing.T) {
	rec := &recordingLogger{ZapLogger: NewNopLogger()}
	adapter := NewWatermillAdapter(rec).With(watermill.LogFields{"topic": "jobs"})

	adapter.Info("subscribed", watermill.LogFields{"n": 1})
	assert.Equal(t, map[string]interface{}{"topic": "jobs", "n": 1}, rec.last)

	adapter.Error("failed", errors.New("boom"), nil)
	assert.Equal(t, "boom", rec.last["error"])
	assert.Equal(t, "jobs", rec.last["topic"])
}
