package obs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"JSONInfo", LogConfig{Level: "info", Format: "json"}, false},
		{"ConsoleDebug", LogConfig{Level: "debug", Format: "console"}, false},
		{"DefaultLevel", LogConfig{}, false},
		{"BadLevel", LogConfig{Level: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestFieldsReachLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Info("host.start", Fields{"display": 3})
	Error("host.bind", Fields{"err": errors.New("boom")})
	Debug("host.accept.closed", nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "host.start", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["display"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])
	assert.Empty(t, entries[2].Context)
}
