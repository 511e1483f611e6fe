package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hookrelay/pkg/logging"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "console debug", opts: Options{Level: "debug", Format: "console"}},
		{name: "json warn", opts: Options{Level: "warn", Format: "json"}},
		{name: "unknown level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "unknown format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestCtxMethodsAddRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := newWithCore(core, "relay-service")

	ctx := logging.WithRequestID(context.Background(), "req-1")
	ctx = logging.WithTraceID(ctx, "trace-1")

	log.InfowCtx(ctx, "relayed", "transport", "json")
	log.With("component", "gate").WarnwCtx(context.Background(), "denied")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "relayed", entries[0].Message)
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, "trace-1", first["trace_id"])
	assert.Equal(t, "json", first["transport"])
	assert.Equal(t, "relay-service", first["service_name"])

	second := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "gate", second["component"])
	assert.NotContains(t, second, "request_id")
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := newWithCore(core, "")

	log.DebugwCtx(context.Background(), "hidden")
	log.ErrorwCtx(context.Background(), "shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
	assert.NotContains(t, logs.All()[0].ContextMap(), "service_name")
}
