package checkpoint

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestEtcdLoggerForwardsToSlog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	zl := etcdLogger(log, zapcore.WarnLevel).Named("client").With(zap.String("endpoint", "127.0.0.1:2379"))

	zl.Info("dropped")
	zl.Warn("retrying", zap.Int("attempt", 2))
	zl.Error("failed")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected info to be filtered, got %q", out)
	}
	for _, want := range []string{"level=WARN", "msg=retrying", "attempt=2", "endpoint=127.0.0.1:2379", "logger=client", "level=ERROR", "msg=failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   zapcore.Level
		want slog.Level
	}{
		{zapcore.DebugLevel, slog.LevelDebug},
		{zapcore.InfoLevel, slog.LevelInfo},
		{zapcore.WarnLevel, slog.LevelWarn},
		{zapcore.ErrorLevel, slog.LevelError},
		{zapcore.FatalLevel, slog.LevelError},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%v) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}
