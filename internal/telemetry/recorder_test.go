package telemetry

import (
	"errors"
	"testing"

	"washdeck/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.TelemetryConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "token",
		Org:     "washdeck",
		Bucket:  "usage",
	}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestRecorder_NilReceiverIsNoOp(t *testing.T) {
	var recorder *Recorder

	recorder.RecordUsage(1, true, 600)
	recorder.RecordCommand(1, "start")
	recorder.SetOnError(func(error) {})
	recorder.Close()
}
