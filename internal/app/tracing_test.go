package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"vj-go/internal/config"
)

func TestNewTracerProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TracingConfig
		wantNil bool
		wantErr bool
	}{
		{name: "empty type", cfg: config.TracingConfig{}, wantNil: true},
		{name: "none", cfg: config.TracingConfig{Type: "none"}, wantNil: true},
		{name: "otlp", cfg: config.TracingConfig{Type: "otlp", Endpoint: "127.0.0.1:4317", Insecure: true}},
		{name: "unknown", cfg: config.TracingConfig{Type: "jaeger"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := newTracerProvider(context.Background(), tt.cfg, "run-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("newTracerProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (tp == nil) != tt.wantNil {
				t.Fatalf("newTracerProvider() = %v, wantNil %v", tp, tt.wantNil)
			}
			if tp != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

func TestVJApp_SyncRecordsSpans(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, filepath.Join(cfg.Remote.FSRoot, "VoiceJournal", "Dream", "morning.m4a"), "audio")

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	a, err := NewVJApp(cfg, "Test", Options{Stderr: io.Discard, Tracing: tp})
	if err != nil {
		t.Fatalf("NewVJApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Sync(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	names := make(map[string]int)
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	for _, want := range []string{"vj.TwoWaySync", "vj.enumerate", "vj.pass.download", "vj.task.download"} {
		if names[want] != 1 {
			t.Errorf("span %q recorded %d times, want 1 (all: %v)", want, names[want], names)
		}
	}
}
