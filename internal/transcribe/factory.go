package transcribe

import (
	"fmt"

	"vj-go/internal/config"
	"vj-go/internal/vj"
)

// NewTranscriberFromConfig creates a Transcriber based on the transcription config type.
func NewTranscriberFromConfig(cfg config.TranscriptionConfig, logger vj.Logger) (vj.Transcriber, error) {
	switch cfg.Type {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("endpoint required for http transcription")
		}
		return NewClient(cfg.Endpoint, cfg.Timeout(), logger), nil
	case "none", "":
		return vj.NopTranscriber{}, nil
	default:
		return nil, fmt.Errorf("unknown transcription type: %s", cfg.Type)
	}
}
