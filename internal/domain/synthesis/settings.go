package synthesis

import (
	"fmt"
	"strings"

	"xtts-server-go/internal/platform/errors"
)

// Settings are the model tuning knobs exposed over /set_tts_settings.
type Settings struct {
	StreamChunkSize     int     `json:"stream_chunk_size"`
	Temperature         float64 `json:"temperature"`
	Speed               float64 `json:"speed"`
	LengthPenalty       float64 `json:"length_penalty"`
	RepetitionPenalty   float64 `json:"repetition_penalty"`
	TopP                float64 `json:"top_p"`
	TopK                int     `json:"top_k"`
	EnableTextSplitting bool    `json:"enable_text_splitting"`
}

// DefaultSettings mirrors the XTTSv2 inference defaults.
func DefaultSettings() Settings {
	return Settings{
		StreamChunkSize:     100,
		Temperature:         0.75,
		Speed:               1.0,
		LengthPenalty:       1.0,
		RepetitionPenalty:   5.0,
		TopP:                0.85,
		TopK:                50,
		EnableTextSplitting: true,
	}
}

// Validate checks every field and reports all out-of-range values in a
// single error, so the client sees the full list rather than the first hit.
func (s Settings) Validate() error {
	var invalid []string

	if s.StreamChunkSize < 20 || s.StreamChunkSize > 1000 {
		invalid = append(invalid, fmt.Sprintf("stream_chunk_size must be between 20 and 1000, got %d", s.StreamChunkSize))
	}
	if s.Temperature <= 0 || s.Temperature > 2 {
		invalid = append(invalid, fmt.Sprintf("temperature must be in (0, 2], got %g", s.Temperature))
	}
	if s.Speed < 0.2 || s.Speed > 2 {
		invalid = append(invalid, fmt.Sprintf("speed must be between 0.2 and 2, got %g", s.Speed))
	}
	if s.LengthPenalty <= 0 {
		invalid = append(invalid, fmt.Sprintf("length_penalty must be positive, got %g", s.LengthPenalty))
	}
	if s.RepetitionPenalty <= 0 {
		invalid = append(invalid, fmt.Sprintf("repetition_penalty must be positive, got %g", s.RepetitionPenalty))
	}
	if s.TopP <= 0 || s.TopP > 1 {
		invalid = append(invalid, fmt.Sprintf("top_p must be in (0, 1], got %g", s.TopP))
	}
	if s.TopK <= 0 {
		invalid = append(invalid, fmt.Sprintf("top_k must be positive, got %d", s.TopK))
	}

	if len(invalid) > 0 {
		return errors.New(errors.KindValidation, "settings.validate", strings.Join(invalid, "; "))
	}
	return nil
}
