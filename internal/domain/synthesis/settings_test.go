package synthesis

import (
	"strings"
	"testing"

	"xtts-server-go/internal/platform/errors"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSettingsValidateReportsAllFields(t *testing.T) {
	s := Settings{
		StreamChunkSize:   5,
		Temperature:       -1,
		Speed:             9,
		LengthPenalty:     0,
		RepetitionPenalty: -2,
		TopP:              1.5,
		TopK:              0,
	}

	err := s.Validate()
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	msg := err.Error()
	for _, field := range []string{
		"stream_chunk_size", "temperature", "speed",
		"length_penalty", "repetition_penalty", "top_p", "top_k",
	} {
		if !strings.Contains(msg, field) {
			t.Errorf("error does not mention %s: %s", field, msg)
		}
	}
}

func TestSettingsValidateSingleField(t *testing.T) {
	s := DefaultSettings()
	s.TopP = 2

	err := s.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), ";") {
		t.Fatalf("single invalid field must yield a single message: %s", err)
	}
}
