package synthesis

import (
	"context"

	"xtts-server-go/internal/domain/latents"
)

// Params carries one synthesis request to the engine. Exactly one of
// SpeakerWav / Latents identifies the voice; both empty means the engine's
// default voice.
type Params struct {
	Text       string
	Language   string
	SpeakerWav string
	Latents    *latents.ConditioningLatents
	Accent     string
	Settings   Settings
	OutputPath string
}

// ChunkStream is a finite, non-restartable sequence of raw PCM chunks.
// Next returns io.EOF once the engine has produced the last chunk.
type ChunkStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// StreamEncoding identifies what a ChunkStream carries.
type StreamEncoding string

const (
	EncodingPCM StreamEncoding = "pcm"
	EncodingMP3 StreamEncoding = "mp3"
)

// EncodingReporter is implemented by engines whose streams are not raw PCM.
// The transport skips the wav preamble and adjusts the content type for
// container-emitting engines.
type EncodingReporter interface {
	StreamEncoding() StreamEncoding
}

// Engine is the synthesis collaborator: a loaded voice model able to render
// text to audio and to derive conditioning latents from reference audio.
type Engine interface {
	// Synthesize renders the full utterance into p.OutputPath as a WAV file.
	Synthesize(ctx context.Context, p Params) error

	// SynthesizeStream produces audio incrementally as text is processed.
	SynthesizeStream(ctx context.Context, p Params) (ChunkStream, error)

	// ExtractConditioning derives conditioning latents from a reference clip.
	ExtractConditioning(ctx context.Context, audioPath string) (*latents.ConditioningLatents, error)

	// SampleRate reports the PCM sample rate of produced audio.
	SampleRate() int

	Close() error
}
