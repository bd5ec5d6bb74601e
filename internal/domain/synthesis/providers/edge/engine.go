// Package edge backs the synthesis contract with the hosted Edge TTS
// service. It needs no local model folder, which makes it the zero-setup
// engine for development and demos. Voice cloning inputs (speaker wavs,
// conditioning latents) are not supported by the hosted service and are
// ignored; conditioning extraction is rejected outright.
//
// The hosted service returns MP3 frames, not PCM. File outputs keep the
// requested name but contain MP3 data, and the engine reports EncodingMP3
// so the stream transport serves the frames without a wav preamble.
package edge

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/platform/config"
	"xtts-server-go/internal/platform/errors"
	"xtts-server-go/internal/platform/logging"
)

const defaultVoice = "en-US-AriaNeural"

// voiceByLanguage picks a neural voice when the request language differs
// from the configured default voice's language.
var voiceByLanguage = map[string]string{
	"ar":    "ar-SA-ZariyahNeural",
	"cs":    "cs-CZ-VlastaNeural",
	"de":    "de-DE-KatjaNeural",
	"en":    "en-US-AriaNeural",
	"es":    "es-ES-ElviraNeural",
	"fr":    "fr-FR-DeniseNeural",
	"hi":    "hi-IN-SwaraNeural",
	"hu":    "hu-HU-NoemiNeural",
	"it":    "it-IT-ElsaNeural",
	"ja":    "ja-JP-NanamiNeural",
	"ko":    "ko-KR-SunHiNeural",
	"nl":    "nl-NL-ColetteNeural",
	"pl":    "pl-PL-ZofiaNeural",
	"pt":    "pt-BR-FranciscaNeural",
	"ru":    "ru-RU-SvetlanaNeural",
	"tr":    "tr-TR-EmelNeural",
	"zh-cn": "zh-CN-XiaoxiaoNeural",
}

type Engine struct {
	cfg    config.EdgeEngineConfig
	logger *logging.Logger

	mu sync.Mutex
}

func New(cfg config.EdgeEngineConfig, logger *logging.Logger) *Engine {
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	return &Engine{cfg: cfg, logger: logger}
}

func (e *Engine) SampleRate() int { return e.cfg.SampleRate }
func (e *Engine) Close() error    { return nil }

// StreamEncoding reports that chunks carry MP3 frames as delivered by the
// hosted service.
func (e *Engine) StreamEncoding() synthesis.StreamEncoding { return synthesis.EncodingMP3 }

func (e *Engine) voiceFor(language string) string {
	if v, ok := voiceByLanguage[language]; ok {
		return v
	}
	return e.cfg.Voice
}

func (e *Engine) render(ctx context.Context, p synthesis.Params) ([]byte, error) {
	const op = "edge.render"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The upstream client is not safe for concurrent use.
	e.mu.Lock()
	defer e.mu.Unlock()

	communicate, err := edge_tts.NewCommunicate(p.Text, edge_tts.SetVoice(e.voiceFor(p.Language)))
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "create edge tts client", err)
	}

	audio, err := communicate.Stream()
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "edge tts synthesis failed", err)
	}
	e.logger.DebugTag("TTS", "edge tts produced %d bytes for %d chars", len(audio), len(p.Text))
	return audio, nil
}

func (e *Engine) Synthesize(ctx context.Context, p synthesis.Params) error {
	audio, err := e.render(ctx, p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.OutputPath, audio, 0o644); err != nil {
		return errors.Wrap(errors.KindIO, "edge.synthesize", "write output file", err)
	}
	return nil
}

func (e *Engine) SynthesizeStream(ctx context.Context, p synthesis.Params) (synthesis.ChunkStream, error) {
	audio, err := e.render(ctx, p)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: audio}, nil
}

func (e *Engine) ExtractConditioning(context.Context, string) (*latents.ConditioningLatents, error) {
	return nil, errors.New(errors.KindSynthesis, "edge.extract_conditioning",
		"the edge engine cannot derive conditioning latents; use a local model engine")
}

// bufferStream serves a fully rendered clip in fixed-size chunks, keeping
// the transport path identical for hosted and local engines.
type bufferStream struct {
	data []byte
	off  int
}

func (b *bufferStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.off >= len(b.data) {
		return nil, io.EOF
	}
	end := b.off + 4096
	if end > len(b.data) {
		end = len(b.data)
	}
	chunk := b.data[b.off:end]
	b.off = end
	return chunk, nil
}

func (b *bufferStream) Close() error { return nil }
