package synthesis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"xtts-server-go/internal/domain/cache"
	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/voices"
	"xtts-server-go/internal/platform/errors"
	"xtts-server-go/internal/platform/logging"
)

// Request is one synthesis order as it arrives from the transport layer.
type Request struct {
	Text       string
	SpeakerRef string
	Language   string
	Accent     string
	// FileNameOrPath picks the output location. Absolute paths are used
	// as-is, relative names land under the output folder. Empty means a
	// generated name under the output folder.
	FileNameOrPath string
}

// Result describes where the rendered audio ended up.
type Result struct {
	Path string
	// Cached is true when the audio was served from the result cache
	// without touching the engine.
	Cached bool
	// Ephemeral is true when the file should be removed after serving.
	Ephemeral bool
}

// Gateway coordinates one synthesis request end to end: validation, voice
// resolution, cache lookup, engine invocation and artifact placement. It is
// the only component that calls the engine for file-producing requests.
type Gateway struct {
	engine   Engine
	resolver *voices.Resolver
	latents  *latents.Store
	cache    cache.Store
	logger   *logging.Logger

	mu       sync.RWMutex
	settings Settings
}

func NewGateway(engine Engine, resolver *voices.Resolver, latentStore *latents.Store, results cache.Store, logger *logging.Logger) *Gateway {
	return &Gateway{
		engine:   engine,
		resolver: resolver,
		latents:  latentStore,
		cache:    results,
		logger:   logger,
		settings: DefaultSettings(),
	}
}

// Settings returns the current tuning snapshot.
func (g *Gateway) Settings() Settings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.settings
}

// ApplySettings validates and installs a new tuning snapshot. On validation
// failure the previous settings remain in effect.
func (g *Gateway) ApplySettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.settings = s
	g.mu.Unlock()
	g.logger.InfoTag("TTS", "tts settings updated: %+v", s)
	return nil
}

// checkLanguage normalizes and validates the language code.
func checkLanguage(op, language string) (string, error) {
	code := NormalizeLanguage(language)
	if !IsLanguageSupported(code) {
		codes := make([]string, 0, len(SupportedLanguages))
		for c := range SupportedLanguages {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		return "", errors.New(errors.KindValidation, op,
			fmt.Sprintf("language code %q is not supported, use one of: %s", language, strings.Join(codes, ", ")))
	}
	return code, nil
}

// resolveVoice turns the speaker reference into engine voice parameters.
// A wav file under the speaker folder wins; otherwise stored latents for
// (language, ref) are used. An empty reference selects the engine default.
func (g *Gateway) resolveVoice(op, ref, language string) (speakerWav string, bundle *latents.ConditioningLatents, err error) {
	if ref == "" {
		return "", nil, nil
	}

	candidates := []string{ref}
	if !strings.HasSuffix(strings.ToLower(ref), ".wav") {
		candidates = append(candidates, ref+".wav")
	}
	for _, name := range candidates {
		path, rerr := g.resolver.Resolve(voices.RootSpeaker, name)
		if rerr != nil {
			return "", nil, rerr
		}
		if info, serr := os.Stat(path); serr == nil && !info.IsDir() {
			return path, nil, nil
		}
	}

	speaker := strings.TrimSuffix(strings.ToLower(ref), ".wav")
	bundle, lerr := g.latents.Load(language, speaker)
	if lerr == nil {
		return "", bundle, nil
	}
	if errors.IsKind(lerr, errors.KindNotFound) {
		return "", nil, errors.New(errors.KindNotFound, op,
			fmt.Sprintf("speaker %q not found: no wav sample and no stored latents for language %q", ref, language))
	}
	return "", nil, lerr
}

// fingerprint keys the result cache. Voice identity is the reference string
// rather than file contents; replacing a sample wav invalidates nothing, the
// cache TTL bounds the staleness.
func (g *Gateway) fingerprint(text, language, ref, accent string, s Settings) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%+v", text, language, strings.ToLower(ref), accent, s)
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gateway) outputPath(op, fileNameOrPath string) (string, error) {
	if fileNameOrPath == "" {
		path, err := g.resolver.Resolve(voices.RootOutput, uuid.NewString()+".wav")
		if err != nil {
			return "", err
		}
		return path, nil
	}
	if filepath.IsAbs(fileNameOrPath) {
		if err := os.MkdirAll(filepath.Dir(fileNameOrPath), 0o755); err != nil {
			return "", errors.Wrap(errors.KindIO, op, "create output folder", err)
		}
		return fileNameOrPath, nil
	}
	return g.resolver.Resolve(voices.RootOutput, fileNameOrPath)
}

// SynthesizeToFile renders the request into a wav file and reports its
// location. When caching is active a hit bypasses the engine entirely; when
// caching is off the result is flagged ephemeral so the transport layer can
// discard it after serving.
func (g *Gateway) SynthesizeToFile(ctx context.Context, req Request) (*Result, error) {
	const op = "synthesis.to_file"

	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New(errors.KindValidation, op, "text must not be empty")
	}
	language, err := checkLanguage(op, req.Language)
	if err != nil {
		return nil, err
	}

	speakerWav, bundle, err := g.resolveVoice(op, req.SpeakerRef, language)
	if err != nil {
		return nil, err
	}
	settings := g.Settings()

	var fp string
	if g.cache != nil {
		fp = g.fingerprint(req.Text, language, req.SpeakerRef, req.Accent, settings)
		if path, ok, cerr := g.cache.Get(ctx, fp); cerr == nil && ok {
			g.logger.InfoTag("CACHE", "cache hit for %s", fp[:12])
			return &Result{Path: path, Cached: true}, nil
		}
	}

	outPath, err := g.outputPath(op, req.FileNameOrPath)
	if err != nil {
		return nil, err
	}

	err = g.engine.Synthesize(ctx, Params{
		Text:       req.Text,
		Language:   language,
		SpeakerWav: speakerWav,
		Latents:    bundle,
		Accent:     req.Accent,
		Settings:   settings,
		OutputPath: outPath,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "synthesis failed", err)
	}

	result := &Result{Path: outPath}
	if g.cache != nil {
		if cerr := g.cache.Set(ctx, fp, outPath); cerr != nil {
			g.logger.WarnTag("CACHE", "failed to cache result: %v", cerr)
		}
	} else {
		result.Ephemeral = true
	}

	g.logger.InfoTag("TTS", "synthesized %d chars to %s (language=%s speaker=%s)",
		len(req.Text), outPath, language, req.SpeakerRef)
	return result, nil
}

// OpenStream validates the request and opens an incremental PCM stream.
// The caller owns the returned stream and must Close it.
func (g *Gateway) OpenStream(ctx context.Context, req Request) (ChunkStream, error) {
	const op = "synthesis.stream"

	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New(errors.KindValidation, op, "text must not be empty")
	}
	language, err := checkLanguage(op, req.Language)
	if err != nil {
		return nil, err
	}
	speakerWav, bundle, err := g.resolveVoice(op, req.SpeakerRef, language)
	if err != nil {
		return nil, err
	}

	stream, err := g.engine.SynthesizeStream(ctx, Params{
		Text:       req.Text,
		Language:   language,
		SpeakerWav: speakerWav,
		Latents:    bundle,
		Settings:   g.Settings(),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "open synthesis stream", err)
	}
	return stream, nil
}

// SampleRate exposes the engine sample rate for header construction.
func (g *Gateway) SampleRate() int { return g.engine.SampleRate() }

// StreamEncoding reports what the engine's chunk stream carries: raw PCM
// unless the engine says otherwise.
func (g *Gateway) StreamEncoding() StreamEncoding {
	if r, ok := g.engine.(EncodingReporter); ok {
		return r.StreamEncoding()
	}
	return EncodingPCM
}

// Cleanup removes an ephemeral artifact. Missing files are not an error;
// the transport layer calls this after the response body is flushed.
func (g *Gateway) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.logger.WarnTag("TTS", "failed to remove output file %s: %v", path, err)
	}
}
