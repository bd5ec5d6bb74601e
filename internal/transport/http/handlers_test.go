package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/domain/voices"
	platformtest "xtts-server-go/internal/platform/testing"
)

type stubEngine struct {
	extractErr error
	stream     synthesis.ChunkStream
}

func (e *stubEngine) Synthesize(_ context.Context, p synthesis.Params) error {
	return os.WriteFile(p.OutputPath, []byte("RIFFaudio"), 0o644)
}

func (e *stubEngine) SynthesizeStream(context.Context, synthesis.Params) (synthesis.ChunkStream, error) {
	if e.stream != nil {
		return e.stream, nil
	}
	return &stubStream{chunks: [][]byte{[]byte("aa"), []byte("bb")}}, nil
}

func (e *stubEngine) ExtractConditioning(context.Context, string) (*latents.ConditioningLatents, error) {
	if e.extractErr != nil {
		return nil, e.extractErr
	}
	return &latents.ConditioningLatents{
		GPTCondLatent:    []float32{0.5},
		SpeakerEmbedding: []float32{0.25},
	}, nil
}

func (e *stubEngine) SampleRate() int { return 24000 }
func (e *stubEngine) Close() error    { return nil }

type stubStream struct {
	chunks [][]byte
	idx    int
}

func (s *stubStream) Next(context.Context) ([]byte, error) {
	if s.idx >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *stubStream) Close() error { return nil }

type fixture struct {
	handlers *Handlers
	router   *Router
	engine   *stubEngine
	speaker  string
	output   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := platformtest.SetupTestConfig(t)
	logger := platformtest.SetupTestLogger(t)

	engine := &stubEngine{}
	resolver := voices.NewResolver(cfg.Folders.Speaker, cfg.Folders.Output, cfg.Folders.Latent, cfg.Model.Folder)
	store := latents.NewStore(cfg.Folders.Latent, engine, logger)
	gateway := synthesis.NewGateway(engine, resolver, store, nil, logger)

	router, err := Build(Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}

	h := &Handlers{
		Config:   cfg,
		Gateway:  gateway,
		Latents:  store,
		Resolver: resolver,
		Logger:   logger,
	}
	h.Register(router)

	return &fixture{
		handlers: h,
		router:   router,
		engine:   engine,
		speaker:  cfg.Folders.Speaker,
		output:   cfg.Folders.Output,
	}
}

func (f *fixture) addSpeaker(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.speaker, name), []byte("wavdata"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestSpeakersListEndpoints(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "bella.wav")
	f.addSpeaker(t, "aela.wav")
	f.addSpeaker(t, "readme.txt")

	w := f.do(t, http.MethodGet, "/speakers_list", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var names []string
	decodeBody(t, w, &names)
	if len(names) != 2 || names[0] != "aela" || names[1] != "bella" {
		t.Fatalf("names = %v", names)
	}

	w = f.do(t, http.MethodGet, "/speakers", nil)
	var speakers []voices.Speaker
	decodeBody(t, w, &speakers)
	if len(speakers) != 2 {
		t.Fatalf("speakers = %v", speakers)
	}
	if !strings.HasSuffix(speakers[0].PreviewURL, "/sample/aela.wav") {
		t.Fatalf("preview url = %s", speakers[0].PreviewURL)
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/languages", nil)
	var body struct {
		Languages map[string]string `json:"languages"`
	}
	decodeBody(t, w, &body)
	if body.Languages["en"] != "English" || len(body.Languages) != 17 {
		t.Fatalf("languages = %v", body.Languages)
	}
}

func TestSampleEndpoint(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	w := f.do(t, http.MethodGet, "/sample/aela.wav", nil)
	if w.Code != http.StatusOK || w.Body.String() != "wavdata" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/sample/missing.wav", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing sample status = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/sample/a..b.wav", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "kidding") {
		t.Fatalf("traversal status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSetFoldersEndpoints(t *testing.T) {
	f := newFixture(t)

	newOut := filepath.Join(t.TempDir(), "renders")
	w := f.do(t, http.MethodPost, "/set_output", map[string]string{"output_folder": newOut})
	if w.Code != http.StatusOK {
		t.Fatalf("set_output status=%d body=%s", w.Code, w.Body.String())
	}

	var folders map[string]string
	decodeBody(t, f.do(t, http.MethodGet, "/get_folders", nil), &folders)
	if folders["output_folder"] != newOut {
		t.Fatalf("folders = %v", folders)
	}

	// Missing field is a binding error.
	w = f.do(t, http.MethodPost, "/set_speaker_folder", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSwitchModel(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Join(f.handlers.Config.Model.Folder, "v2.0.3"), 0o755); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/switch_model", map[string]string{"model_name": "v2.0.3"})
	if w.Code != http.StatusOK {
		t.Fatalf("switch status=%d body=%s", w.Code, w.Body.String())
	}
	if f.handlers.Config.Model.Version != "v2.0.3" {
		t.Fatal("model version not updated")
	}

	w = f.do(t, http.MethodPost, "/switch_model", map[string]string{"model_name": "ghost"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown model status = %d", w.Code)
	}
}

func TestTTSSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	var current synthesis.Settings
	decodeBody(t, f.do(t, http.MethodGet, "/get_tts_settings", nil), &current)
	if current != synthesis.DefaultSettings() {
		t.Fatalf("initial settings = %+v", current)
	}

	current.Temperature = 0.5
	w := f.do(t, http.MethodPost, "/set_tts_settings", current)
	if w.Code != http.StatusOK {
		t.Fatalf("set settings status=%d body=%s", w.Code, w.Body.String())
	}

	bad := current
	bad.TopP = 5
	bad.Speed = 100
	w = f.do(t, http.MethodPost, "/set_tts_settings", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d", w.Code)
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, w, &detail)
	if !strings.Contains(detail.Detail, "top_p") || !strings.Contains(detail.Detail, "speed") {
		t.Fatalf("detail must list every invalid field: %s", detail.Detail)
	}

	decodeBody(t, f.do(t, http.MethodGet, "/get_tts_settings", nil), &current)
	if current.TopP == 5 {
		t.Fatal("rejected settings must not apply")
	}
}

func TestTTSToAudio(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	w := f.do(t, http.MethodPost, "/tts_to_audio/", map[string]string{
		"text": "hello", "speaker_wav": "aela", "language": "en",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "audio/wav") {
		t.Fatalf("content type = %s", ct)
	}
	if w.Body.String() != "RIFFaudio" {
		t.Fatalf("body = %q", w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/tts_to_audio/", map[string]string{
		"text": "hello", "speaker_wav": "aela", "language": "xx",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad language status = %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/tts_to_audio/", map[string]string{
		"text": "hello", "speaker_wav": "nobody", "language": "en",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown speaker status = %d", w.Code)
	}
}

func TestTTSToFile(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	w := f.do(t, http.MethodPost, "/tts_to_file", map[string]string{
		"text": "hello", "speaker_wav": "aela", "language": "en",
		"file_name_or_path": "out.wav",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Message    string `json:"message"`
		OutputPath string `json:"output_path"`
	}
	decodeBody(t, w, &body)
	if body.OutputPath != filepath.Join(f.output, "out.wav") {
		t.Fatalf("output path = %s", body.OutputPath)
	}
	if _, err := os.Stat(body.OutputPath); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
}

func TestTTSStream(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	w := f.do(t, http.MethodGet, "/tts_stream?text=hi&speaker_wav=aela&language=en", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/x-wav" {
		t.Fatalf("content type = %s", ct)
	}
	body := w.Body.Bytes()
	if len(body) != 44+4 {
		t.Fatalf("body length = %d, want header plus chunks", len(body))
	}
	if string(body[:4]) != "RIFF" || string(body[44:]) != "aabb" {
		t.Fatalf("unexpected stream body")
	}
}

type mp3StubEngine struct{ stubEngine }

func (e *mp3StubEngine) StreamEncoding() synthesis.StreamEncoding { return synthesis.EncodingMP3 }

func TestTTSStreamContainerEngineSkipsWavHeader(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	f.handlers.Gateway = synthesis.NewGateway(
		&mp3StubEngine{}, f.handlers.Resolver, f.handlers.Latents, nil, f.handlers.Logger)

	w := f.do(t, http.MethodGet, "/tts_stream?text=hi&speaker_wav=aela&language=en", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %s", ct)
	}
	if w.Body.String() != "aabb" {
		t.Fatalf("body = %q, want frames without a wav preamble", w.Body.String())
	}
}

// gateStream hands out one chunk, then blocks until the request context is
// canceled, counting every chunk it actually produced.
type gateStream struct {
	firstSent chan struct{}
	once      sync.Once
	produced  atomic.Int32
}

func (s *gateStream) Next(ctx context.Context) ([]byte, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		s.produced.Add(1)
		close(s.firstSent)
		return []byte("aa"), nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *gateStream) Close() error { return nil }

func TestTTSStreamStopsOnClientDisconnect(t *testing.T) {
	f := newFixture(t)
	f.addSpeaker(t, "aela.wav")

	stream := &gateStream{firstSent: make(chan struct{})}
	f.engine.stream = stream

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/tts_stream?text=hi&speaker_wav=aela&language=en", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		f.router.Engine.ServeHTTP(w, req)
		close(served)
	}()

	<-stream.firstSent
	cancel()
	<-served

	if got := stream.produced.Load(); got != 1 {
		t.Fatalf("chunks produced after disconnect: %d, want 1", got)
	}
	body := w.Body.Bytes()
	if len(body) != 44+2 {
		t.Fatalf("wrote %d bytes, want header plus the single pre-disconnect chunk", len(body))
	}
}

func TestTTSStreamRejectsNonLocalModel(t *testing.T) {
	f := newFixture(t)
	f.handlers.Config.Model.Source = "api"

	w := f.do(t, http.MethodGet, "/tts_stream?text=hi&language=en", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "only supported for local models") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCreateAndStoreLatents(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("wav_file", "ref.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("reference audio"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/create_latents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		Message string                      `json:"message"`
		Latents latents.ConditioningLatents `json:"latents"`
	}
	decodeBody(t, w, &created)
	if len(created.Latents.GPTCondLatent) == 0 {
		t.Fatalf("latents missing in response: %s", w.Body.String())
	}

	w2 := f.do(t, http.MethodPost, "/store_latents", map[string]any{
		"speaker_name": "Aela",
		"language":     "EN",
		"latents":      created.Latents,
	})
	if w2.Code != http.StatusOK {
		t.Fatalf("store status=%d body=%s", w2.Code, w2.Body.String())
	}
	var stored struct {
		FilePath string `json:"file_path"`
	}
	decodeBody(t, w2, &stored)
	if !strings.HasSuffix(stored.FilePath, filepath.Join("en", "aela.json")) {
		t.Fatalf("file path = %s", stored.FilePath)
	}

	// Missing key is rejected with the key named.
	w3 := f.do(t, http.MethodPost, "/store_latents", map[string]any{
		"speaker_name": "aela",
		"language":     "en",
		"latents":      map[string]any{"gpt_cond_latent": []float32{1}},
	})
	if w3.Code != http.StatusBadRequest || !strings.Contains(w3.Body.String(), "speaker_embedding") {
		t.Fatalf("store missing key status=%d body=%s", w3.Code, w3.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}
}
