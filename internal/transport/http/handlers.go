package httptransport

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/stream"
	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/domain/voices"
	"xtts-server-go/internal/platform/config"
	"xtts-server-go/internal/platform/logging"
	"xtts-server-go/internal/platform/storage"
)

// Handlers carries the collaborators the API surface needs. Stream is nil
// unless the server runs in streaming mode.
type Handlers struct {
	Config   *config.Config
	Gateway  *synthesis.Gateway
	Latents  *latents.Store
	Resolver *voices.Resolver
	Stream   *stream.Manager
	State    *storage.StateStore
	Logger   *logging.Logger

	started time.Time
}

type outputFolderRequest struct {
	OutputFolder string `json:"output_folder" binding:"required"`
}

type speakerFolderRequest struct {
	SpeakerFolder string `json:"speaker_folder" binding:"required"`
}

type modelNameRequest struct {
	ModelName string `json:"model_name" binding:"required"`
}

type synthesisRequest struct {
	Text       string `json:"text" binding:"required"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language" binding:"required"`
	Accent     string `json:"accent"`
	SavePath   string `json:"save_path"`
}

type synthesisFileRequest struct {
	Text           string `json:"text" binding:"required"`
	SpeakerWav     string `json:"speaker_wav"`
	Language       string `json:"language" binding:"required"`
	FileNameOrPath string `json:"file_name_or_path" binding:"required"`
}

type storeLatentsRequest struct {
	SpeakerName string                       `json:"speaker_name" binding:"required"`
	Language    string                       `json:"language" binding:"required"`
	Latents     *latents.ConditioningLatents `json:"latents" binding:"required"`
}

// Register wires every route onto the router.
func (h *Handlers) Register(r *Router) {
	h.started = time.Now()

	r.API.GET("/speakers_list", h.speakersList)
	r.API.GET("/speakers", h.speakers)
	r.API.GET("/languages", h.languages)
	r.API.GET("/get_folders", h.folders)
	r.API.GET("/get_models_list", h.modelsList)
	r.API.GET("/get_tts_settings", h.ttsSettings)
	r.API.GET("/sample/*file_name", h.sample)
	r.API.GET("/health", h.health)

	r.API.POST("/set_output", h.setOutput)
	r.API.POST("/set_speaker_folder", h.setSpeakerFolder)
	r.API.POST("/switch_model", h.switchModel)
	r.API.POST("/set_tts_settings", h.setTTSSettings)

	r.API.GET("/tts_stream", h.ttsStream)
	r.API.POST("/tts_to_audio/", h.ttsToAudio)
	r.API.POST("/tts_to_file", h.ttsToFile)
	r.API.POST("/create_latents", h.createLatents)
	r.API.POST("/store_latents", h.storeLatents)
}

func (h *Handlers) speakersList(c *gin.Context) {
	names, err := h.Resolver.ListSpeakerFiles()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *Handlers) speakers(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s", scheme, c.Request.Host)

	speakers, err := h.Resolver.ListSpeakers(base)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, speakers)
}

func (h *Handlers) languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": synthesis.SupportedLanguages})
}

func (h *Handlers) folders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"speaker_folder":        h.Resolver.Root(voices.RootSpeaker),
		"output_folder":         h.Resolver.Root(voices.RootOutput),
		"model_folder":          h.Resolver.Root(voices.RootModel),
		"latent_speaker_folder": h.Resolver.Root(voices.RootLatent),
	})
}

func (h *Handlers) modelsList(c *gin.Context) {
	models, err := h.Resolver.ListModels()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models)
}

func (h *Handlers) ttsSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.Gateway.Settings())
}

func (h *Handlers) sample(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("file_name"), "/")
	if strings.Contains(name, "..") {
		respondDetail(c, http.StatusNotFound, ".. in the file name! Are you kidding me?")
		return
	}

	path, err := h.Resolver.Resolve(voices.RootSpeaker, name)
	if err != nil {
		respondError(c, err)
		return
	}
	if info, serr := os.Stat(path); serr != nil || info.IsDir() {
		respondDetail(c, http.StatusNotFound, "File not found")
		return
	}
	c.Header("Content-Type", "audio/wav")
	c.File(path)
}

func (h *Handlers) setOutput(c *gin.Context) {
	var req outputFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Resolver.SetRoot(voices.RootOutput, req.OutputFolder); err != nil {
		respondError(c, err)
		return
	}
	h.persistFolder("output", req.OutputFolder)
	respondMessage(c, fmt.Sprintf("Output folder set to %s", req.OutputFolder))
}

func (h *Handlers) setSpeakerFolder(c *gin.Context) {
	var req speakerFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Resolver.SetRoot(voices.RootSpeaker, req.SpeakerFolder); err != nil {
		respondError(c, err)
		return
	}
	h.persistFolder("speaker", req.SpeakerFolder)
	respondMessage(c, fmt.Sprintf("Speaker folder set to %s", req.SpeakerFolder))
}

func (h *Handlers) persistFolder(kind, path string) {
	if h.State == nil {
		return
	}
	if err := h.State.SaveFolder(kind, path); err != nil {
		h.Logger.WarnTag("STORE", "failed to persist %s folder: %v", kind, err)
	}
}

func (h *Handlers) switchModel(c *gin.Context) {
	var req modelNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	models, err := h.Resolver.ListModels()
	if err != nil {
		respondError(c, err)
		return
	}
	if !slices.Contains(models, req.ModelName) {
		respondDetail(c, http.StatusBadRequest,
			fmt.Sprintf("Model %s not found in the model folder", req.ModelName))
		return
	}

	if h.State != nil {
		if err := h.State.SetActiveModel(req.ModelName); err != nil {
			h.Logger.WarnTag("STORE", "failed to persist model selection: %v", err)
		}
	}
	h.Config.Model.Version = req.ModelName
	respondMessage(c, fmt.Sprintf("Model switched to %s", req.ModelName))
}

func (h *Handlers) setTTSSettings(c *gin.Context) {
	var settings synthesis.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Gateway.ApplySettings(settings); err != nil {
		respondError(c, err)
		return
	}
	if h.State != nil {
		if payload, merr := sonic.MarshalString(settings); merr == nil {
			if serr := h.State.SaveSettings(payload); serr != nil {
				h.Logger.WarnTag("STORE", "failed to persist settings: %v", serr)
			}
		}
	}
	respondMessage(c, "Settings successfully applied")
}

func (h *Handlers) ttsStream(c *gin.Context) {
	if h.Config.Model.Source != "local" {
		respondDetail(c, http.StatusBadRequest, "HTTP Streaming is only supported for local models.")
		return
	}

	req := synthesis.Request{
		Text:       c.Query("text"),
		SpeakerRef: c.Query("speaker_wav"),
		Language:   c.Query("language"),
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.Language) == "" {
		respondDetail(c, http.StatusBadRequest, "text and language query parameters are required")
		return
	}

	ctx := c.Request.Context()
	chunks, err := h.Gateway.OpenStream(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	defer chunks.Close()

	// Header first, then chunks until the engine runs dry or the client
	// goes away. Engines emitting a container get their frames passed
	// through without the PCM preamble.
	if h.Gateway.StreamEncoding() == synthesis.EncodingMP3 {
		c.Header("Content-Type", "audio/mpeg")
		c.Status(http.StatusOK)
	} else {
		c.Header("Content-Type", "audio/x-wav")
		c.Status(http.StatusOK)
		c.Writer.Write(synthesis.StreamWAVHeader(h.Gateway.SampleRate()))
	}
	c.Writer.Flush()

	for {
		chunk, nerr := chunks.Next(ctx)
		if nerr == io.EOF {
			return
		}
		if nerr != nil {
			h.Logger.WarnTag("HTTP", "stream aborted: %v", nerr)
			return
		}
		if _, werr := c.Writer.Write(chunk); werr != nil {
			return
		}
		c.Writer.Flush()
	}
}

func (h *Handlers) ttsToAudio(c *gin.Context) {
	var req synthesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	if h.Stream != nil {
		h.ttsToAudioStreaming(c, req)
		return
	}

	start := time.Now()
	result, err := h.Gateway.SynthesizeToFile(c.Request.Context(), synthesis.Request{
		Text:           req.Text,
		SpeakerRef:     req.SpeakerWav,
		Language:       req.Language,
		Accent:         req.Accent,
		FileNameOrPath: req.SavePath,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.recordSynthesis(req, result, time.Since(start))

	c.Header("Content-Type", "audio/wav")
	c.FileAttachment(result.Path, "output.wav")
	if result.Ephemeral {
		// The body is written by the time FileAttachment returns; the
		// artifact is no longer needed.
		go h.Gateway.Cleanup(result.Path)
	}
}

// ttsToAudioStreaming plays the utterance on the server's own audio device
// and answers with a second of silence so clients expecting a wav body keep
// working.
func (h *Handlers) ttsToAudioStreaming(c *gin.Context, req synthesisRequest) {
	if !synthesis.IsLanguageSupported(req.Language) {
		respondDetail(c, http.StatusBadRequest, "Language code sent is either unsupported or misspelled.")
		return
	}

	voice := h.resolveSpeakerPath(req.SpeakerWav)
	if err := h.Stream.FeedAndPlay(req.Text, voice, synthesis.NormalizeLanguage(req.Language)); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "audio/wav")
	c.Header("Content-Disposition", `attachment; filename="silence.wav"`)
	c.Data(http.StatusOK, "audio/wav", synthesis.SilenceWAV(h.Gateway.SampleRate(), 1.0))
}

// resolveSpeakerPath maps a speaker reference onto a sample wav under the
// speaker folder, falling back to the raw reference for engine-side voices.
func (h *Handlers) resolveSpeakerPath(ref string) string {
	if ref == "" {
		return ""
	}
	candidates := []string{ref}
	if !strings.HasSuffix(strings.ToLower(ref), ".wav") {
		candidates = append(candidates, ref+".wav")
	}
	for _, name := range candidates {
		path, err := h.Resolver.Resolve(voices.RootSpeaker, name)
		if err != nil {
			continue
		}
		if info, serr := os.Stat(path); serr == nil && !info.IsDir() {
			return path
		}
	}
	return ref
}

func (h *Handlers) ttsToFile(c *gin.Context) {
	var req synthesisFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := h.Gateway.SynthesizeToFile(c.Request.Context(), synthesis.Request{
		Text:           req.Text,
		SpeakerRef:     req.SpeakerWav,
		Language:       req.Language,
		FileNameOrPath: req.FileNameOrPath,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.recordSynthesis(synthesisRequest{
		Text: req.Text, SpeakerWav: req.SpeakerWav, Language: req.Language,
	}, result, time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"message":     "The audio was successfully made and stored.",
		"output_path": result.Path,
	})
}

func (h *Handlers) recordSynthesis(req synthesisRequest, result *synthesis.Result, took time.Duration) {
	if h.State == nil {
		return
	}
	err := h.State.RecordSynthesis(storage.SynthesisRecord{
		Speaker:    req.SpeakerWav,
		Language:   synthesis.NormalizeLanguage(req.Language),
		TextLength: len(req.Text),
		OutputPath: result.Path,
		Cached:     result.Cached,
		DurationMS: took.Milliseconds(),
	})
	if err != nil {
		h.Logger.WarnTag("STORE", "failed to record synthesis: %v", err)
	}
}

func (h *Handlers) createLatents(c *gin.Context) {
	file, err := c.FormFile("wav_file")
	if err != nil {
		respondDetail(c, http.StatusBadRequest, "wav_file upload is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		respondDetail(c, http.StatusBadRequest, "cannot read uploaded file")
		return
	}
	defer src.Close()

	audio, err := io.ReadAll(src)
	if err != nil {
		respondDetail(c, http.StatusBadRequest, "cannot read uploaded file")
		return
	}

	bundle, err := h.Latents.ExtractFrom(c.Request.Context(), audio)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Latents created successfully",
		"latents": bundle,
	})
}

func (h *Handlers) storeLatents(c *gin.Context) {
	var req storeLatentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	if !synthesis.IsLanguageSupported(req.Language) {
		respondDetail(c, http.StatusBadRequest, "Language code sent is either unsupported or misspelled.")
		return
	}

	path, err := h.Latents.Save(synthesis.NormalizeLanguage(req.Language), req.SpeakerName, req.Latents)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Latents stored for speaker '%s' in language '%s'",
			req.SpeakerName, req.Language),
		"file_path": path,
	})
}
