// Package shell runs the synthesis model as an external command. The server
// stays a pure orchestration layer; the heavy model process is whatever the
// operator configures, from a python inference script to a compiled runner.
//
// Command contract: the configured synthesize command is invoked with
//
//	--text <utterance> --language <code> --out <wav path>
//	[--speaker-wav <path> | --latents <json path>]
//	[--stream]  (raw PCM on stdout instead of a wav file)
//
// plus model placement flags and the current tuning values. The latents
// command receives --audio <path> and must print a latents JSON document on
// stdout.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/platform/config"
	"xtts-server-go/internal/platform/errors"
	"xtts-server-go/internal/platform/logging"
)

const (
	defaultSampleRate = 24000
	defaultTimeout    = 5 * time.Minute
	streamChunkBytes  = 4096
)

type Engine struct {
	cfg    config.ExecEngineConfig
	model  config.ModelConfig
	logger *logging.Logger
}

func New(cfg config.ExecEngineConfig, model config.ModelConfig, logger *logging.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.SynthesizeCommand) == "" {
		return nil, errors.New(errors.KindConfig, "shell.new", "engine.exec.synthesize_command must be set")
	}
	return &Engine{cfg: cfg, model: model, logger: logger}, nil
}

func (e *Engine) SampleRate() int {
	if e.cfg.SampleRate > 0 {
		return e.cfg.SampleRate
	}
	return defaultSampleRate
}

func (e *Engine) Close() error { return nil }

func (e *Engine) timeout() time.Duration {
	if e.cfg.Timeout > 0 {
		return e.cfg.Timeout
	}
	return defaultTimeout
}

// args builds the invocation for one request. The latents temp file path is
// returned so callers can remove it when the process exits.
func (e *Engine) args(p synthesis.Params, stream bool) (argv []string, latentsPath string, err error) {
	argv = strings.Fields(e.cfg.SynthesizeCommand)

	argv = append(argv,
		"--model-dir", e.model.Folder,
		"--model-version", e.model.Version,
		"--device", e.model.Device,
		"--text", p.Text,
		"--language", p.Language,
	)
	if e.model.LowVRAM {
		argv = append(argv, "--lowvram")
	}
	if e.model.DeepSpeed {
		argv = append(argv, "--deepspeed")
	}

	switch {
	case p.SpeakerWav != "":
		argv = append(argv, "--speaker-wav", p.SpeakerWav)
	case p.Latents != nil:
		data, merr := sonic.Marshal(p.Latents)
		if merr != nil {
			return nil, "", errors.Wrap(errors.KindIO, "shell.args", "encode latents", merr)
		}
		latentsPath = filepath.Join(os.TempDir(), uuid.NewString()+".json")
		if werr := os.WriteFile(latentsPath, data, 0o644); werr != nil {
			return nil, "", errors.Wrap(errors.KindIO, "shell.args", "write latents scratch file", werr)
		}
		argv = append(argv, "--latents", latentsPath)
	}

	if p.Accent != "" {
		argv = append(argv, "--accent", p.Accent)
	}

	s := p.Settings
	argv = append(argv,
		"--temperature", strconv.FormatFloat(s.Temperature, 'f', -1, 64),
		"--speed", strconv.FormatFloat(s.Speed, 'f', -1, 64),
		"--length-penalty", strconv.FormatFloat(s.LengthPenalty, 'f', -1, 64),
		"--repetition-penalty", strconv.FormatFloat(s.RepetitionPenalty, 'f', -1, 64),
		"--top-p", strconv.FormatFloat(s.TopP, 'f', -1, 64),
		"--top-k", strconv.Itoa(s.TopK),
		"--stream-chunk-size", strconv.Itoa(s.StreamChunkSize),
	)
	if s.EnableTextSplitting {
		argv = append(argv, "--enable-text-splitting")
	}

	if stream {
		argv = append(argv, "--stream")
	} else {
		argv = append(argv, "--out", p.OutputPath)
	}
	return argv, latentsPath, nil
}

func (e *Engine) Synthesize(ctx context.Context, p synthesis.Params) error {
	const op = "shell.synthesize"

	argv, latentsPath, err := e.args(p, false)
	if err != nil {
		return err
	}
	if latentsPath != "" {
		defer os.Remove(latentsPath)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.Wrap(errors.KindSynthesis, op,
			fmt.Sprintf("model runner failed: %s", tail(stderr.String())), err)
	}
	if _, err := os.Stat(p.OutputPath); err != nil {
		return errors.New(errors.KindSynthesis, op,
			fmt.Sprintf("model runner produced no output at %s", p.OutputPath))
	}

	e.logger.DebugTag("TTS", "model runner finished in %v", time.Since(start))
	return nil
}

func (e *Engine) SynthesizeStream(ctx context.Context, p synthesis.Params) (synthesis.ChunkStream, error) {
	const op = "shell.synthesize_stream"

	argv, latentsPath, err := e.args(p, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(errors.KindSynthesis, op, "open runner stdout", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrap(errors.KindSynthesis, op, "start model runner", err)
	}

	return &processStream{
		cmd:         cmd,
		stdout:      stdout,
		stderr:      &stderr,
		cancel:      cancel,
		latentsPath: latentsPath,
	}, nil
}

// processStream adapts the runner's stdout into a chunk sequence. Close is
// idempotent and reaps the child.
type processStream struct {
	cmd         *exec.Cmd
	stdout      io.ReadCloser
	stderr      *bytes.Buffer
	cancel      context.CancelFunc
	latentsPath string
	closed      bool
}

func (s *processStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, streamChunkBytes)
	n, err := s.stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		if werr := s.reap(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	return nil, errors.Wrap(errors.KindSynthesis, "shell.stream", "read runner output", err)
}

func (s *processStream) reap() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()
	if s.latentsPath != "" {
		defer os.Remove(s.latentsPath)
	}
	if err := s.cmd.Wait(); err != nil {
		return errors.Wrap(errors.KindSynthesis, "shell.stream",
			fmt.Sprintf("model runner failed: %s", tail(s.stderr.String())), err)
	}
	return nil
}

func (s *processStream) Close() error {
	if s.closed {
		return nil
	}
	s.cancel()
	s.stdout.Close()
	return s.reap()
}

func (e *Engine) ExtractConditioning(ctx context.Context, audioPath string) (*latents.ConditioningLatents, error) {
	const op = "shell.extract_conditioning"

	if strings.TrimSpace(e.cfg.LatentsCommand) == "" {
		return nil, errors.New(errors.KindSynthesis, op, "no latents command configured for this engine")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	argv := append(strings.Fields(e.cfg.LatentsCommand),
		"--model-dir", e.model.Folder,
		"--device", e.model.Device,
		"--audio", audioPath,
	)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op,
			fmt.Sprintf("latents runner failed: %s", tail(stderr.String())), err)
	}

	var bundle latents.ConditioningLatents
	if err := sonic.Unmarshal(stdout.Bytes(), &bundle); err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "parse latents runner output", err)
	}
	return &bundle, nil
}

// tail trims runner stderr to the last few lines so errors stay readable.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no stderr)"
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}
