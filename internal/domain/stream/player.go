package stream

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/platform/logging"
)

// PlayerEngine adapts the synthesis collaborator into the playback Engine
// contract. Voice and language are engine-level state shared by sessions.
type PlayerEngine struct {
	mu       sync.Mutex
	synth    synthesis.Engine
	voice    string
	language string
}

func NewPlayerEngine(synth synthesis.Engine) *PlayerEngine {
	return &PlayerEngine{synth: synth}
}

func (e *PlayerEngine) SetVoice(ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = ref
	return nil
}

func (e *PlayerEngine) SetLanguage(language string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = language
}

func (e *PlayerEngine) snapshot() (voice, language string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice, e.language
}

// playerSession renders fed text through the synthesis engine and pipes the
// PCM into an external playback command (e.g. "aplay -q -f S16_LE -r 24000").
// With no command configured the audio is synthesized and discarded, which
// keeps headless deployments functional.
type playerSession struct {
	engine   *PlayerEngine
	playCmd  []string
	settings func() synthesis.Settings
	logger   *logging.Logger

	mu      sync.Mutex
	pending []string
	playing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPlayerSessionFactory builds the SessionFactory used by the manager in
// streaming deployments. settings supplies the current tuning snapshot at
// playback time.
func NewPlayerSessionFactory(playCmd string, settings func() synthesis.Settings, logger *logging.Logger) SessionFactory {
	fields := strings.Fields(playCmd)
	return func(engine Engine) Session {
		return &playerSession{
			engine:   engine.(*PlayerEngine),
			playCmd:  fields,
			settings: settings,
			logger:   logger,
		}
	}
}

func (s *playerSession) Feed(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
	return nil
}

func (s *playerSession) Play(opts PlayOptions) error {
	ctx, done, err := s.begin()
	if err != nil {
		return err
	}
	s.run(ctx, done, opts)
	return nil
}

func (s *playerSession) PlayAsync(opts PlayOptions) error {
	ctx, done, err := s.begin()
	if err != nil {
		return err
	}
	go s.run(ctx, done, opts)
	return nil
}

func (s *playerSession) begin() (context.Context, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		// Queue-behind: the running drain loop picks up newly fed text.
		return nil, nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.playing = true
	s.cancel = cancel
	s.done = done
	return ctx, done, nil
}

func (s *playerSession) run(ctx context.Context, done chan struct{}, opts PlayOptions) {
	if ctx == nil {
		return
	}
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.playing = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		text := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := s.speak(ctx, text, opts); err != nil {
			if ctx.Err() == nil {
				s.logger.ErrorTag("STREAM", "playback failed: %v", err)
			}
			return
		}
	}
}

func (s *playerSession) speak(ctx context.Context, text string, opts PlayOptions) error {
	voice, language := s.engine.snapshot()
	if opts.Language != "" {
		language = opts.Language
	}

	chunks, err := s.engine.synth.SynthesizeStream(ctx, synthesis.Params{
		Text:       text,
		Language:   language,
		SpeakerWav: voice,
		Settings:   s.settings(),
	})
	if err != nil {
		return err
	}
	defer chunks.Close()

	var sink io.WriteCloser
	var cmd *exec.Cmd
	if len(s.playCmd) > 0 {
		cmd = exec.CommandContext(ctx, s.playCmd[0], s.playCmd[1:]...)
		sink, err = cmd.StdinPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return err
		}
	}

	for {
		chunk, err := chunks.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if cmd != nil {
				sink.Close()
				cmd.Wait()
			}
			return err
		}
		if sink != nil {
			if _, err := sink.Write(chunk); err != nil {
				cmd.Wait()
				return err
			}
		}
	}

	if cmd != nil {
		sink.Close()
		return cmd.Wait()
	}
	return nil
}

func (s *playerSession) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.pending = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (s *playerSession) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
