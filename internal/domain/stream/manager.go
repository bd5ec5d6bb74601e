package stream

import (
	"sync"

	"xtts-server-go/internal/platform/errors"
	"xtts-server-go/internal/platform/logging"
)

// Config selects the playback behavior of the shared session.
type Config struct {
	// Improved enables the sentence-aware tokenizer options.
	Improved bool
	// PlaySync queues utterances behind the live one instead of replacing it.
	PlaySync bool
}

// Manager owns the single "currently speaking" session of the process. All
// mutation funnels through its mutex; request handlers hold a reference and
// never touch the engine directly.
type Manager struct {
	mu         sync.Mutex
	engine     Engine
	session    Session
	newSession SessionFactory
	cfg        Config
	logger     *logging.Logger

	activeVoice    string
	activeLanguage string
}

func NewManager(engine Engine, factory SessionFactory, cfg Config, logger *logging.Logger) *Manager {
	return &Manager{
		engine:     engine,
		session:    factory(engine),
		newSession: factory,
		cfg:        cfg,
		logger:     logger,
	}
}

// FeedAndPlay speaks text with the given voice and language. In
// asynchronous mode a live session is stopped and replaced before the new
// utterance starts; in synchronous mode the utterance queues behind the
// current one on the same session. Calls are totally ordered by arrival.
func (m *Manager) FeedAndPlay(text, voiceRef, language string) error {
	const op = "stream.feed_and_play"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.IsPlaying() && !m.cfg.PlaySync {
		if err := m.session.Stop(); err != nil {
			return errors.Wrap(errors.KindSynthesis, op, "stop active session", err)
		}
		m.session = m.newSession(m.engine)
		m.logger.InfoTag("STREAM", "replaced active session for new utterance")
	}

	// Voice and language are applied to the engine before text is fed, so a
	// switch-voice/feed-text race cannot occur within the mutation path.
	if err := m.engine.SetVoice(voiceRef); err != nil {
		return errors.Wrap(errors.KindSynthesis, op, "set voice", err)
	}
	m.engine.SetLanguage(language)
	m.activeVoice = voiceRef
	m.activeLanguage = language

	if err := m.session.Feed(text); err != nil {
		return errors.Wrap(errors.KindSynthesis, op, "feed text", err)
	}

	opts := m.playOptions(language)
	var err error
	if m.cfg.PlaySync {
		err = m.session.Play(opts)
	} else {
		err = m.session.PlayAsync(opts)
	}
	if err != nil {
		// No rollback: the session stays in whatever state the engine
		// reports, observable via IsPlaying.
		return errors.Wrap(errors.KindSynthesis, op, "start playback", err)
	}

	m.logger.InfoTag("STREAM", "speaking %d chars, voice=%s language=%s sync=%v",
		len(text), voiceRef, language, m.cfg.PlaySync)
	return nil
}

func (m *Manager) playOptions(language string) PlayOptions {
	// Tokenizer options want the bare two-letter code; regional variants
	// like zh-cn stay full only at the engine level.
	if len(language) > 2 {
		language = language[:2]
	}
	opts := PlayOptions{
		Language:    language,
		Synchronous: m.cfg.PlaySync,
	}
	if m.cfg.Improved {
		opts.MinSentenceLength = 2
		opts.MinFirstFragmentLength = 2
		opts.Tokenizer = "stanza"
		opts.ContextSize = 2
	}
	return opts
}

// IsPlaying reports whether the shared session is currently producing audio.
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsPlaying()
}

// Active returns the voice and language applied by the last FeedAndPlay.
func (m *Manager) Active() (voice, language string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeVoice, m.activeLanguage
}
