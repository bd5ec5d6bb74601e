package stream

// PlayOptions enumerates the recognized playback options, constructed once
// per call with defaults rather than assembled ad hoc.
type PlayOptions struct {
	MinSentenceLength      int
	MinFirstFragmentLength int
	Tokenizer              string
	Language               string
	ContextSize            int
	Synchronous            bool
}

// Engine is the playback-capable synthesis handle shared by every session
// in the process. Voice and language are engine state, applied before text
// is fed.
type Engine interface {
	SetVoice(ref string) error
	SetLanguage(language string)
}

// Session is one live utterance pipeline bound to an Engine. A session is
// not restartable after Stop; the manager constructs a fresh one instead.
type Session interface {
	Feed(text string) error
	Play(opts PlayOptions) error
	PlayAsync(opts PlayOptions) error
	Stop() error
	IsPlaying() bool
}

// SessionFactory builds a fresh session bound to the shared engine.
type SessionFactory func(Engine) Session
