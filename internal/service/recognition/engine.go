package recognition

import "context"

// Callback receives raw signals from a speech engine. Engines may call it
// from any goroutine.
type Callback interface {
	OnPartial(text string)
	OnFinal(text string)
	OnStarted()
	OnEnded()
	OnError(code ErrorCode)
}

// Engine is a continuous speech-to-text engine (Google, a remote browser
// client, a scripted mock).
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Start begins continuous capture. A returned error is a synchronous
	// start failure; later failures are reported through the callback.
	Start(ctx context.Context, cb Callback) error

	// Stop ends capture. The engine should report OnEnded afterwards.
	Stop() error
}

// AudioReceiver is implemented by engines that are fed raw audio.
type AudioReceiver interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// PhraseHinter is implemented by engines that accept vocabulary hints to
// bias recognition toward a course topic.
type PhraseHinter interface {
	SetPhrases(phrases []string)
}
