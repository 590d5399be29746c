// Package transcribe defines the transcript source boundary: a live feed of
// cumulative speech-to-text output with listening controls and an error
// channel. The recogniser itself is external (the browser's speech API);
// implementations adapt its transport and hide platform quirks such as
// unsolicited restarts. The session controller never branches on platform
// identity; any quirk handling lives behind this interface.
package transcribe

import (
	"context"
	"errors"
)

// Recogniser error taxonomy, surfaced to the user as non-fatal messages.
// Only ErrUnsupported blocks a session from entering the listening state.
var (
	// ErrNoSpeech means the recogniser detected no speech for a while.
	ErrNoSpeech = errors.New("transcribe: no speech detected")

	// ErrMicUnavailable means no usable microphone was found.
	ErrMicUnavailable = errors.New("transcribe: microphone unavailable")

	// ErrMicDenied means microphone permission was refused.
	ErrMicDenied = errors.New("transcribe: microphone permission denied")

	// ErrNetwork means the recogniser lost its network backend.
	ErrNetwork = errors.New("transcribe: network failure")

	// ErrUnsupported means the environment has no speech recognition at all.
	ErrUnsupported = errors.New("transcribe: speech recognition unsupported")
)

// IsFatal reports whether err makes the source permanently unusable for the
// current session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// Config holds recogniser settings shared by all Source implementations.
type Config struct {
	// Language is the recognition language tag, e.g. "ko-KR".
	Language string
}

// Source is a live transcript feed. The transcript accumulates everything
// recognised since the last start or reset. Implementations must be safe for
// concurrent use; Updates and Errors must not block producers when the
// consumer lags (latest value wins).
type Source interface {
	// Start begins listening. After an intentional Stop, no events arrive
	// until Start is called again.
	Start(ctx context.Context) error

	// Stop ends listening intentionally. Unsolicited terminations after
	// Stop must not resurrect the stream.
	Stop() error

	// Reset clears the transcript buffer without interrupting listening.
	Reset() error

	// Advance prepares the source for the next target verse. Depending on
	// the platform this is a soft buffer reset or a full stop/start cycle
	// with a settle delay; the caller only sees one operation that may
	// complete asynchronously.
	Advance(ctx context.Context) error

	// Restart performs a full stop/start cycle, discarding any buffered
	// audio or text. Used for verse retries, where lingering content must
	// not leak into the new attempt.
	Restart(ctx context.Context) error

	// Transcript returns the current cumulative transcript.
	Transcript() string

	// Listening reports whether the source is actively delivering speech.
	Listening() bool

	// Updates signals that the transcript changed. Consumers read the
	// current value via Transcript; intermediate values may be skipped.
	Updates() <-chan string

	// Errors delivers recogniser errors from the taxonomy above.
	Errors() <-chan error
}
