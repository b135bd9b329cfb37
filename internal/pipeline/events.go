package pipeline

import (
	"time"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// EventType identifies an Event.
type EventType int

const (
	// EventSessionStarted is emitted by Start.
	EventSessionStarted EventType = iota
	// EventSentenceQueued is emitted when AddSentence accepts a sentence.
	EventSentenceQueued
	// EventAudioReady carries a synthesized sentence and its audio.
	EventAudioReady
	// EventSynthesisFailed reports a SynthesisFailure.
	EventSynthesisFailed
	// EventPlayed is emitted after a sentence's audio has been played.
	EventPlayed
	// EventPlaybackFailed reports a PlaybackFailure.
	EventPlaybackFailed
	// EventShutdownTimeout reports a worker abandoned at finalize.
	EventShutdownTimeout
	// EventSessionFinished is the last event of a session.
	EventSessionFinished
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventSessionStarted:
		return "session_started"
	case EventSentenceQueued:
		return "sentence_queued"
	case EventAudioReady:
		return "audio_ready"
	case EventSynthesisFailed:
		return "synthesis_failed"
	case EventPlayed:
		return "played"
	case EventPlaybackFailed:
		return "playback_failed"
	case EventShutdownTimeout:
		return "shutdown_timeout"
	case EventSessionFinished:
		return "session_finished"
	default:
		return "unknown"
	}
}

// Event describes something that happened in a session. Index is the
// zero-based position of the sentence in the session, or -1.
type Event struct {
	Type      EventType
	SessionID string
	Index     int
	Text      string
	Audio     audio.Segment // a copy; EventAudioReady only
	Err       error
	Elapsed   time.Duration // synthesis or playback time, session time for EventSessionFinished
	Time      time.Time
	Result    *Result // EventSessionFinished only
}

// Observer receives session events. Calls come from the worker goroutines
// and must not block for long or call back into the Controller.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans events out to several observers in order.
type Observers []Observer

// OnEvent implements Observer.
func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}
