package eventlog

import (
	"context"
	"time"

	"github.com/dgnsrekt/speakstream/internal/pipeline"
)

// Observer writes pipeline events to a Store.
type Observer struct {
	store   *Store
	engine  string
	timeout time.Duration
}

// NewObserver returns an observer recording sessions of the named engine.
func NewObserver(store *Store, engine string) *Observer {
	return &Observer{store: store, engine: engine, timeout: 2 * time.Second}
}

// OnEvent implements pipeline.Observer. Write errors are logged and
// otherwise ignored.
func (o *Observer) OnEvent(e pipeline.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if e.Type == pipeline.EventSessionStarted {
		if err := o.store.StartSession(ctx, e.SessionID, o.engine, e.Time); err != nil {
			o.store.log.Warn("event store: failed to record session", "session", e.SessionID, "err", err)
			return
		}
	}

	r := Record{
		SessionID: e.SessionID,
		Type:      e.Type.String(),
		Index:     e.Index,
		Text:      e.Text,
		Elapsed:   e.Elapsed,
		CreatedAt: e.Time,
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	if err := o.store.AppendEvent(ctx, r); err != nil {
		o.store.log.Warn("event store: failed to append event", "session", e.SessionID, "type", r.Type, "err", err)
	}

	if e.Type == pipeline.EventSessionFinished && e.Result != nil {
		res := e.Result
		if err := o.store.FinishSession(ctx, e.SessionID, res.Path, res.Sentences, len(res.SynthesisFailures), e.Time); err != nil {
			o.store.log.Warn("event store: failed to finish session", "session", e.SessionID, "err", err)
		}
	}
}
