// Package eventlog owns the append-only experiment log: context fields are
// reconstructed from the session state at write time, and the export renders
// the fixed analysis-ready CSV layout.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/model"
	"github.com/tmoreaux/detectlab/internal/store"
)

// Notifier is called after each successful append with the new log length.
// Delivery is best effort: a refresh surface may not be listening, so any
// failure or panic stays out of the state machine's error path.
type Notifier func(count int)

// Logger appends entries to the experiment log.
type Logger struct {
	store  store.Store
	notify Notifier

	mu            sync.Mutex
	lastEventType model.EventType
}

// New creates a logger over the given store. notify may be nil.
func New(st store.Store, notify Notifier) *Logger {
	return &Logger{store: st, notify: notify}
}

// Append writes one entry. Common context fields (trial id, post URL,
// condition, model, ground truth) are filled from the state as of this
// moment; values already set on the entry win. Consecutive manual_text_edit
// events collapse into one so a typing burst does not flood the log.
func (l *Logger) Append(ctx context.Context, entry model.LogEntry) error {
	l.mu.Lock()
	skip := entry.EventType == model.EventManualTextEdit && l.lastEventType == model.EventManualTextEdit
	if !skip {
		l.lastEventType = entry.EventType
	}
	l.mu.Unlock()
	if skip {
		return nil
	}

	state, err := l.store.State(ctx)
	if err != nil {
		return eris.Wrap(err, "eventlog: read state")
	}

	entry.Timestamp = time.Now().UTC()
	entry.SessionID = state.SessionID
	if entry.Condition == "" {
		entry.Condition = state.Condition()
	}
	if entry.TrialID == nil && state.CurrentTrialID != nil {
		entry.TrialID = model.Ptr(*state.CurrentTrialID)
	}
	if entry.Post == nil && state.CurrentPostURL != "" {
		entry.Post = model.Ptr(state.CurrentPostURL)
	}
	if entry.ModelUsed == nil && state.SelectedModel != "" {
		entry.ModelUsed = model.Ptr(state.SelectedModel)
	}
	if entry.AIGeneratedPost == nil && state.GroundTruth != nil {
		entry.AIGeneratedPost = model.Ptr(*state.GroundTruth)
	}

	count, err := l.store.AppendLog(ctx, entry)
	if err != nil {
		return eris.Wrap(err, "eventlog: append")
	}

	zap.L().Debug("event logged",
		zap.String("event_type", string(entry.EventType)),
		zap.Int("total_logs", count),
	)

	l.fireNotify(count)
	return nil
}

func (l *Logger) fireNotify(count int) {
	if l.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("log notifier failed", zap.Any("reason", r))
		}
	}()
	l.notify(count)
}

// Clear removes every entry. The operator confirms on their side; here it is
// a plain, irreversible bulk delete.
func (l *Logger) Clear(ctx context.Context) error {
	l.mu.Lock()
	l.lastEventType = ""
	l.mu.Unlock()
	return eris.Wrap(l.store.ClearLogs(ctx), "eventlog: clear")
}
