package publishers

import (
	"context"
	"strconv"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

// Event is the payload delivered to publishers after a harvest cycle
// that inserted new articles.
type Event struct {
	Cycle     uint64           `json:"cycle"`
	EmittedAt time.Time        `json:"emittedAt"`
	Articles  []domain.Article `json:"articles"`
}

// CycleAttr renders the cycle number for message attributes.
func (e Event) CycleAttr() string {
	return strconv.FormatUint(e.Cycle, 10)
}

// Publisher delivers article events to an external sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the logging surface publishers accept. It mirrors the
// application logger so any of its implementations can be passed in.
type Logger interface {
	DebugObj(msg string, eventKey string, fields map[string]any)
	InfoObj(msg string, eventKey string, fields map[string]any)
	WarnObj(msg string, eventKey string, fields map[string]any)
	ErrorObj(msg string, eventKey string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) DebugObj(string, string, map[string]any) {}
func (nopLogger) InfoObj(string, string, map[string]any)  {}
func (nopLogger) WarnObj(string, string, map[string]any)  {}
func (nopLogger) ErrorObj(string, string, map[string]any) {}

// ensureLogger substitutes a no-op logger for nil.
func ensureLogger(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
