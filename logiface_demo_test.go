package reactor

import (
	"testing"

	"github.com/joeycumines/logiface"
)

// TestLogifaceInteroperability demonstrates that a caller wanting richer
// structured logging than DefaultLogger can run a pluggable logiface
// pipeline alongside a Reactor, forwarding through the narrow Logger
// interface via a tiny adapter — exactly the kind of "integrate with an
// external framework" use case this package's Logger interface exists for.
func TestLogifaceInteroperability(t *testing.T) {
	var captured []string

	lf := logiface.New[logiface.Event](
		logiface.WithWriter[logiface.Event](logiface.NewWriterFunc(func(event logiface.Event) error {
			captured = append(captured, "event")
			return nil
		})),
	)

	adapter := logifaceAdapter{lf: lf}

	r, err := New(WithLogger(adapter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	adapter.Log(LogEntry{Level: LogInfo, Category: "test", Message: "hello"})

	if len(captured) == 0 {
		t.Fatal("expected the logiface pipeline to observe at least one event")
	}
}

// logifaceAdapter satisfies this package's Logger interface by forwarding
// into a logiface.Logger, so any of logiface's own backend integrations
// (zerolog, logrus, slog, stumpy) become usable as a Reactor's logger
// without this package importing any of them directly.
type logifaceAdapter struct {
	lf *logiface.Logger[logiface.Event]
}

func (a logifaceAdapter) IsEnabled(level LogLevel) bool {
	return a.lf != nil
}

func (a logifaceAdapter) Log(entry LogEntry) {
	if a.lf == nil {
		return
	}
	b := a.lf.Info()
	if b == nil {
		return
	}
	b.Log(entry.Message)
}
