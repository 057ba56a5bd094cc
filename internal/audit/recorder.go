package audit

import "context"

// Logger is the minimal logging interface the recorder needs.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Recorder writes engine actions to the audit trail. Failures are
// logged, never propagated: an audit hiccup must not block actuation.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a recorder. Entries are tagged with the source
// carried by the call's context, falling back to defaultSource for
// actions the engine takes on its own.
func NewRecorder(repo Repository, defaultSource string) *Recorder {
	return &Recorder{repo: repo, source: defaultSource, logger: noopLogger{}}
}

// SetLogger installs a logger for create failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Record stores one audit entry.
func (r *Recorder) Record(ctx context.Context, action, room string, details map[string]any) {
	source := r.source
	if s, ok := SourceFromContext(ctx); ok {
		source = s
	}

	entry := &AuditLog{
		Action:  action,
		Room:    room,
		Source:  source,
		Details: details,
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("writing audit log failed", "action", action, "room", room, "error", err)
	}
}
