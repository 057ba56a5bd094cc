package audit

import "context"

// Known audit sources. Stored verbatim in the source column.
const (
	// SourceEngine marks actions taken by schedule evaluation.
	SourceEngine = "engine"

	// SourceAPI marks actions triggered through the REST API.
	SourceAPI = "api"

	// SourceMQTT marks actions triggered by MQTT requests.
	SourceMQTT = "mqtt"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const ctxKeySource contextKey = "audit_source"

// WithSource tags ctx with the surface an action entered through. The
// recorder prefers this over its default, so one engine-level recorder
// attributes each action to the transport that triggered it.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// SourceFromContext returns the source carried by ctx, if any.
func SourceFromContext(ctx context.Context) (string, bool) {
	source, ok := ctx.Value(ctxKeySource).(string)
	return source, ok && source != ""
}
