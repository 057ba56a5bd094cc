// Package logging provides structured logging for Hearth Core.
//
// It is a thin layer over log/slog: a Logger carries the service name
// and build version on every entry, and New maps the logging section
// of config.yaml onto a handler:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// JSON is the production format; text is easier on the eyes during
// development. Consumers that only need the four levelled methods
// should accept their own small logger interface rather than this
// concrete type, which the engine packages do.
//
// Never log secrets: no tokens, password hashes or broker credentials.
package logging
