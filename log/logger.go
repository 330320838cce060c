package log

import "context"

// Logger is the logging contract handed to every component at construction
// time. Nothing in this module logs through a package-level logger.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything. Useful in tests.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})       {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Error(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) With(map[string]interface{}) Logger                             { return nopLogger{} }
