package log

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mist-hpc/mist/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger emits operation-scoped log lines: every entry produced by an
// operation tracer carries the operation name, its parameters, the request id
// and the elapsed time since the operation started.
type StructuredLogger struct {
	name  string
	level zapcore.Level
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{logger: l}
	if id := requestid.FromContext(ctx); id != "" {
		b.fields = append(b.fields, zap.String("request_id", id))
	}
	return b
}

type OperationBuilder struct {
	logger    *StructuredLogger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) Operation(name string) *OperationBuilder {
	b.operation = name
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, zap.Stringer(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	fields := make([]zap.Field, 0, len(b.fields)+1)
	fields = append(fields, zap.String("operation", b.operation))
	fields = append(fields, b.fields...)
	return &OperationTracer{
		logger: b.logger,
		fields: fields,
		start:  time.Now(),
	}
}

type OperationTracer struct {
	logger *StructuredLogger
	fields []zap.Field
	start  time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return t.entry(t.logger.level, fmt.Sprintf("step: %s", name))
}

func (t *OperationTracer) Success() *Entry {
	return t.entry(t.logger.level, "operation succeeded")
}

func (t *OperationTracer) Error(err error) *Entry {
	e := t.entry(zapcore.ErrorLevel, "operation failed")
	e.fields = append(e.fields, zap.Error(err))
	return e
}

func (t *OperationTracer) entry(level zapcore.Level, msg string) *Entry {
	fields := make([]zap.Field, len(t.fields), len(t.fields)+4)
	copy(fields, t.fields)
	return &Entry{tracer: t, level: level, msg: msg, fields: fields}
}

// Entry is a single log line of an operation. Nothing is written until Log is called.
type Entry struct {
	tracer *OperationTracer
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithBool(key string, value bool) *Entry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *Entry) WithUUID(key string, value uuid.UUID) *Entry {
	e.fields = append(e.fields, zap.Stringer(key, value))
	return e
}

func (e *Entry) Log() {
	fields := append(e.fields, zap.Duration("elapsed", time.Since(e.tracer.start)))
	logger := zap.L().Named(e.tracer.logger.name)
	if ce := logger.Check(e.level, e.msg); ce != nil {
		ce.Write(fields...)
	}
}
