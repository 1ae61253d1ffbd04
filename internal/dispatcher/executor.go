package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnknownKind      = stderrors.New("unknown job kind")
	ErrMalformedPayload = stderrors.New("malformed payload")
)

// Executor runs a job payload and returns its result. Executors must honour
// ctx: it is cancelled when the job is cancelled or times out.
type Executor interface {
	Execute(ctx context.Context, payload string) (string, error)
}

type ExecutorFunc func(ctx context.Context, payload string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError
	return stderrors.As(err, &t)
}

// ParsePayload splits a "<kind>:<argument>" payload.
func ParsePayload(payload string) (kind string, arg string, err error) {
	kind, arg, found := strings.Cut(payload, ":")
	if !found || kind == "" {
		return "", "", errors.Wrapf(ErrMalformedPayload, "expected <kind>:<argument>, got %q", truncate(payload, 64))
	}
	return kind, arg, nil
}

// Mux routes a payload to the executor registered for its kind. The
// executor receives the argument only.
type Mux struct {
	executors map[string]Executor
}

func NewMux() *Mux {
	return &Mux{executors: map[string]Executor{}}
}

// NewBuiltinMux returns a mux serving the echo, sleep and fail kinds.
func NewBuiltinMux() *Mux {
	m := NewMux()
	m.Handle("echo", ExecutorFunc(echo))
	m.Handle("sleep", ExecutorFunc(sleep))
	m.Handle("fail", ExecutorFunc(fail))
	return m
}

func (m *Mux) Handle(kind string, e Executor) {
	m.executors[kind] = e
}

func (m *Mux) Kinds() []string {
	kinds := make([]string, 0, len(m.executors))
	for k := range m.executors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks that payload is well formed and names a registered kind.
func (m *Mux) Validate(payload string) error {
	kind, _, err := ParsePayload(payload)
	if err != nil {
		return err
	}
	if _, ok := m.executors[kind]; !ok {
		return errors.Wrapf(ErrUnknownKind, "%q (known: %s)", kind, strings.Join(m.Kinds(), ", "))
	}
	return nil
}

func (m *Mux) Execute(ctx context.Context, payload string) (string, error) {
	kind, arg, err := ParsePayload(payload)
	if err != nil {
		return "", err
	}
	e, ok := m.executors[kind]
	if !ok {
		return "", errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	return e.Execute(ctx, arg)
}

func echo(_ context.Context, arg string) (string, error) {
	return arg, nil
}

func sleep(ctx context.Context, arg string) (string, error) {
	d, err := time.ParseDuration(arg)
	if err != nil {
		return "", errors.Wrap(err, "invalid sleep duration")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return fmt.Sprintf("slept %s", d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func fail(_ context.Context, arg string) (string, error) {
	if arg == "" {
		arg = "job failed"
	}
	return "", stderrors.New(arg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
