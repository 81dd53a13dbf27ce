package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
)

type captured struct {
	level string
	msg   string
	err   error
	kv    []any
}

// spyLogger records every call; With accumulates fields into the child.
type spyLogger struct {
	mu     *sync.Mutex
	fields []any
	out    *[]captured
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, out: &[]captured{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, s.fields...), kv...)
	return &spyLogger{mu: s.mu, fields: f, out: s.out}
}

func (s *spyLogger) add(level, msg string, err error, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(append([]any{}, s.fields...), kv...)
	*s.out = append(*s.out, captured{level: level, msg: msg, err: err, kv: all})
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.add("debug", msg, nil, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.add("info", msg, nil, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.add("warn", msg, nil, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.add("error", msg, err, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) records() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]captured(nil), *s.out...)
}

// field returns the value for key in kv, last one wins.
func field(kv []any, key string) (any, bool) {
	var v any
	found := false
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			v, found = kv[i+1], true
		}
	}
	return v, found
}
