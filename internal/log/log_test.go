package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/xerrors"
)

func newBufLogger(t *testing.T, buf *bytes.Buffer, opts Options) Logger {
	t.Helper()
	opts.Writer = buf
	opts.JsonFormat = true
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

// lastRecord parses the last JSON line written to buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("parse log line: %v\n%s", err, buf.String())
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn\n", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "trace", "fatal", "info error"} {
		if _, err := ParseLevel(bad); err == nil {
			t.Errorf("ParseLevel(%q) should fail", bad)
		}
	}
}

func TestNew_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "welcome", Version: "1.2.3", Level: slog.LevelInfo})

	l.Info(context.Background(), "hello", "root", "/srv/app")

	m := lastRecord(t, &buf)
	if m["msg"] != "hello" || m["app"] != "welcome" || m["version"] != "1.2.3" || m["root"] != "/srv/app" {
		t.Fatalf("unexpected record: %v", m)
	}
	if _, ok := m["commit"]; ok {
		t.Fatal("empty commit should not be logged")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t", Level: slog.LevelWarn})

	l.Debug(context.Background(), "d")
	l.Info(context.Background(), "i")
	if buf.Len() != 0 {
		t.Fatalf("records below level were written: %s", buf.String())
	}
	l.Warn(context.Background(), "w")
	if lastRecord(t, &buf)["msg"] != "w" {
		t.Fatal("warn should be written")
	}
}

func TestWith_CopyOnWrite(t *testing.T) {
	var buf bytes.Buffer
	base := newBufLogger(t, &buf, Options{App: "t"})
	child := base.With("component", "resolver", "orphan")

	child.Info(context.Background(), "child")
	if lastRecord(t, &buf)["component"] != "resolver" {
		t.Fatal("child should carry component")
	}

	base.Info(context.Background(), "base")
	if _, ok := lastRecord(t, &buf)["component"]; ok {
		t.Fatal("With must not mutate the parent")
	}
}

func TestError_Enrichment(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t"})

	err := xerrors.Wrap(fmt.Errorf("open: %w", io.ErrUnexpectedEOF), "read chainlit.md")
	l.Error(context.Background(), err, "resolve failed")

	m := lastRecord(t, &buf)
	if m["level"] != "ERROR" {
		t.Fatalf("level = %v", m["level"])
	}
	if !strings.Contains(m["err"].(string), "read chainlit.md") {
		t.Fatalf("err = %v", m["err"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 3 {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	if _, ok := m["stack"]; !ok {
		t.Fatal("error records should carry a stack")
	}
}

func TestError_NilErr(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t"})
	l.Error(context.Background(), nil, "no err")
	if _, ok := lastRecord(t, &buf)["err"]; ok {
		t.Fatal("nil error should not add err attr")
	}
}

func TestOtelHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t"})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	l.Info(ctx, "traced")

	m := lastRecord(t, &buf)
	if m["trace_id"] != sc.TraceID().String() || m["span_id"] != sc.SpanID().String() {
		t.Fatalf("trace ids missing: %v", m)
	}
}

func TestClassifyTypes_SkipsWrappers(t *testing.T) {
	base := &customErr{}
	surface, root := classifyTypes(xerrors.Wrap(fmt.Errorf("x: %w", base), "y"))
	if surface != "*log.customErr" || root != "*log.customErr" {
		t.Fatalf("surface=%s root=%s", surface, root)
	}
}

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestErrorChain_Joined(t *testing.T) {
	got := errorChain(errors.Join(errors.New("a"), errors.New("b")))
	if len(got) != 3 {
		t.Fatalf("errorChain = %v", got)
	}
}

func TestNop(t *testing.T) {
	l := Nop().With("a", 1).With("odd")
	ctx := context.Background()
	l.Debug(ctx, "x")
	l.Info(ctx, "x")
	l.Warn(ctx, "x")
	l.Error(ctx, nil, "x")
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("empty context should yield Nop")
	}

	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t"})
	parent := context.Background()
	child := WithContext(parent, l)
	if FromContext(child) != l {
		t.Fatal("FromContext should return the stored logger")
	}
	if FromContext(parent) == l {
		t.Fatal("parent context must not see the logger")
	}

	wrong := context.WithValue(parent, ctxKey{}, "not a logger")
	FromContext(wrong).Info(parent, "safe")
}

func TestStacktraceLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(t, &buf, Options{App: "t", Level: slog.LevelDebug, StacktraceLevel: slog.LevelInfo})

	l.Debug(context.Background(), "quiet")
	if _, ok := lastRecord(t, &buf)["stack"]; ok {
		t.Fatal("debug record below stacktrace level got a stack")
	}
	l.Info(context.Background(), "loud")
	if _, ok := lastRecord(t, &buf)["stack"]; !ok {
		t.Fatal("info record at stacktrace level should carry a stack")
	}
}
