package xerrors

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackHas(pcs []uintptr, fn string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, fn) {
			return true
		}
		if !more {
			return false
		}
	}
}

func stackOf(t *testing.T, err error) []uintptr {
	t.Helper()
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatalf("%v carries no stack", err)
	}
	return hs.StackPCs()
}

func TestNew(t *testing.T) {
	err := New("root missing")
	if err.Error() != "root missing" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !stackHas(stackOf(t, err), "TestNew") {
		t.Fatal("stack should start at the caller")
	}
}

func TestNewf_HonorsWrapVerb(t *testing.T) {
	err := Newf("stat %s: %w", "chainlit.md", fs.ErrNotExist)
	if err.Error() != "stat chainlit.md: file does not exist" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("Newf should keep %w chain")
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	err := WithStack(errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("WithStack should unwrap")
	}
	if err.Error() != "sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if len(stackOf(t, err)) == 0 {
		t.Fatal("stack should be non-empty")
	}
}

func TestEnsureTrace_AddsOnce(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}

	first := EnsureTrace(errSentinel)
	if first == errSentinel {
		t.Fatal("plain error should gain a stack")
	}

	wrapped := fmt.Errorf("outer: %w", first)
	if got := EnsureTrace(wrapped); got != wrapped {
		t.Fatal("error with a stack in its chain should be returned unchanged")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}

	err := Wrap(errSentinel, "read chainlit.md")
	if err.Error() != "read chainlit.md: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Wrap should unwrap")
	}

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) || hp.PC() == 0 {
		t.Fatal("Wrap should record a PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap") {
		t.Fatalf("PC should point at the caller, got %v", fn)
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	err := Wrapf(errSentinel, "get %s/%s", "bucket", "key")
	if err.Error() != "get bucket/key: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrappers_AreMarked(t *testing.T) {
	var marker interface{ IsXerrorsWrapper() }
	for _, err := range []error{New("a"), Wrap(errSentinel, "b"), WithStack(errSentinel)} {
		if !errors.As(err, &marker) {
			t.Fatalf("%T should be marked as an xerrors wrapper", err)
		}
	}
}
