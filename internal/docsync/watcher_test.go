package docsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
)

type scriptedSyncer struct {
	mu       sync.Mutex
	releases []string
	errs     []error
	syncErr  error
	synced   []string
}

func (s *scriptedSyncer) CurrentRelease(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, err := s.releases[0], s.errs[0]
	if len(s.releases) > 1 {
		s.releases, s.errs = s.releases[1:], s.errs[1:]
	}
	return rel, err
}

func (s *scriptedSyncer) SyncRelease(_ context.Context, release string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncErr != nil {
		return Result{}, s.syncErr
	}
	s.synced = append(s.synced, release)
	return Result{Release: release}, nil
}

func TestWatcher_Poll(t *testing.T) {
	boom := errors.New("ssm down")
	s := &scriptedSyncer{
		releases: []string{"r1", "", "", "r2", "r2"},
		errs:     []error{nil, boom, boom, nil, nil},
	}
	w := newWatcher(s, log.Nop(), time.Minute, "r1")
	ctx := context.Background()

	assert.Equal(t, time.Minute, w.poll(ctx), "unchanged")
	assert.Equal(t, 2*time.Minute, w.poll(ctx), "first error")
	assert.Equal(t, 4*time.Minute, w.poll(ctx), "second error")
	assert.Equal(t, time.Minute, w.poll(ctx), "recovered with new release")
	assert.Equal(t, 0, w.errs)
	assert.Equal(t, "r2", w.current)
	w.poll(ctx)
	assert.Equal(t, []string{"r2"}, s.synced, "release synced once")
}

func TestWatcher_SyncFailureRetries(t *testing.T) {
	s := &scriptedSyncer{releases: []string{"r2"}, errs: []error{nil}, syncErr: errors.New("checksum")}
	w := newWatcher(s, nil, time.Minute, "r1")

	w.poll(context.Background())
	assert.Equal(t, "r1", w.current, "failed sync keeps the old release")

	s.syncErr = nil
	w.poll(context.Background())
	assert.Equal(t, "r2", w.current)
}

func TestWatcher_BackoffCap(t *testing.T) {
	w := newWatcher(nil, nil, time.Minute, "")
	w.errs = 30
	assert.Equal(t, maxBackoff, w.backoff())
}

func TestWatcher_RunStops(t *testing.T) {
	s := &scriptedSyncer{releases: []string{"r1"}, errs: []error{nil}}
	w := newWatcher(s, nil, time.Millisecond, "r0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.synced) == 1
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
