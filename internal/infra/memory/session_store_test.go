package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := store.Acquire("ROOM1")
	if session == nil {
		t.Fatalf("expected session")
	}
	again := store.Acquire("ROOM1")
	if again != session {
		t.Fatalf("expected the held session to be reused")
	}
	if store.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", store.Active())
	}

	store.Release(again)
	if store.Active() != 1 {
		t.Fatalf("expected session kept while still held")
	}
	store.Release(session)
	if store.Active() != 0 {
		t.Fatalf("expected session removed when idle")
	}
	if err := session.Do(context.Background(), func() error { return nil }); err == nil {
		t.Fatalf("expected closed session to refuse work")
	}
}

func TestSessionSerializesJobs(t *testing.T) {
	store := NewSessionStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
		counter int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := store.Acquire("ROOM1")
			defer store.Release(session)
			_ = session.Do(context.Background(), func() error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("expected jobs to run one at a time, peak concurrency %d", peak)
	}
	if counter != 20 {
		t.Fatalf("expected 20 serialized increments, got %d", counter)
	}
}

func TestSessionsForDifferentRoomsRunInParallel(t *testing.T) {
	store := NewSessionStore()
	a := store.Acquire("A")
	b := store.Acquire("B")
	defer store.Release(a)
	defer store.Release(b)

	release := make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		blocked <- a.Do(context.Background(), func() error {
			<-release
			return nil
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = b.Do(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("room B blocked behind room A")
	}
	close(release)
	if err := <-blocked; err != nil {
		t.Fatalf("room A job: %v", err)
	}
}
