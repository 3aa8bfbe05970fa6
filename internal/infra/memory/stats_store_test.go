package memory

import (
	"context"
	"sync"
	"testing"
)

func TestStatsStoreIncrementAndTop(t *testing.T) {
	ctx := context.Background()
	store := NewStatsStore()

	_ = store.Increment(ctx, "u1", 1.5)
	_ = store.Increment(ctx, "u2", 3)
	_ = store.Increment(ctx, "u1", 2)

	st, _ := store.Get(ctx, "u1")
	if st.TotalScore != 3.5 || st.GamesPlayed != 2 {
		t.Fatalf("unexpected stats for u1: %+v", st)
	}

	top, err := store.Top(ctx, 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "u1" {
		t.Fatalf("expected u1 to lead, got %+v", top)
	}
}

func TestStatsStoreConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewStatsStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Increment(ctx, "u1", 1)
		}()
	}
	wg.Wait()

	st, _ := store.Get(ctx, "u1")
	if st.TotalScore != 100 || st.GamesPlayed != 100 {
		t.Fatalf("lost updates: %+v", st)
	}
}
