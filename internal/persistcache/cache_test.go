package persistcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet_LoadsOnceAndCaches(t *testing.T) {
	var loads atomic.Int32
	c := New(
		func(ctx context.Context) (string, bool, error) {
			loads.Add(1)
			return "stored", true, nil
		},
		func(ctx context.Context, v string) error { return nil },
	)

	for i := 0; i < 3; i++ {
		v, found, err := c.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !found || v != "stored" {
			t.Fatalf("expected (stored, true), got (%q, %v)", v, found)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times, want 1", n)
	}
}

func TestGet_AbsentRecordIsNotAnError(t *testing.T) {
	c := New(
		func(ctx context.Context) (int, bool, error) { return 0, false, nil },
		func(ctx context.Context, v int) error { return nil },
	)

	_, found, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("absence must not surface as an error, got: %v", err)
	}
	if found {
		t.Error("expected found=false for an absent record")
	}
}

func TestGet_ConcurrentFirstReadersShareOneLoad(t *testing.T) {
	var loads atomic.Int32
	c := New(
		func(ctx context.Context) (int, bool, error) {
			loads.Add(1)
			time.Sleep(20 * time.Millisecond) // widen the race window
			return 42, true, nil
		},
		func(ctx context.Context, v int) error { return nil },
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, found, err := c.Get(context.Background())
			if err != nil || !found || v != 42 {
				t.Errorf("got (%d, %v, %v), want (42, true, nil)", v, found, err)
			}
		}()
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times under concurrency, want 1", n)
	}
}

func TestGet_LoadErrorRetriesNextCall(t *testing.T) {
	calls := 0
	c := New(
		func(ctx context.Context) (int, bool, error) {
			calls++
			if calls == 1 {
				return 0, false, errors.New("disk on fire")
			}
			return 7, true, nil
		},
		func(ctx context.Context, v int) error { return nil },
	)

	if _, _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected the first load error to surface")
	}
	v, found, err := c.Get(context.Background())
	if err != nil || !found || v != 7 {
		t.Fatalf("expected recovery on second call, got (%d, %v, %v)", v, found, err)
	}
}

func TestSet_WritesThroughAndSkipsReload(t *testing.T) {
	var loads, saves atomic.Int32
	c := New(
		func(ctx context.Context) (string, bool, error) {
			loads.Add(1)
			return "", false, nil
		},
		func(ctx context.Context, v string) error {
			saves.Add(1)
			return nil
		},
	)

	if err := c.Set(context.Background(), "fresh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, found, err := c.Get(context.Background())
	if err != nil || !found || v != "fresh" {
		t.Fatalf("got (%q, %v, %v), want (fresh, true, nil)", v, found, err)
	}
	if loads.Load() != 0 {
		t.Error("Get after Set must not hit storage")
	}
	if saves.Load() != 1 {
		t.Errorf("save ran %d times, want 1", saves.Load())
	}
}

func TestSet_SaveErrorLeavesCacheUntouched(t *testing.T) {
	c := New(
		func(ctx context.Context) (string, bool, error) { return "old", true, nil },
		func(ctx context.Context, v string) error { return errors.New("write failed") },
	)

	if err := c.Set(context.Background(), "new"); err == nil {
		t.Fatal("expected save error to surface")
	}
	v, found, err := c.Get(context.Background())
	if err != nil || !found || v != "old" {
		t.Fatalf("cache should still serve the stored value, got (%q, %v, %v)", v, found, err)
	}
}
