package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	res := Map(context.Background(), items, 3, func(_ context.Context, _ int, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})
	for i, r := range res {
		if r.Err != nil {
			t.Fatalf("item %d: unexpected error %v", i, r.Err)
		}
		if r.Value != items[i]*10 {
			t.Fatalf("item %d: got %d want %d", i, r.Value, items[i]*10)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	items := make([]int, 20)
	Map(context.Background(), items, 4, func(_ context.Context, _ int, _ int) (struct{}, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return struct{}{}, nil
	})
	if peak.Load() > 4 {
		t.Fatalf("peak concurrency %d exceeds 4", peak.Load())
	}
}

func TestMapIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	res := Map(context.Background(), []string{"ok", "err", "panic", "ok"}, 2, func(_ context.Context, _ int, s string) (string, error) {
		switch s {
		case "err":
			return "", boom
		case "panic":
			panic("worker exploded")
		}
		return s, nil
	})
	if res[0].Err != nil || res[3].Err != nil {
		t.Fatalf("healthy items failed: %+v", res)
	}
	if !errors.Is(res[1].Err, boom) {
		t.Fatalf("want boom, got %v", res[1].Err)
	}
	if res[2].Err == nil {
		t.Fatal("panic was not converted into an error")
	}
}

func TestMapEmpty(t *testing.T) {
	res := Map(context.Background(), []int(nil), 3, func(context.Context, int, int) (int, error) {
		t.Fatal("fn called for empty input")
		return 0, nil
	})
	if len(res) != 0 {
		t.Fatalf("want empty result, got %d", len(res))
	}
}
