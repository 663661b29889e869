package ringbuf

import (
	"testing"

	"volatility-systemv1/internal/model"
)

func tick(d int) model.Tick {
	return model.Tick{Symbol: "R_10", Quote: float64(d), LastDigit: d % 10}
}

func TestWindow_PushAndOrder(t *testing.T) {
	w := New(4)
	for i := 0; i < 3; i++ {
		w.Push(tick(i))
	}
	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	snap := w.Snapshot()
	for i, tk := range snap {
		if tk.Quote != float64(i) {
			t.Fatalf("at %d: expected quote %d, got %v", i, i, tk.Quote)
		}
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	const capacity = 5
	w := New(capacity)

	// Push well past capacity; the window must hold exactly the most recent
	// N in arrival order.
	for i := 0; i < 37; i++ {
		w.Push(tick(i))
	}
	if w.Len() != capacity {
		t.Fatalf("expected len=%d, got %d", capacity, w.Len())
	}
	snap := w.Snapshot()
	for i, tk := range snap {
		want := float64(37 - capacity + i)
		if tk.Quote != want {
			t.Fatalf("at %d: expected quote %v, got %v", i, want, tk.Quote)
		}
	}
	if w.Evicted() != 37-capacity {
		t.Fatalf("expected evicted=%d, got %d", 37-capacity, w.Evicted())
	}
}

func TestWindow_Replace(t *testing.T) {
	w := New(3)
	w.Push(tick(99))

	series := []model.Tick{tick(1), tick(2), tick(3), tick(4), tick(5)}
	w.Replace(series)

	if w.Len() != 3 {
		t.Fatalf("expected len=3 after replace, got %d", w.Len())
	}
	snap := w.Snapshot()
	for i, want := range []float64{3, 4, 5} {
		if snap[i].Quote != want {
			t.Fatalf("at %d: expected quote %v, got %v", i, want, snap[i].Quote)
		}
	}
}

func TestWindow_Last(t *testing.T) {
	w := New(2)
	if _, ok := w.Last(); ok {
		t.Fatal("Last on empty window should return false")
	}
	w.Push(tick(1))
	w.Push(tick(2))
	w.Push(tick(3))
	last, ok := w.Last()
	if !ok || last.Quote != 3 {
		t.Fatalf("expected last quote 3, got %v ok=%v", last.Quote, ok)
	}
}

func TestWindow_Each(t *testing.T) {
	w := New(4)
	for i := 0; i < 6; i++ {
		w.Push(tick(i))
	}
	var seen []float64
	w.Each(func(tk model.Tick) { seen = append(seen, tk.Quote) })
	want := []float64{2, 3, 4, 5}
	if len(seen) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("at %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}
