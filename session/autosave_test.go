package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/canvas/layout"
)

type countingSaver struct {
	mu    sync.Mutex
	saves []layout.Layout
	err   error
}

func (c *countingSaver) Save(_ context.Context, _ string, l layout.Layout) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.saves = append(c.saves, l)
	return nil
}

func (c *countingSaver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves)
}

func (c *countingSaver) last() layout.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves[len(c.saves)-1]
}

func TestAutosaver_DebouncesBurst(t *testing.T) {
	saver := &countingSaver{}
	a := NewAutosaver(saver, "s1", AutosaveConfig{Window: 50 * time.Millisecond}, nil)

	l := layout.Layout{}
	for i := range 10 {
		l = l.Add(layout.NewNode(nodeID(i), layout.KindText))
		a.Schedule(l)
	}

	time.Sleep(200 * time.Millisecond)
	if n := saver.count(); n != 1 {
		t.Fatalf("writes = %d, want 1", n)
	}
	if got := saver.last(); len(got) != 10 || got[9].ID != nodeID(9) {
		t.Fatalf("saved layout has %d nodes", len(got))
	}
	if a.Writes() != 1 || a.Pending() {
		t.Fatalf("writes=%d pending=%v", a.Writes(), a.Pending())
	}
}

func TestAutosaver_MaxWait(t *testing.T) {
	saver := &countingSaver{}
	a := NewAutosaver(saver, "s1", AutosaveConfig{Window: 40 * time.Millisecond, MaxWait: 60 * time.Millisecond}, nil)

	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		a.Schedule(layout.Layout{layout.NewNode("node-1", layout.KindText)})
		time.Sleep(10 * time.Millisecond)
	}
	if n := saver.count(); n < 1 {
		t.Fatal("no write while changes kept arriving")
	}
	_ = a.Close(context.Background())
}

func TestAutosaver_CloseFlushes(t *testing.T) {
	saver := &countingSaver{}
	a := NewAutosaver(saver, "s1", AutosaveConfig{Window: time.Hour}, nil)

	a.Schedule(layout.Layout{layout.NewNode("node-1", layout.KindText)})
	if err := a.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if saver.count() != 1 {
		t.Fatalf("writes = %d, want 1", saver.count())
	}

	a.Schedule(layout.Layout{})
	if a.Pending() {
		t.Fatal("schedule accepted after Close")
	}
}

func TestAutosaver_FailureStaysPending(t *testing.T) {
	saver := &countingSaver{err: errors.New("database is locked")}
	a := NewAutosaver(saver, "s1", AutosaveConfig{Window: time.Hour}, nil)

	a.Schedule(layout.Layout{layout.NewNode("node-1", layout.KindText)})
	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !a.Pending() {
		t.Fatal("failed state dropped")
	}

	saver.mu.Lock()
	saver.err = nil
	saver.mu.Unlock()
	if err := a.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if saver.count() != 1 || a.Pending() {
		t.Fatalf("writes=%d pending=%v", saver.count(), a.Pending())
	}
}

func TestAutosaver_Discard(t *testing.T) {
	saver := &countingSaver{}
	a := NewAutosaver(saver, "s1", AutosaveConfig{Window: 20 * time.Millisecond}, nil)

	a.Schedule(layout.Layout{layout.NewNode("node-1", layout.KindText)})
	a.Discard()
	time.Sleep(60 * time.Millisecond)
	if saver.count() != 0 {
		t.Fatalf("writes = %d after discard", saver.count())
	}
}

func TestAutosaver_ThroughManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.mgr.Create(ctx, "owner-1", "page")

	a, err := f.mgr.NewAutosaver(ctx, s.ID, "owner-1", AutosaveConfig{Window: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	a.Schedule(sampleLayout())
	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.mgr.Load(ctx, s.ID)
	if len(got.Layout) != 2 {
		t.Fatalf("saved layout = %+v", got.Layout)
	}
}

func nodeID(i int) string {
	return "node-" + string(rune('a'+i))
}
