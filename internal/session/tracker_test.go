package session

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestTrackerConsumeIsExactlyOnce(t *testing.T) {
	tr := NewTracker(10, 0)
	tr.Begin("42", 7, 2)

	p, ok := tr.Consume("42")
	if !ok {
		t.Fatal("Expected pending state")
	}
	if p.Mode != ModeAwaitingComment || p.InspectionID != 7 || p.ItemIndex != 2 {
		t.Errorf("Unexpected pending state: %+v", p)
	}

	if _, ok := tr.Consume("42"); ok {
		t.Error("Expected second consume to report absent")
	}
}

func TestTrackerBeginOverwrites(t *testing.T) {
	tr := NewTracker(10, 0)
	tr.Begin("42", 7, 1)
	tr.Begin("42", 8, 3)

	p, ok := tr.Consume("42")
	if !ok || p.InspectionID != 8 || p.ItemIndex != 3 {
		t.Errorf("Expected latest state, got %+v ok=%v", p, ok)
	}
	if tr.Len() != 0 {
		t.Errorf("Expected empty tracker, got %d", tr.Len())
	}
}

func TestTrackerClearAndIsolation(t *testing.T) {
	tr := NewTracker(10, 0)
	tr.Begin("a", 1, 0)
	tr.Begin("b", 2, 4)

	tr.Clear("a")
	if tr.Len() != 1 {
		t.Errorf("Expected one remaining session, got %d", tr.Len())
	}
	if _, ok := tr.Consume("a"); ok {
		t.Error("Expected session a to be cleared")
	}
	if p, ok := tr.Consume("b"); !ok || p.InspectionID != 2 || p.ItemIndex != 4 {
		t.Errorf("Expected session b to be untouched, got %+v ok=%v", p, ok)
	}
}

func TestTrackerExpiry(t *testing.T) {
	tr := NewTracker(10, 20*time.Millisecond)
	tr.Begin("42", 1, 0)

	time.Sleep(60 * time.Millisecond)

	if _, ok := tr.Consume("42"); ok {
		t.Error("Expected expired state to be absent")
	}
}

func TestTrackerConcurrentConsume(t *testing.T) {
	tr := NewTracker(100, 0)
	tr.Begin("42", 1, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	hits := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tr.Consume("42"); ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if hits != 1 {
		t.Errorf("Expected exactly one consumer, got %d", hits)
	}
}

func TestTrackerCapacity(t *testing.T) {
	tr := NewTracker(2, 0)
	for i := 0; i < 5; i++ {
		tr.Begin(strconv.Itoa(i), int64(i), 0)
	}
	if tr.Len() != 2 {
		t.Errorf("Expected capacity-bounded tracker, got %d entries", tr.Len())
	}
	if _, ok := tr.Consume("4"); !ok {
		t.Error("Expected most recent session to be retained")
	}
}
