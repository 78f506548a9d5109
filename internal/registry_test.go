package internal

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_TryRegisterConcurrent(t *testing.T) {
	r := NewRegistry()
	const attempts = 64

	var wins atomic.Int32
	var winner atomic.Pointer[Session]
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := activeSession("dup")
			<-start
			if r.TryRegister("dup", s) {
				wins.Add(1)
				winner.Store(s)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one registration, got %d", wins.Load())
	}
	if got, ok := r.Lookup("dup"); !ok || got != winner.Load() {
		t.Errorf("Lookup returned %v, %v; want the winning session", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("unexpected registry size %d", r.Len())
	}
}

func TestRegistry_RemoveAndSnapshot(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"A", "B", "C"} {
		s, _ := activeSession(name)
		if !r.TryRegister(name, s) {
			t.Fatalf("TryRegister(%s) failed", name)
		}
	}
	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("Snapshot() = %v", got)
	}

	if !r.Remove("B") {
		t.Error("Remove(B) = false, want true")
	}
	if r.Remove("B") {
		t.Error("second Remove(B) = true, want false")
	}
	if r.Remove("nobody") {
		t.Error("Remove(nobody) = true, want false")
	}
	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("Snapshot() after remove = %v", got)
	}
	if _, ok := r.Lookup("B"); ok {
		t.Error("Lookup(B) found a removed session")
	}

	sessions := r.Sessions()
	if len(sessions) != 2 || sessions[0].Name() != "A" || sessions[1].Name() != "C" {
		t.Errorf("Sessions() out of order: %v", sessions)
	}

	// a freed name can be taken again
	s, _ := activeSession("B")
	if !r.TryRegister("B", s) {
		t.Error("TryRegister(B) after removal failed")
	}
	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"A", "C", "B"}) {
		t.Errorf("Snapshot() = %v", got)
	}
}

func TestRegistry_SnapshotUnderChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", i)
			for j := 0; j < 200; j++ {
				s, _ := activeSession(name)
				r.TryRegister(name, s)
				r.Remove(name)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		seen := map[string]bool{}
		for _, name := range r.Snapshot() {
			if seen[name] {
				t.Fatalf("name %s appears twice in snapshot", name)
			}
			seen[name] = true
		}
		select {
		case <-done:
			if r.Len() != 0 {
				t.Errorf("registry not empty after churn: %v", r.Snapshot())
			}
			return
		default:
		}
	}
}
