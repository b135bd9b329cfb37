package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string](0)

	for _, s := range []string{"a", "b", "c"} {
		if err := q.Push(s); err != nil {
			t.Fatalf("Push(%q) failed: %v", s, err)
		}
	}
	if n := q.Len(); n != 3 {
		t.Errorf("Expected length 3, got %d", n)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, kind := q.Pop(time.Second)
		if kind != KindItem || got != want {
			t.Fatalf("Pop = %q (%v), want %q", got, kind, want)
		}
		q.Done()
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := New[int](0)

	start := time.Now()
	_, kind := q.Pop(20 * time.Millisecond)
	if kind != KindTimeout {
		t.Fatalf("Expected timeout, got %v", kind)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, before the poll interval", elapsed)
	}
	if stats := q.Stats(); stats.Timeouts != 1 {
		t.Errorf("Expected 1 timeout, got %d", stats.Timeouts)
	}
}

func TestQueue_PopWakesOnPush(t *testing.T) {
	q := New[int](0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(7)
	}()

	got, kind := q.Pop(5 * time.Second)
	if kind != KindItem || got != 7 {
		t.Fatalf("Pop = %d (%v), want 7", got, kind)
	}
}

func TestQueue_Terminator(t *testing.T) {
	q := New[int](0)
	q.Push(1)

	if err := q.Terminate(); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if err := q.Terminate(); !errors.Is(err, ErrTerminated) {
		t.Errorf("second Terminate: expected ErrTerminated, got %v", err)
	}
	if err := q.Push(2); !errors.Is(err, ErrTerminated) {
		t.Errorf("Push after Terminate: expected ErrTerminated, got %v", err)
	}

	if _, kind := q.Pop(time.Second); kind != KindItem {
		t.Fatalf("Expected item before terminator, got %v", kind)
	}
	q.Done()
	if _, kind := q.Pop(time.Second); kind != KindTerminator {
		t.Fatalf("Expected terminator, got %v", kind)
	}
	q.Done()

	if !q.Terminated() {
		t.Error("Terminated() = false")
	}
}

func TestQueue_JoinWaitsForDone(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	q.Terminate()

	var (
		mu        sync.Mutex
		processed []int
	)
	go func() {
		for {
			v, kind := q.Pop(10 * time.Millisecond)
			switch kind {
			case KindTimeout:
				continue
			case KindTerminator:
				q.Done()
				return
			}
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			processed = append(processed, v)
			mu.Unlock()
			q.Done()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Join(ctx); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 5 {
		t.Fatalf("Join returned with %d of 5 items processed", len(processed))
	}
	for i, v := range processed {
		if v != i {
			t.Errorf("processed[%d] = %d", i, v)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after Join, got %d", q.Len())
	}
}

func TestQueue_JoinContext(t *testing.T) {
	q := New[int](0)
	q.Push(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestQueue_JoinEmpty(t *testing.T) {
	q := New[int](0)
	if err := q.Join(context.Background()); err != nil {
		t.Errorf("Join on empty queue: %v", err)
	}
}

func TestQueue_Backpressure(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(3)
	}()

	select {
	case err := <-pushed:
		t.Fatalf("Push on full queue returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	q.Pop(time.Second)
	q.Done()

	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not resume after Pop")
	}

	// The terminator is never held back by the bound.
	if err := q.Terminate(); err != nil {
		t.Fatalf("Terminate on full queue: %v", err)
	}
	if stats := q.Stats(); stats.PeakSize != 3 {
		t.Errorf("Expected peak size 3, got %d", stats.PeakSize)
	}
}

func TestQueue_PushContextCancel(t *testing.T) {
	q := New[int](1)
	q.Push(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := q.PushContext(ctx, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New[int](1)
	q.Push(1)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- q.Push(2)
	}()
	go func() {
		defer wg.Done()
		results <- q.Join(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(results)

	for err := range results {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	}

	if _, kind := q.Pop(time.Second); kind != KindClosed {
		t.Errorf("Pop after Close: expected KindClosed, got %v", kind)
	}
	if q.Len() != 0 {
		t.Errorf("Close left %d entries", q.Len())
	}
	q.Close()
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindItem, "item"},
		{KindTerminator, "terminator"},
		{KindTimeout, "timeout"},
		{KindClosed, "closed"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
