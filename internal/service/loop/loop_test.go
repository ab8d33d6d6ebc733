package loop

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(ctx, func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("expected 5 closures to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("expected %d at position %d, got %d", i, i, v)
		}
	}
}

func TestLoop_PostFromLoopDoesNotBlock(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	count := 0
	err := l.Do(ctx, func() {
		for i := 0; i < 1000; i++ {
			l.Post(func() { count++ })
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Do(ctx, func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1000 {
		t.Errorf("expected 1000 nested posts to run, got %d", count)
	}
}

func TestLoop_DoAfterStop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	err := l.Do(context.Background(), func() {})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := New() // never run

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Do(ctx, func() {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
