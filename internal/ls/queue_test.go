package ls

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestQueueRunsTasksInSubmissionOrder(t *testing.T) {
	q := newRequestQueue()
	defer q.Close()

	var mu sync.Mutex
	var order []int

	// Enqueue from one goroutine so submission order is defined.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			i := i
			_, err := q.Enqueue(context.Background(), func(context.Context) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			if err != nil {
				t.Errorf("task %d error: %v", i, err)
			}
		}
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 10 {
		t.Fatalf("expected 10 tasks, ran %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("task order %v, want ascending", order)
		}
	}
}

func TestQueueNeverOverlapsTasks(t *testing.T) {
	q := newRequestQueue()
	defer q.Close()

	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(context.Background(), func(context.Context) (any, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Fatalf("observed %d concurrent tasks, want 1", maxRunning)
	}
}

func TestQueueTaskErrorDoesNotStopQueue(t *testing.T) {
	q := newRequestQueue()
	defer q.Close()

	boom := errors.New("boom")
	if _, err := q.Enqueue(context.Background(), func(context.Context) (any, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}

	value, err := q.Enqueue(context.Background(), func(context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("queue stopped after failed task: %v", err)
	}
	if value != "ok" {
		t.Fatalf("unexpected value %v", value)
	}
}

func TestQueueCancelledTaskFailsFast(t *testing.T) {
	q := newRequestQueue()
	defer q.Close()

	block := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(context.Background(), func(context.Context) (any, error) {
			<-block
			return nil, nil
		})
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resultCh := make(chan error, 1)
	ran := false
	go func() {
		_, err := q.Enqueue(ctx, func(context.Context) (any, error) {
			ran = true
			return nil, nil
		})
		resultCh <- err
	}()

	close(block)
	err := <-resultCh
	if !errors.Is(err, errRequestCancelled) {
		t.Fatalf("expected request cancelled error, got %v", err)
	}
	if ran {
		t.Fatal("cancelled task must not run")
	}
}

func TestQueueClosedRejectsWork(t *testing.T) {
	q := newRequestQueue()
	q.Close()

	if _, err := q.Enqueue(context.Background(), func(context.Context) (any, error) {
		return nil, nil
	}); !errors.Is(err, errQueueClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
}
