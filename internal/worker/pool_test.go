package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/matsen/bibshelf/internal/liberr"
)

func TestRun_ResultsInJobOrder(t *testing.T) {
	p := NewPool(3, nil)
	args := []int{1, 2, 3, 4, 5, 6, 7}

	b := Run(context.Background(), p, args, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})

	if b.ID == "" {
		t.Error("batch has no id")
	}
	if len(b.Results) != len(args) {
		t.Fatalf("got %d results, want %d", len(b.Results), len(args))
	}
	for i, r := range b.Results {
		if r.JobID != i || r.Status != StatusOK || r.Value != args[i]*args[i] {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if done, total := p.Progress(); done != 7 || total != 7 {
		t.Errorf("Progress() = %d/%d, want 7/7", done, total)
	}
}

func TestRun_ErrorsDoNotStopBatch(t *testing.T) {
	p := NewPool(2, nil)
	boom := errors.New("boom")

	b := Run(context.Background(), p, []string{"a", "bad", "c"}, func(_ context.Context, s string) (string, error) {
		if s == "bad" {
			return "", boom
		}
		return s, nil
	})

	if got := b.Count(StatusOK); got != 2 {
		t.Errorf("ok = %d, want 2", got)
	}
	if r := b.Results[1]; r.Status != StatusError || !errors.Is(r.Err, boom) {
		t.Errorf("result 1 = %+v, want error boom", r)
	}
}

func TestRun_RespectsLimit(t *testing.T) {
	p := NewPool(2, nil)
	var running, peak atomic.Int32
	gate := make(chan struct{})

	go func() {
		for i := 0; i < 6; i++ {
			gate <- struct{}{}
		}
	}()

	Run(context.Background(), p, make([]int, 6), func(_ context.Context, _ int) (int, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return 0, nil
	})

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestRun_AbortCancelsPendingJobs(t *testing.T) {
	p := NewPool(1, nil)

	b := Run(context.Background(), p, []int{0, 1, 2, 3}, func(_ context.Context, n int) (int, error) {
		if n == 1 {
			p.Abort()
		}
		return n, nil
	})

	if b.Results[0].Status != StatusOK || b.Results[1].Status != StatusOK {
		t.Errorf("jobs before abort = %+v %+v, want ok", b.Results[0], b.Results[1])
	}
	for _, r := range b.Results[2:] {
		if r.Status != StatusCanceled {
			t.Errorf("job %d status = %v, want canceled", r.JobID, r.Status)
		}
		if !errors.Is(r.Err, liberr.ErrCanceled) {
			t.Errorf("job %d err = %v, want ErrCanceled", r.JobID, r.Err)
		}
	}

	p.Reset()
	if p.Aborted() {
		t.Error("Reset() did not clear abort flag")
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := Run(ctx, NewPool(2, nil), []int{1, 2}, func(_ context.Context, n int) (int, error) {
		t.Error("job ran after cancel")
		return n, nil
	})
	if got := b.Count(StatusCanceled); got != 2 {
		t.Errorf("canceled = %d, want 2", got)
	}
}

func TestRun_PanicIsError(t *testing.T) {
	b := Run(context.Background(), NewPool(1, nil), []int{1}, func(_ context.Context, _ int) (int, error) {
		panic("bad pdf")
	})
	if r := b.Results[0]; r.Status != StatusError || r.Err == nil {
		t.Errorf("result = %+v, want error", r)
	}
}
