package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func upperBatch(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.ToUpper(s)
	}
	return out, nil
}

func TestSubmitFiresOnBatchSize(t *testing.T) {
	var calls atomic.Int32
	var sizes sync.Map
	fn := func(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
		n := calls.Add(1)
		sizes.Store(n, len(items))
		return upperBatch(ctx, items, aux)
	}
	p, err := NewProcessor("upper", fn, 5, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	var wg sync.WaitGroup
	results := make([]string, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.Submit(context.Background(), fmt.Sprintf("item%d", i), nil)
			if err != nil {
				t.Errorf("Submit(%d): %v", i, err)
				return
			}
			results[i] = got
		}(i)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, got := range results {
		want := fmt.Sprintf("ITEM%d", i)
		if got != want {
			t.Fatalf("result[%d] = %q, want %q", i, got, want)
		}
	}
	// First five coalesce into one batch; the sixth fires by age within
	// max-wait. No batch may exceed the size bound.
	sizes.Range(func(_, v any) bool {
		if v.(int) > 5 {
			t.Fatalf("batch size %d exceeds bound 5", v.(int))
		}
		return true
	})
	if got := calls.Load(); got != 2 {
		t.Fatalf("batch function called %d times, want 2", got)
	}
}

func TestSubmitFiresOnMaxWait(t *testing.T) {
	p, err := NewProcessor("upper", upperBatch, 100, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	start := time.Now()
	got, err := p.Submit(context.Background(), "solo", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got != "SOLO" {
		t.Fatalf("result = %q, want SOLO", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("item waited %s, want dispatch within max-wait plus a tick", elapsed)
	}
}

func TestHeadAuxAppliesToWholeBatch(t *testing.T) {
	var gotAux map[string]any
	fn := func(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
		gotAux = aux
		return upperBatch(ctx, items, aux)
	}
	p, err := NewProcessor("upper", fn, 2, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = p.Submit(context.Background(), "a", map[string]any{"max_tokens": 300})
	}()
	time.Sleep(50 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, _ = p.Submit(context.Background(), "b", map[string]any{"max_tokens": 999})
	}()
	wg.Wait()

	if gotAux == nil || gotAux["max_tokens"] != 300 {
		t.Fatalf("batch aux = %v, want the head item's max_tokens=300", gotAux)
	}
}

func TestShortResultsTruncate(t *testing.T) {
	fn := func(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
		return []string{"ONLY"}, nil
	}
	p, err := NewProcessor("short", fn, 3, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	type res struct {
		val string
		err error
	}
	results := make([]res, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Submit(context.Background(), fmt.Sprintf("i%d", i), nil)
			results[i] = res{v, err}
		}(i)
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	if results[0].err != nil || results[0].val != "ONLY" {
		t.Fatalf("first waiter got (%q, %v), want (ONLY, nil)", results[0].val, results[0].err)
	}
	for i := 1; i < 3; i++ {
		if !errors.Is(results[i].err, ErrShortBatch) {
			t.Fatalf("waiter %d error = %v, want ErrShortBatch", i, results[i].err)
		}
	}
}

func TestBatchErrorFansOutAndProcessorSurvives(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	fn := func(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
		if fail.Load() {
			return nil, errors.New("generator exploded")
		}
		return upperBatch(ctx, items, aux)
	}
	p, err := NewProcessor("flaky", fn, 2, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Submit(context.Background(), "x", nil)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err == nil || !strings.Contains(err.Error(), "generator exploded") {
			t.Fatalf("waiter %d error = %v, want the batch error", i, err)
		}
	}

	// A bad batch must not wedge the processor.
	fail.Store(false)
	got, err := p.Submit(context.Background(), "ok", nil)
	if err != nil {
		t.Fatalf("Submit after failed batch: %v", err)
	}
	if got != "OK" {
		t.Fatalf("result = %q, want OK", got)
	}
}

func TestPanicInBatchFunctionIsAnError(t *testing.T) {
	fn := func(ctx context.Context, items []string, aux map[string]any) ([]string, error) {
		panic("boom")
	}
	p, err := NewProcessor("panicky", fn, 1, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	if _, err := p.Submit(context.Background(), "x", nil); err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("error = %v, want panic surfaced as error", err)
	}
}

func TestCancelBeforeDispatchRemovesItem(t *testing.T) {
	p, err := NewProcessor("upper", upperBatch, 100, time.Hour)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, "never", nil)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := p.Pending(); got != 0 {
		t.Fatalf("pending = %d, want 0 after cancellation", got)
	}
}

func TestShutdownDrainsThenRejects(t *testing.T) {
	p, err := NewProcessor("upper", upperBatch, 100, time.Hour)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		v, _ := p.Submit(context.Background(), "pending", nil)
		done <- v
	}()
	time.Sleep(50 * time.Millisecond)

	p.Shutdown(context.Background())
	if got := <-done; got != "PENDING" {
		t.Fatalf("pending item result = %q, want PENDING (flushed on shutdown)", got)
	}

	if _, err := p.Submit(context.Background(), "late", nil); !errors.Is(err, ErrShutdown) {
		t.Fatalf("error = %v, want ErrShutdown", err)
	}
}

func TestManagerRegisterIsIdempotent(t *testing.T) {
	m := NewManager()
	p1, err := NewProcessor("fill_in_vocab", upperBatch, 5, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	if !m.Register(p1) {
		t.Fatal("first registration should succeed")
	}
	p2, err := NewProcessor("fill_in_vocab", upperBatch, 5, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { p2.Shutdown(context.Background()) })
	if m.Register(p2) {
		t.Fatal("second registration under the same name should be rejected")
	}
	if !m.Has("fill_in_vocab") {
		t.Fatal("manager should know the processor")
	}
	if m.Has("missing") {
		t.Fatal("manager should not report unknown processors")
	}
}

func TestManagerStats(t *testing.T) {
	m := NewManager()
	p, err := NewProcessor("upper", upperBatch, 1, time.Second)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	m.Register(p)

	if _, err := p.Submit(context.Background(), "a", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stats := m.Stats()
	if stats["upper"]["served"] != 1 || stats["upper"]["batches"] != 1 {
		t.Fatalf("stats = %v, want one batch with one item served", stats["upper"])
	}
}
