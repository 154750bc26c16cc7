package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	delay   time.Duration
	answers []string
	inFly   atomic.Int64
	maxFly  atomic.Int64
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	cur := f.inFly.Add(1)
	defer f.inFly.Add(-1)
	for {
		max := f.maxFly.Load()
		if cur <= max || f.maxFly.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, prompt)
	return "yes: " + prompt, nil
}

func TestQueueAnswers(t *testing.T) {
	fc := &fakeCompleter{}
	q := newQueue(fc, 10, 2)
	q.Start(context.Background())
	defer q.Stop()

	got, err := q.Ask(context.Background(), PriorityNormal, "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "yes: hello", got)
}

func TestQueueFullFailsFast(t *testing.T) {
	fc := &fakeCompleter{delay: time.Second}
	q := newQueue(fc, 1, 1)
	// not started: nothing drains, so the second enqueue must overflow

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	go func() { _, _ = q.Ask(ctx, PriorityNormal, "sys", "first") }()

	// wait for the first job to occupy the lane
	require.Eventually(t, func() bool { return len(q.normal) == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	_, err := q.Ask(context.Background(), PriorityNormal, "sys", "second")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestQueueConcurrencyBound(t *testing.T) {
	fc := &fakeCompleter{delay: 30 * time.Millisecond}
	q := newQueue(fc, 20, 3)
	q.Start(context.Background())
	defer q.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Ask(context.Background(), PriorityNormal, "sys", "p")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, fc.maxFly.Load(), int64(3))
}

func TestQueueHighPriorityFirst(t *testing.T) {
	fc := &fakeCompleter{delay: 10 * time.Millisecond}
	q := newQueue(fc, 20, 1)

	var wg sync.WaitGroup
	ask := func(prio Priority, prompt string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Ask(context.Background(), prio, "sys", prompt)
		}()
	}

	ask(PriorityNormal, "n1")
	ask(PriorityNormal, "n2")
	ask(PriorityHigh, "h1")

	require.Eventually(t, func() bool {
		return len(q.normal) == 2 && len(q.high) == 1
	}, time.Second, time.Millisecond)

	q.Start(context.Background())
	wg.Wait()
	q.Stop()

	require.Len(t, fc.answers, 3)
	assert.Equal(t, "h1", fc.answers[0])
}
