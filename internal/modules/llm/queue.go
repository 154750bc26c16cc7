package llm

import (
	"context"
	"sync"

	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"

	"github.com/pkg/errors"
)

// ErrQueueFull is returned when the queue cannot accept more work.
// Callers treat it as "no answer", never as a reason to block.
var ErrQueueFull = errors.New("llm queue full")

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

type job struct {
	system string
	prompt string
	result chan answer
}

type answer struct {
	text string
	err  error
}

// Completer is what the queue runs jobs against.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Queue bounds both queued and in-flight LLM calls. High-priority jobs
// are drained before normal ones.
type Queue struct {
	client Completer
	high   chan job
	normal chan job

	startOnce sync.Once
	stop      context.CancelFunc
	wg        sync.WaitGroup
	workers   int
}

func NewQueue(cfg *config.Config, client *Client) *Queue {
	return newQueue(client, cfg.LLM.QueueSize, cfg.LLM.MaxConcurrent)
}

func newQueue(client Completer, size, workers int) *Queue {
	if size <= 0 {
		size = 100
	}
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:  client,
		high:    make(chan job, size),
		normal:  make(chan job, size),
		workers: workers,
	}
}

// Start spawns the worker pool. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, q.stop = context.WithCancel(ctx)
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
		logger.Info("[LLM] queue started: %d workers, capacity %d", q.workers, cap(q.high))
	})
}

func (q *Queue) Stop() {
	if q.stop != nil {
		q.stop()
		q.wg.Wait()
	}
}

// Ask enqueues a prompt and waits for the answer or the context.
// A full queue fails immediately with ErrQueueFull.
func (q *Queue) Ask(ctx context.Context, prio Priority, system, prompt string) (string, error) {
	j := job{system: system, prompt: prompt, result: make(chan answer, 1)}

	lane := q.normal
	if prio == PriorityHigh {
		lane = q.high
	}
	select {
	case lane <- j:
	default:
		return "", ErrQueueFull
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-j.result:
		return a.text, a.err
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		// drain high first
		select {
		case <-ctx.Done():
			return
		case j := <-q.high:
			q.run(ctx, j)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case j := <-q.high:
			q.run(ctx, j)
		case j := <-q.normal:
			q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j job) {
	text, err := q.client.Complete(ctx, j.system, j.prompt)
	j.result <- answer{text: text, err: err}
}
