package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

// Writer is a game.Sink that writes mutations to an EventStore on a single
// background goroutine, in the order they were enqueued. Enqueue never
// blocks; the queue is unbounded.
type Writer struct {
	store   EventStore
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	queue   []game.Mutation
	wake    chan struct{}
	pending sync.WaitGroup
	done    chan struct{}
	cancel  context.CancelFunc
}

var _ game.Sink = (*Writer)(nil)

// NewWriter creates a writer. Call Start before enqueueing.
func NewWriter(st EventStore, timeout time.Duration, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		store:   st,
		logger:  logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the write loop until Close.
func (w *Writer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Enqueue queues a mutation for writing.
func (w *Writer) Enqueue(m game.Mutation) {
	if m.Event != nil {
		ev := *m.Event
		m.Event = &ev
	}
	w.pending.Add(1)
	w.mu.Lock()
	w.queue = append(w.queue, m)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush waits until every mutation enqueued so far has been written.
func (w *Writer) Flush() {
	w.pending.Wait()
}

// Close writes what is still queued and stops the loop.
func (w *Writer) Close() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-w.wake:
			w.drain()
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, m := range batch {
			if err := w.write(m); err != nil {
				fields := []zap.Field{
					zap.String("game_id", m.Game.ID),
					zap.String("mutation", string(m.Kind)),
					zap.Error(err),
				}
				if m.Event != nil {
					fields = append(fields, zap.Int64("seq", m.Event.Seq))
				}
				w.logger.Error("failed to persist mutation", fields...)
			}
			w.pending.Done()
		}
	}
}

func (w *Writer) write(m game.Mutation) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.SaveGame(ctx, m.Game); err != nil {
		return err
	}
	switch m.Kind {
	case game.MutationEvent:
		return w.store.AppendEvent(ctx, *m.Event)
	case game.MutationUndo:
		return w.store.DeleteEvent(ctx, m.Game.ID, m.Event.ID)
	}
	return nil
}
