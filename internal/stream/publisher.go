// Package stream fans committed and undone events out to Redis streams and
// caches the latest box score of each game.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

// Client is the subset of the go-redis API the publisher uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ErrNoBoxScore is returned when no box score is cached for a game.
var ErrNoBoxScore = errors.New("no cached box score")

// Options configures a Publisher.
type Options struct {
	StreamPrefix string
	MaxLen       int64
	BoxScoreTTL  time.Duration
	QueueSize    int
	Timeout      time.Duration
}

// BoxScore is the cached presentation of a game's ledger.
type BoxScore struct {
	Game      game.GameInfo       `json:"game"`
	Ledger    game.LedgerSnapshot `json:"ledger"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type job struct {
	notification *game.Notification
	boxScore     *BoxScore
}

// Publisher writes to Redis on its own goroutine. Publishing is best effort:
// when the queue is full the update is dropped and logged.
type Publisher struct {
	client Client
	opts   Options
	logger *zap.Logger
	jobs   chan job
	done   chan struct{}
}

// NewPublisher creates a publisher. Call Run to start writing.
func NewPublisher(client Client, opts Options, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StreamPrefix == "" {
		opts.StreamPrefix = "scorekeeper.games"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BoxScoreTTL <= 0 {
		opts.BoxScoreTTL = 6 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Publisher{
		client: client,
		opts:   opts,
		logger: logger,
		jobs:   make(chan job, opts.QueueSize),
		done:   make(chan struct{}),
	}
}

// StreamKey returns the stream a game's events are appended to.
func (p *Publisher) StreamKey(gameID string) string {
	return fmt.Sprintf("%s.%s", p.opts.StreamPrefix, gameID)
}

// BoxScoreKey returns the cache key of a game's box score.
func (p *Publisher) BoxScoreKey(gameID string) string {
	return fmt.Sprintf("game:%s:boxscore", gameID)
}

// Notify is a game.Listener that queues committed and undone events.
func (p *Publisher) Notify(n game.Notification) {
	if n.Type != game.NotifyCommitted && n.Type != game.NotifyUndone {
		return
	}
	if n.Event != nil {
		ev := *n.Event
		n.Event = &ev
	}
	p.enqueue(job{notification: &n})
}

// CacheBoxScore queues a box score write.
func (p *Publisher) CacheBoxScore(info game.GameInfo, snap game.LedgerSnapshot) {
	p.enqueue(job{boxScore: &BoxScore{Game: info, Ledger: snap, UpdatedAt: time.Now().UTC()}})
}

func (p *Publisher) enqueue(j job) {
	select {
	case p.jobs <- j:
	default:
		p.logger.Warn("stream queue full, dropping update")
	}
}

// Run writes queued updates until ctx is cancelled, then writes what is left.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case j := <-p.jobs:
					p.handle(j)
				default:
					return
				}
			}
		case j := <-p.jobs:
			p.handle(j)
		}
	}
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() {
	<-p.done
}

func (p *Publisher) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	var err error
	gameID := ""
	switch {
	case j.notification != nil:
		gameID = j.notification.GameID
		err = p.publishEvent(ctx, *j.notification)
	case j.boxScore != nil:
		gameID = j.boxScore.Game.ID
		err = p.writeBoxScore(ctx, *j.boxScore)
	}
	if err != nil {
		p.logger.Warn("failed to publish to redis", zap.String("game_id", gameID), zap.Error(err))
	}
}

func (p *Publisher) publishEvent(ctx context.Context, n game.Notification) error {
	if n.Event == nil {
		return nil
	}
	data, err := json.Marshal(n.Event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.StreamKey(n.GameID),
		Values: map[string]interface{}{
			"type":    string(n.Type),
			"game_id": n.GameID,
			"seq":     n.Event.Seq,
			"kind":    string(n.Event.Kind()),
			"data":    string(data),
		},
	}
	if p.opts.MaxLen > 0 {
		args.MaxLen = p.opts.MaxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

func (p *Publisher) writeBoxScore(ctx context.Context, b BoxScore) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling box score: %w", err)
	}
	return p.client.Set(ctx, p.BoxScoreKey(b.Game.ID), data, p.opts.BoxScoreTTL).Err()
}

// BoxScore reads the cached box score of a game.
func (p *Publisher) BoxScore(ctx context.Context, gameID string) (BoxScore, error) {
	data, err := p.client.Get(ctx, p.BoxScoreKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BoxScore{}, fmt.Errorf("%w: %s", ErrNoBoxScore, gameID)
	}
	if err != nil {
		return BoxScore{}, err
	}
	var b BoxScore
	if err := json.Unmarshal(data, &b); err != nil {
		return BoxScore{}, fmt.Errorf("unmarshaling box score: %w", err)
	}
	return b, nil
}
