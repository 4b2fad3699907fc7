package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imagebot/internal/infra"
	"imagebot/internal/queue"
)

type processor interface {
	Process(ctx context.Context, taskID int64) (Outcome, error)
}

// Config tunes the consumer loop.
type Config struct {
	Concurrency int
	// ErrorDelay is the redelivery delay after a store error.
	ErrorDelay time.Duration
	// IdleBackoff is the pause after a failed dequeue.
	IdleBackoff time.Duration
}

// Dispatcher pulls task ids from the queue and feeds them to the processor.
type Dispatcher struct {
	queue     queue.Queue
	processor processor
	cfg       Config
	metrics   *Metrics
	logger    *infra.Logger
}

// New wires a dispatcher. metrics and logger may be nil.
func New(q queue.Queue, p processor, cfg Config, metrics *Metrics, logger *infra.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = 10 * time.Second
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = time.Second
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Dispatcher{queue: q, processor: p, cfg: cfg, metrics: metrics, logger: logger}
}

// Run blocks until ctx is cancelled. In-flight deliveries are finished
// before it returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("concurrency", d.cfg.Concurrency).Msg("dispatcher started")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			d.loop(gctx, worker)
			return nil
		})
	}
	err := g.Wait()
	d.logger.Info().Msg("dispatcher stopped")
	return err
}

func (d *Dispatcher) loop(ctx context.Context, worker int) {
	log := d.logger.With().Int("worker", worker).Logger()
	for ctx.Err() == nil {
		delivery, err := d.queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("dequeue failed")
			sleep(ctx, d.cfg.IdleBackoff)
			continue
		}
		d.Handle(ctx, delivery)
	}
}

// Handle processes one delivery and acts on the outcome: requeue when
// asked, then ack.
func (d *Dispatcher) Handle(ctx context.Context, delivery *queue.Delivery) Outcome {
	d.metrics.track(1)
	defer d.metrics.track(-1)

	start := time.Now()
	out, err := d.processor.Process(ctx, delivery.TaskID)
	if err != nil {
		d.logger.Error().Err(err).Int64("task_id", delivery.TaskID).Msg("process failed, scheduling redelivery")
		if out.Kind != OutcomeFailed {
			out = Requeue(d.cfg.ErrorDelay)
		}
	}

	bg := context.WithoutCancel(ctx)
	if out.Kind == OutcomeRequeue {
		if err := d.queue.Enqueue(bg, delivery.TaskID, out.Delay); err != nil {
			// Leave the delivery unacked so Recover hands it back.
			d.logger.Error().Err(err).Int64("task_id", delivery.TaskID).Msg("requeue failed")
			d.metrics.observe(out, time.Since(start))
			return out
		}
	}
	if err := d.queue.Ack(bg, delivery); err != nil {
		d.logger.Warn().Err(err).Int64("task_id", delivery.TaskID).Msg("ack failed")
	}
	d.metrics.observe(out, time.Since(start))
	d.logger.Debug().
		Int64("task_id", delivery.TaskID).
		Str("outcome", out.Kind.String()).
		Dur("took", time.Since(start)).
		Msg("delivery handled")
	return out
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
