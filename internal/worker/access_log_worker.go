package worker

import (
	"MedVault/internal/metrics"
	"MedVault/internal/mq"
	"MedVault/internal/task"
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type dlqMessage struct {
	Message  task.AccessLogMessage `json:"message"`
	Error    string                `json:"error"`
	FailedAt time.Time             `json:"failed_at"`
}

// RetryPublisher parks failed batches on the retry queue or the dead letter queue.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type Options struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
}

// AccessLogWorker consumes access log batches and inserts them.
type AccessLogWorker struct {
	writer      task.AccessLogWriter
	publisher   RetryPublisher
	limiter     *rate.Limiter
	prefetch    int
	concurrency int
	retryMax    int
	retryDelays []time.Duration
	metrics     *metrics.Metrics
	log         *logrus.Logger
}

func NewAccessLogWorker(writer task.AccessLogWriter, publisher RetryPublisher, opts Options, m *metrics.Metrics, log *logrus.Logger) *AccessLogWorker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	var limiter *rate.Limiter
	if opts.Rate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, opts.Burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
	}
	return &AccessLogWorker{
		writer:      writer,
		publisher:   publisher,
		limiter:     limiter,
		prefetch:    opts.Prefetch,
		concurrency: opts.Concurrency,
		retryMax:    opts.RetryMax,
		retryDelays: opts.RetryDelays,
		metrics:     m,
		log:         log,
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (w *AccessLogWorker) Run(ctx context.Context, client *mq.Client) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(w.prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(mq.QueueAccessLog, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	return w.Consume(ctx, deliveries)
}

// Consume handles deliveries with at most Concurrency in flight.
func (w *AccessLogWorker) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	sem := make(chan struct{}, w.concurrency)
	for {
		select {
		case <-ctx.Done():
			w.drain(sem)
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				w.drain(sem)
				return errors.New("access log worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				w.Handle(ctx, d)
			}(delivery)
		}
	}
}

func (w *AccessLogWorker) drain(sem chan struct{}) {
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
}

// Handle processes one delivery and always settles it.
func (w *AccessLogWorker) Handle(ctx context.Context, delivery amqp.Delivery) {
	msg, err := task.DecodeAccessLogMessage(delivery.Body)
	if err != nil {
		w.log.WithError(err).Warn("access log worker: invalid message dropped")
		_ = delivery.Ack(false)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	procErr := task.ProcessAccessLog(ctx, w.writer, msg)
	if procErr == nil {
		w.metrics.AccessLogWrite("worker", true)
		_ = delivery.Ack(false)
		return
	}
	w.metrics.AccessLogWrite("worker", false)
	if errors.Is(procErr, context.Canceled) || errors.Is(procErr, context.DeadlineExceeded) {
		_ = delivery.Nack(false, true)
		return
	}

	if shouldRetry(procErr) {
		err = w.scheduleRetry(ctx, msg, procErr)
	} else {
		err = w.deadLetter(ctx, msg, procErr)
	}
	if err != nil {
		w.log.WithError(err).Error("access log worker: settle failed message failed")
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

func shouldRetry(err error) bool {
	return !errors.Is(err, task.ErrEmptyBatch)
}

func (w *AccessLogWorker) scheduleRetry(ctx context.Context, msg task.AccessLogMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.retryMax == 0 || nextAttempt > w.retryMax {
		return w.deadLetter(ctx, msg, procErr)
	}
	delay := pickRetryDelay(nextAttempt, w.retryDelays)
	w.log.WithError(procErr).WithFields(logrus.Fields{
		"attempt": nextAttempt,
		"delay":   delay.String(),
	}).Warn("access log worker: retrying batch")

	msg.Attempt = nextAttempt
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	return w.publisher.PublishRetry(ctx, body, delay)
}

func (w *AccessLogWorker) deadLetter(ctx context.Context, msg task.AccessLogMessage, procErr error) error {
	w.log.WithError(procErr).WithFields(logrus.Fields{
		"attempt": msg.Attempt,
		"entries": len(msg.Entries),
	}).Error("access log worker: batch dead-lettered")

	body, err := json.Marshal(dlqMessage{
		Message:  msg,
		Error:    procErr.Error(),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := w.publisher.PublishDLQ(ctx, body); err != nil {
		w.log.WithError(err).Error("access log worker: dlq publish failed")
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
