package accesslog

import (
	"MedVault/internal/metrics"
	"MedVault/internal/task"
	"MedVault/model"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 10 * time.Second

// Sink persists a batch of access log entries.
type Sink interface {
	Name() string
	Write(ctx context.Context, entries []model.AccessLog) error
}

// Logger records share accesses in the background. Callers never wait for it and never
// see its errors; failures only reach the diagnostic log and the metrics.
type Logger struct {
	sink    Sink
	timeout time.Duration
	metrics *metrics.Metrics
	log     *logrus.Logger
	wg      sync.WaitGroup
}

func New(sink Sink, timeout time.Duration, m *metrics.Metrics, log *logrus.Logger) *Logger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{sink: sink, timeout: timeout, metrics: m, log: log}
}

// Record hands the batch to a goroutine with its own context, detached from the request.
func (l *Logger) Record(entries []model.AccessLog) {
	if len(entries) == 0 {
		return
	}
	batch := make([]model.AccessLog, len(entries))
	copy(batch, entries)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := l.sink.Write(ctx, batch); err != nil {
			l.metrics.AccessLogWrite(l.sink.Name(), false)
			l.log.WithError(err).WithFields(logrus.Fields{
				"sink":          l.sink.Name(),
				"share_link_id": batch[0].ShareLinkID,
				"entries":       len(batch),
			}).Error("record access log failed")
			return
		}
		l.metrics.AccessLogWrite(l.sink.Name(), true)
	}()
}

// Wait blocks until every pending write has finished. Used on shutdown.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// DBSink inserts rows directly.
type DBSink struct {
	writer task.AccessLogWriter
}

func NewDBSink(writer task.AccessLogWriter) *DBSink {
	return &DBSink{writer: writer}
}

func (s *DBSink) Name() string { return "db" }

func (s *DBSink) Write(ctx context.Context, entries []model.AccessLog) error {
	return s.writer.Create(ctx, entries...)
}

type Publisher interface {
	PublishAccessLog(ctx context.Context, body []byte) error
}

// QueueSink publishes the batch for the access log worker.
type QueueSink struct {
	publisher Publisher
}

func NewQueueSink(publisher Publisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

func (s *QueueSink) Name() string { return "queue" }

func (s *QueueSink) Write(ctx context.Context, entries []model.AccessLog) error {
	body, err := task.NewAccessLogMessage(entries).Encode()
	if err != nil {
		return err
	}
	return s.publisher.PublishAccessLog(ctx, body)
}
