package task

import (
	"MedVault/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyBatch marks a message that carries no entries. It is never retried.
var ErrEmptyBatch = errors.New("access log message has no entries")

// AccessLogMessage is the payload published for the worker.
type AccessLogMessage struct {
	Entries    []model.AccessLog `json:"entries"`
	Attempt    int               `json:"attempt"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

type AccessLogWriter interface {
	Create(ctx context.Context, entries ...model.AccessLog) error
}

func NewAccessLogMessage(entries []model.AccessLog) AccessLogMessage {
	return AccessLogMessage{Entries: entries, EnqueuedAt: time.Now().UTC()}
}

func (m AccessLogMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeAccessLogMessage(body []byte) (AccessLogMessage, error) {
	var msg AccessLogMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("decode access log message: %w", err)
	}
	return msg, nil
}

// ProcessAccessLog inserts the message's entries. Ids from the producer are dropped so
// a redelivered batch cannot collide with itself.
func ProcessAccessLog(ctx context.Context, writer AccessLogWriter, msg AccessLogMessage) error {
	if len(msg.Entries) == 0 {
		return ErrEmptyBatch
	}
	entries := make([]model.AccessLog, len(msg.Entries))
	for i, e := range msg.Entries {
		e.ID = 0
		if e.AccessorName == "" {
			e.AccessorName = model.UnknownAccessor
		}
		if e.AccessedAt.IsZero() {
			e.AccessedAt = msg.EnqueuedAt
		}
		entries[i] = e
	}
	return writer.Create(ctx, entries...)
}
