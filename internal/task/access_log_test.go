package task

import (
	"MedVault/model"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	entries []model.AccessLog
	err     error
}

func (w *captureWriter) Create(ctx context.Context, entries ...model.AccessLog) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, entries...)
	return nil
}

func TestAccessLogMessage_EncodeDecode(t *testing.T) {
	msg := NewAccessLogMessage([]model.AccessLog{{ShareLinkID: 3, RecordID: 4, IPAddress: "1.2.3.4"}})
	msg.Attempt = 2
	body, err := msg.Encode()
	require.NoError(t, err)

	got, err := DecodeAccessLogMessage(body)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempt)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, uint64(4), got.Entries[0].RecordID)

	_, err = DecodeAccessLogMessage([]byte("{not json"))
	assert.Error(t, err)
}

func TestProcessAccessLog(t *testing.T) {
	enqueued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := AccessLogMessage{
		EnqueuedAt: enqueued,
		Entries: []model.AccessLog{
			{ID: 99, ShareLinkID: 1, RecordID: 2},
			{ShareLinkID: 1, RecordID: 3, AccessorName: "Dr. Grey", AccessedAt: enqueued.Add(-time.Minute)},
		},
	}
	w := &captureWriter{}
	require.NoError(t, ProcessAccessLog(context.Background(), w, msg))

	require.Len(t, w.entries, 2)
	assert.Zero(t, w.entries[0].ID)
	assert.Equal(t, model.UnknownAccessor, w.entries[0].AccessorName)
	assert.Equal(t, enqueued, w.entries[0].AccessedAt)
	assert.Equal(t, "Dr. Grey", w.entries[1].AccessorName)
	assert.Equal(t, uint64(99), msg.Entries[0].ID, "message left untouched")
}

func TestProcessAccessLog_Errors(t *testing.T) {
	assert.ErrorIs(t, ProcessAccessLog(context.Background(), &captureWriter{}, AccessLogMessage{}), ErrEmptyBatch)

	boom := errors.New("db down")
	err := ProcessAccessLog(context.Background(), &captureWriter{err: boom}, AccessLogMessage{Entries: []model.AccessLog{{RecordID: 1}}})
	assert.ErrorIs(t, err, boom)
}
