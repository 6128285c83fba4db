package errsink

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twscraper/pkg/logger"
)

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	assert.Equal(t, int64(1), sink.RecordError(ctx, "UserMedia", "HTTP 500"))
	assert.Equal(t, int64(2), sink.RecordError(ctx, "download", "timeout"))

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "download", records[1].Origin)
}

func TestLogSink(t *testing.T) {
	log := logger.NewTestLogger()
	id := NewLogSink(log).RecordError(context.Background(), "sync", "boom")

	assert.Zero(t, id)
	assert.True(t, log.HasMessage("Recorded error"))
}

func TestPostgresSink(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO error_record").
		WithArgs("UserMedia", "HTTP 500").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(17)))
	mock.ExpectQuery("INSERT INTO error_record").
		WithArgs("sync", "boom").
		WillReturnError(errors.New("connection refused"))

	log := logger.NewTestLogger()
	sink := NewPostgresSink(mock, log)
	ctx := context.Background()

	assert.Equal(t, int64(17), sink.RecordError(ctx, "UserMedia", "HTTP 500"))
	assert.Zero(t, sink.RecordError(ctx, "sync", "boom"), "failures never raise")
	assert.True(t, log.HasMessage("Failed to store error record"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiReturnsFirstID(t *testing.T) {
	mem := NewMemorySink()
	multi := Multi{NewLogSink(nil), mem}

	id := multi.RecordError(context.Background(), "sync", "boom")
	assert.Equal(t, int64(1), id)
	assert.Len(t, mem.Records(), 1)
}
