package main

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := since.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*)")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("confirmed", 8).
			AddRow("reverted", 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sender,")).
		WithArgs(since, 5).
		WillReturnRows(sqlmock.NewRows([]string{"sender", "total", "confirmed", "last_seen"}).
			AddRow("0xaa", 7, 6, seen))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(tx_hash, '')")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"tx_hash", "sender", "status", "error", "created_at"}).
			AddRow("0x01", "0xaa", "reverted", "", seen))

	report, err := collect(db, since, 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(10), report.total())
	require.Len(t, report.Senders, 1)
	assert.Equal(t, int64(6), report.Senders[0].Confirmed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "reverted", report.Failures[0].Status)

	var out bytes.Buffer
	report.render(&out, 24)
	assert.Contains(t, out.String(), "Relays in the last 24h")
	assert.Contains(t, out.String(), "80.0%")
	assert.Contains(t, out.String(), "Recent failures")
}

func TestCollect_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT status").WillReturnError(errors.New("relation does not exist"))
	_, err = collect(db, time.Now(), 10)
	assert.ErrorContains(t, err, "status counts")
}

func TestRender_NoFailures(t *testing.T) {
	var out bytes.Buffer
	(&statsReport{}).render(&out, 1)
	assert.Contains(t, out.String(), "No failed relays")
}
