package main

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type statusCount struct {
	Status string
	Count  int64
}

type senderCount struct {
	Sender    string
	Total     int64
	Confirmed int64
	LastSeen  time.Time
}

type failure struct {
	TxHash    string
	Sender    string
	Status    string
	Error     string
	CreatedAt time.Time
}

type statsReport struct {
	Statuses []statusCount
	Senders  []senderCount
	Failures []failure
}

const (
	statusQuery = `
		SELECT status, COUNT(*)
		FROM relay_transactions
		WHERE created_at >= $1
		GROUP BY status
		ORDER BY COUNT(*) DESC`

	senderQuery = `
		SELECT sender,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			MAX(created_at) AS last_seen
		FROM relay_transactions
		WHERE created_at >= $1
		GROUP BY sender
		ORDER BY total DESC
		LIMIT $2`

	failureQuery = `
		SELECT COALESCE(tx_hash, ''), sender, status, COALESCE(error, ''), created_at
		FROM relay_transactions
		WHERE created_at >= $1
		AND status IN ('reverted', 'failed', 'unknown')
		ORDER BY created_at DESC
		LIMIT 20`
)

func collect(db *sql.DB, since time.Time, top int) (*statsReport, error) {
	report := &statsReport{}

	rows, err := db.Query(statusQuery, since)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	for rows.Next() {
		var sc statusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		report.Statuses = append(report.Statuses, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(senderQuery, since, top)
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	for rows.Next() {
		var s senderCount
		if err := rows.Scan(&s.Sender, &s.Total, &s.Confirmed, &s.LastSeen); err != nil {
			rows.Close()
			return nil, err
		}
		report.Senders = append(report.Senders, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(failureQuery, since)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f failure
		if err := rows.Scan(&f.TxHash, &f.Sender, &f.Status, &f.Error, &f.CreatedAt); err != nil {
			return nil, err
		}
		report.Failures = append(report.Failures, f)
	}
	return report, rows.Err()
}

func (r *statsReport) total() int64 {
	var n int64
	for _, s := range r.Statuses {
		n += s.Count
	}
	return n
}

func (r *statsReport) render(w io.Writer, hours int) {
	total := r.total()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("Relays in the last %dh", hours))
	t.AppendHeader(table.Row{"Status", "Count", "Share"})
	for _, s := range r.Statuses {
		share := 0.0
		if total > 0 {
			share = float64(s.Count) * 100 / float64(total)
		}
		t.AppendRow(table.Row{s.Status, s.Count, fmt.Sprintf("%.1f%%", share)})
	}
	t.AppendFooter(table.Row{"total", total, ""})
	t.Render()

	if len(r.Senders) > 0 {
		t = table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Top senders")
		t.AppendHeader(table.Row{"Sender", "Total", "Confirmed", "Last seen"})
		for _, s := range r.Senders {
			t.AppendRow(table.Row{s.Sender, s.Total, s.Confirmed, s.LastSeen.UTC().Format(time.RFC3339)})
		}
		t.Render()
	}

	if len(r.Failures) == 0 {
		fmt.Fprintln(w, "✅ No failed relays")
		return
	}
	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Recent failures")
	t.AppendHeader(table.Row{"Time", "Sender", "Status", "Tx", "Error"})
	for _, f := range r.Failures {
		t.AppendRow(table.Row{f.CreatedAt.UTC().Format(time.RFC3339), f.Sender, f.Status, f.TxHash, f.Error})
	}
	t.Render()
}
