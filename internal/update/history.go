package update

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat has fixed width so started_at sorts as text.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z"
)

// HistoryEntry is one persisted update request.
type HistoryEntry struct {
	ID             string    `json:"id"`
	Target         Target    `json:"target"`
	Local          bool      `json:"local"`
	Outcome        string    `json:"outcome"`
	FailureKind    string    `json:"failure_kind,omitempty"`
	PayloadVersion string    `json:"payload_version,omitempty"`
	PayloadSize    int       `json:"payload_size"`
	DeviceVersion  string    `json:"device_version,omitempty"`
	Verified       *bool     `json:"verified,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// EntryFromResult converts a terminal Result to its persisted form.
func EntryFromResult(res Result) HistoryEntry {
	entry := HistoryEntry{
		ID:             res.RequestID,
		Target:         res.Target,
		Local:          res.Local,
		Outcome:        res.Outcome.String(),
		PayloadVersion: res.PayloadVersion,
		PayloadSize:    res.PayloadSize,
		DeviceVersion:  res.DeviceVersion,
		Verified:       res.Verified,
		Error:          res.ErrorMessage(),
		StartedAt:      res.StartedAt.UTC(),
		FinishedAt:     res.FinishedAt.UTC(),
	}
	if res.Outcome == OutcomeFailed {
		entry.FailureKind = res.Kind.String()
	}
	return entry
}

// HistoryRepository persists finished update requests.
type HistoryRepository interface {
	// Record stores one entry. Entry IDs are unique.
	Record(ctx context.Context, entry HistoryEntry) error

	// List returns recent entries, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - limit: Maximum entries to return (default 50, max 200)
	List(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// update_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository on an open, migrated
// database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts entry.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, entry HistoryEntry) error {
	if entry.ID == "" {
		return errors.New("history entry id is required")
	}

	var verified sql.NullInt64
	if entry.Verified != nil {
		verified.Valid = true
		if *entry.Verified {
			verified.Int64 = 1
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO update_history
		 (id, kind, local, outcome, failure_kind, payload_version, payload_size,
		  device_version, verified, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Target),
		boolToInt(entry.Local),
		entry.Outcome,
		nullString(entry.FailureKind),
		nullString(entry.PayloadVersion),
		entry.PayloadSize,
		nullString(entry.DeviceVersion),
		verified,
		nullString(entry.Error),
		entry.StartedAt.UTC().Format(historyTimeFormat),
		entry.FinishedAt.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting update history: %w", err)
	}
	return nil
}

// List returns recent entries ordered by started_at DESC.
func (r *SQLiteHistoryRepository) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, local, outcome, failure_kind, payload_version, payload_size,
		        device_version, verified, error, started_at, finished_at
		 FROM update_history
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying update history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry                                   HistoryEntry
			kind                                    string
			local                                   int64
			failureKind, payloadVersion, devVersion sql.NullString
			verified                                sql.NullInt64
			errText                                 sql.NullString
			startedAt, finishedAt                   string
		)
		if err := rows.Scan(&entry.ID, &kind, &local, &entry.Outcome, &failureKind, &payloadVersion,
			&entry.PayloadSize, &devVersion, &verified, &errText, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning update history: %w", err)
		}

		entry.Target = Target(kind)
		entry.Local = local != 0
		entry.FailureKind = failureKind.String
		entry.PayloadVersion = payloadVersion.String
		entry.DeviceVersion = devVersion.String
		entry.Error = errText.String
		if verified.Valid {
			v := verified.Int64 != 0
			entry.Verified = &v
		}
		if entry.StartedAt, err = parseHistoryTimestamp(startedAt); err != nil {
			return nil, err
		}
		if entry.FinishedAt, err = parseHistoryTimestamp(finishedAt); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update history: %w", err)
	}
	return entries, nil
}

func parseHistoryTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(historyTimeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing history timestamp: %w", err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
