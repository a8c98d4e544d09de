package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists coordinator state in a SQLite database in WAL mode.
// The ledger table is only ever appended to. When a caller saves a ledger
// shorter than what is stored, or the stored ledger failed to load as
// corrupt, the existing rows are moved to divisors_archive before the table
// is rewritten; no ledger row is ever deleted outright.
type SQLiteStore struct {
	db            *sql.DB
	retry         retryConfig
	mu            sync.Mutex
	ledgerCorrupt bool
}

// NewSQLiteStore opens (or creates) the database at path and initializes the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db, retry: sqliteRetryConfig}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS watermark (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS divisors (
		seq       INTEGER PRIMARY KEY,
		divisor   TEXT NOT NULL,
		found_by  TEXT NOT NULL,
		found_at  TEXT NOT NULL,
		origin    TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS divisors_archive (
		seq         INTEGER NOT NULL,
		divisor     TEXT NOT NULL,
		found_by    TEXT NOT NULL,
		found_at    TEXT NOT NULL,
		origin      TEXT NOT NULL DEFAULT '',
		archived_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// LoadWatermark returns the stored watermark, inserting InitialWatermark if
// the row does not exist yet. Query failures are retried and returned as
// plain errors; only a value that cannot be decoded, or one below
// InitialWatermark, wraps ErrCorrupt.
func (s *SQLiteStore) LoadWatermark() (int64, error) {
	var (
		v       int64
		found   bool
		scanErr error
	)
	err := retryOp(s.retry, func() error {
		rows, err := s.db.Query(`SELECT value FROM watermark WHERE id = 1`)
		if err != nil {
			return err
		}
		defer rows.Close()

		found, scanErr = false, nil
		if rows.Next() {
			found = true
			scanErr = rows.Scan(&v)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	if !found {
		if err := s.SaveWatermark(InitialWatermark); err != nil {
			return InitialWatermark, fmt.Errorf("initialize watermark: %w", err)
		}
		return InitialWatermark, nil
	}
	if scanErr != nil {
		return 0, fmt.Errorf("%w: decode watermark: %v", ErrCorrupt, scanErr)
	}
	if v < InitialWatermark {
		return 0, fmt.Errorf("%w: watermark %d is below %d", ErrCorrupt, v, InitialWatermark)
	}
	return v, nil
}

// SaveWatermark upserts the watermark row.
func (s *SQLiteStore) SaveWatermark(value int64) error {
	return retryOp(s.retry, func() error {
		_, err := s.db.Exec(
			`INSERT INTO watermark (id, value) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET value = excluded.value`,
			value,
		)
		return err
	})
}

// LoadLedger returns all divisor records ordered by insertion. A row that
// cannot be decoded rejects the whole ledger with ErrCorrupt and marks the
// stored rows for archiving on the next save.
func (s *SQLiteStore) LoadLedger() ([]DivisorRecord, error) {
	records, err := s.readLedger()
	if err != nil && errors.Is(err, ErrCorrupt) {
		s.mu.Lock()
		s.ledgerCorrupt = true
		s.mu.Unlock()
	}
	return records, err
}

func (s *SQLiteStore) readLedger() ([]DivisorRecord, error) {
	rows, err := s.db.Query(
		`SELECT divisor, found_by, found_at, origin FROM divisors ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	records := []DivisorRecord{}
	for rows.Next() {
		var (
			rec              DivisorRecord
			divisor, foundAt string
		)
		if err := rows.Scan(&divisor, &rec.FoundBy, &foundAt, &rec.Origin); err != nil {
			return nil, fmt.Errorf("%w: scan ledger row: %v", ErrCorrupt, err)
		}
		if rec.Divisor, err = ParseDivisor(divisor); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, foundAt); err != nil {
			return nil, fmt.Errorf("%w: parse found_at for divisor %s: %v", ErrCorrupt, divisor, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveLedger persists records. Rows already stored are kept and only the
// tail beyond the stored count is inserted, all within one transaction.
func (s *SQLiteStore) SaveLedger(records []DivisorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := retryOp(s.retry, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var stored int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM divisors`).Scan(&stored); err != nil {
			return err
		}
		if stored > 0 && (s.ledgerCorrupt || stored > len(records)) {
			if err := archiveLedger(tx); err != nil {
				return err
			}
			stored = 0
		}

		stmt, err := tx.Prepare(
			`INSERT INTO divisors (seq, divisor, found_by, found_at, origin) VALUES (?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := stored; i < len(records); i++ {
			rec := records[i]
			if _, err := stmt.Exec(
				i+1, rec.Divisor.String(), rec.FoundBy,
				rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Origin,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err == nil {
		s.ledgerCorrupt = false
	}
	return err
}

// archiveLedger moves every ledger row into divisors_archive.
func archiveLedger(tx *sql.Tx) error {
	if _, err := tx.Exec(
		`INSERT INTO divisors_archive (seq, divisor, found_by, found_at, origin, archived_at)
		 SELECT seq, divisor, found_by, found_at, origin, ? FROM divisors`,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("archive ledger: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM divisors`); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
