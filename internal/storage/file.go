package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default file names, relative to the FileStore directory.
const (
	WatermarkFileName = "largest_prime.txt"
	LedgerFileName    = "divisors_found.txt"
)

// corruptSuffix is inserted before the timestamp when a corrupt artifact is
// moved aside ahead of its first rewrite.
const corruptSuffix = ".corrupt-"

// FileStore persists the watermark as a plain decimal number and the ledger
// as a JSON list of objects. Every save rewrites the whole file through a
// temporary file and rename, so readers never observe a partial write.
//
// An artifact that failed to load as corrupt is renamed to
// <name>.corrupt-<timestamp> before the first save replaces it.
type FileStore struct {
	watermarkPath    string
	ledgerPath       string
	retry            retryConfig
	mu               sync.Mutex
	watermarkCorrupt bool
	ledgerCorrupt    bool
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		watermarkPath: filepath.Join(dir, WatermarkFileName),
		ledgerPath:    filepath.Join(dir, LedgerFileName),
		retry:         defaultRetryConfig,
	}, nil
}

// LoadWatermark reads the watermark file. A missing file is initialized to
// InitialWatermark and written back immediately.
func (f *FileStore) LoadWatermark() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.watermarkPath)
	if errors.Is(err, fs.ErrNotExist) {
		if err := f.writeWatermark(InitialWatermark); err != nil {
			return InitialWatermark, fmt.Errorf("initialize watermark: %w", err)
		}
		return InitialWatermark, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}

	text := strings.TrimSpace(string(data))
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f.watermarkCorrupt = true
		return 0, fmt.Errorf("%w: watermark %q in %s is not an integer", ErrCorrupt, text, f.watermarkPath)
	}
	if v < InitialWatermark {
		f.watermarkCorrupt = true
		return 0, fmt.Errorf("%w: watermark %d in %s is below %d", ErrCorrupt, v, f.watermarkPath, InitialWatermark)
	}
	f.watermarkCorrupt = false
	return v, nil
}

// SaveWatermark rewrites the watermark file.
func (f *FileStore) SaveWatermark(value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writeWatermark(value)
}

func (f *FileStore) writeWatermark(value int64) error {
	if f.watermarkCorrupt {
		if err := moveAside(f.watermarkPath); err != nil {
			return err
		}
		f.watermarkCorrupt = false
	}
	data := []byte(strconv.FormatInt(value, 10))
	return retryOp(f.retry, func() error {
		return writeFileAtomic(f.watermarkPath, data)
	})
}

// LoadLedger reads the ledger file. A missing or empty file yields an empty
// ledger.
func (f *FileStore) LoadLedger() ([]DivisorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.ledgerPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []DivisorRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []DivisorRecord{}, nil
	}

	var records []DivisorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		f.ledgerCorrupt = true
		return nil, fmt.Errorf("%w: ledger %s: %v", ErrCorrupt, f.ledgerPath, err)
	}
	f.ledgerCorrupt = false
	if records == nil {
		records = []DivisorRecord{}
	}
	return records, nil
}

// SaveLedger rewrites the ledger file with records.
func (f *FileStore) SaveLedger(records []DivisorRecord) error {
	if records == nil {
		records = []DivisorRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ledgerCorrupt {
		if err := moveAside(f.ledgerPath); err != nil {
			return err
		}
		f.ledgerCorrupt = false
	}
	return retryOp(f.retry, func() error {
		return writeFileAtomic(f.ledgerPath, data)
	})
}

// Close is a no-op; files are closed after every write.
func (f *FileStore) Close() error { return nil }

// moveAside renames path to path.corrupt-<timestamp>. A file that is already
// gone is not an error.
func moveAside(path string) error {
	dst := path + corruptSuffix + time.Now().UTC().Format("20060102T150405.000000000")
	if err := os.Rename(path, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("preserve corrupt %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
