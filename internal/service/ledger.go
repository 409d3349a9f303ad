package service

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"topowatch/internal/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

var ledgerHeader = []string{
	"Timestamp", "Alert Type", "Network",
	"Affected Device Type", "Affected Device Name", "Affected Device Serial",
	"Impacted Camera Name(s)", "Impacted Camera Serial(s)",
	"Upstream Switch Serial", "Upstream Switch Name", "Upstream Switch Port",
	"API Error", "Switch Port Errors", "Switch Port Warnings",
	"Occurrences",
}

// Ledger records incidents into one CSV file per ISO calendar week. Rows are
// deduplicated by the record key: a repeat observation increments the
// existing row's occurrence count and refreshes its timestamp instead of
// appending. The active partition is indexed in memory, so a new key is a
// single append; only a merge rewrites the file.
type Ledger struct {
	dir string

	mu     sync.Mutex
	period string
	rows   []*domain.IncidentRecord
	index  map[string]int
}

// NewLedger creates a ledger writing into dir. The directory is created on
// first use.
func NewLedger(dir string) *Ledger {
	return &Ledger{dir: dir}
}

// Record merges rec into the partition its timestamp falls in.
func (l *Ledger) Record(rec *domain.IncidentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	period := partitionName(rec.Timestamp)
	if period != l.period {
		if err := l.loadPartition(period); err != nil {
			return err
		}
	}

	key := rec.Key()
	if at, seen := l.index[key]; seen {
		existing := l.rows[at]
		existing.Occurrences++
		existing.Timestamp = rec.Timestamp
		return l.rewrite()
	}

	rec.Occurrences = 1
	l.rows = append(l.rows, rec)
	l.index[key] = len(l.rows) - 1
	return l.appendRow(rec)
}

func partitionName(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("incidents-%d-W%02d.csv", year, week)
}

func (l *Ledger) path() string {
	return filepath.Join(l.dir, l.period)
}

// loadPartition reads an existing partition file into the in-memory index,
// so occurrence merges survive a restart.
func (l *Ledger) loadPartition(period string) error {
	l.period = period
	l.rows = nil
	l.index = make(map[string]int)

	f, err := os.Open(l.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ledger %s: %w", l.period, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read ledger %s: %w", l.period, err)
	}
	for n, row := range records {
		if n == 0 {
			continue // header
		}
		rec, err := decodeRow(row)
		if err != nil {
			return fmt.Errorf("ledger %s row %d: %w", l.period, n+1, err)
		}
		l.rows = append(l.rows, rec)
		l.index[rec.Key()] = len(l.rows) - 1
	}
	return nil
}

func (l *Ledger) appendRow(rec *domain.IncidentRecord) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	_, statErr := os.Stat(l.path())
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", l.period, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(ledgerHeader); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	if err := w.Write(encodeRow(rec)); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// rewrite replaces the whole partition file, keeping one row per key.
func (l *Ledger) rewrite() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp := l.path() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create ledger %s: %w", l.period, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(ledgerHeader); err != nil {
		f.Close()
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, rec := range l.rows {
		if err := w.Write(encodeRow(rec)); err != nil {
			f.Close()
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path())
}

func encodeRow(rec *domain.IncidentRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(timestampLayout),
		string(rec.AlertType),
		rec.Network,
		rec.DeviceType,
		rec.DeviceName,
		rec.DeviceSerial,
		joinOrNA(rec.ImpactedNames),
		joinOrNA(rec.ImpactedSerials),
		rec.UpstreamSerial,
		rec.UpstreamName,
		rec.UpstreamPort,
		rec.APIError,
		strings.Join(rec.PortErrors, "; "),
		strings.Join(rec.PortWarnings, "; "),
		strconv.Itoa(rec.Occurrences),
	}
}

func decodeRow(row []string) (*domain.IncidentRecord, error) {
	if len(row) != len(ledgerHeader) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(ledgerHeader), len(row))
	}
	ts, err := time.ParseInLocation(timestampLayout, row[0], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	count, err := strconv.Atoi(row[14])
	if err != nil {
		return nil, fmt.Errorf("parse occurrences: %w", err)
	}
	return &domain.IncidentRecord{
		Timestamp:       ts,
		AlertType:       domain.AlertType(row[1]),
		Network:         row[2],
		DeviceType:      row[3],
		DeviceName:      row[4],
		DeviceSerial:    row[5],
		ImpactedNames:   splitOrNil(row[6]),
		ImpactedSerials: splitOrNil(row[7]),
		UpstreamSerial:  row[8],
		UpstreamName:    row[9],
		UpstreamPort:    row[10],
		APIError:        row[11],
		PortErrors:      splitPlain(row[12]),
		PortWarnings:    splitPlain(row[13]),
		Occurrences:     count,
	}, nil
}

func joinOrNA(values []string) string {
	if len(values) == 0 {
		return "N/A"
	}
	return strings.Join(values, "; ")
}

func splitOrNil(s string) []string {
	if s == "" || s == "N/A" {
		return nil
	}
	return strings.Split(s, "; ")
}

func splitPlain(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "; ")
}
