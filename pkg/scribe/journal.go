package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/metrics"
)

// Journal appends finished conversations to a daily JSONL file, one line per
// exchange. Files are named conversations_YYYY-MM-DD.jsonl and roll over on
// the first write of a new day.
type Journal struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	day  string
	file *os.File
	obs  metrics.Observer
}

var _ Sink = (*Journal)(nil)

func NewJournal(dir string, log *slog.Logger) *Journal {
	if dir == "" {
		dir = "logs"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{dir: dir, log: log}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) StoreSession(_ context.Context, rec SessionRecord) error {
	at := rec.EndedAt
	if at.IsZero() {
		at = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.rotate(at); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonScribeStore)
	}
	for _, ev := range rec.events() {
		j.obs.RecordEvent(ev)
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.obs = nil
	return err
}

// Path returns the file currently being written, or empty before the first
// record.
func (j *Journal) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.day == "" {
		return ""
	}
	return j.path(j.day)
}

func (j *Journal) rotate(at time.Time) error {
	day := at.Format("2006-01-02")
	if day == j.day && j.file != nil {
		return nil
	}
	if j.file != nil {
		_ = j.file.Close()
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal file: %w", err)
	}
	j.day = day
	j.file = f
	j.obs = metrics.NewJSONLObserver(f)
	j.log.Info("journal_opened", "path", j.path(day))
	return nil
}

func (j *Journal) path(day string) string {
	return filepath.Join(j.dir, "conversations_"+day+".jsonl")
}
