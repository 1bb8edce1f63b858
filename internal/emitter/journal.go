// ===================================
// File: internal/emitter/journal.go
// ===================================
package emitter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

const (
	journalMaxSize    = 10 * 1024 * 1024
	journalMaxRotated = 3
	journalFileMode   = 0644
	journalDateLayout = "2006-01-02"
)

// JournalRecord is the one-line-per-event local journal format.
type JournalRecord struct {
	Token             string  `json:"token"`
	DEX               string  `json:"dex"`
	PoolAddress       string  `json:"poolAddress"`
	Type              string  `json:"type"`
	Timestamp         string  `json:"timestamp"`
	Slot              uint64  `json:"slot"`
	TokenName         string  `json:"tokenName,omitempty"`
	TokenSymbol       string  `json:"tokenSymbol,omitempty"`
	LiquiditySOL      float64 `json:"liquiditySol,omitempty"`
	TokenSupply       uint64  `json:"tokenSupply,omitempty"`
	RealSOLReserves   uint64  `json:"realSolReserves,omitempty"`
	RealTokenReserves uint64  `json:"realTokenReserves,omitempty"`
	Complete          bool    `json:"complete,omitempty"`
	GraduatedFrom     string  `json:"graduatedFrom,omitempty"`
	BondingCurveTime  uint64  `json:"bondingCurveTime,omitempty"`
}

// recordFor flattens a pool event into its journal line.
func recordFor(event types.PoolEvent) JournalRecord {
	snap := event.Snapshot
	return JournalRecord{
		Token:             snap.BaseMint.String(),
		DEX:               string(snap.DEX),
		PoolAddress:       snap.PoolAddress.String(),
		Type:              string(event.Kind),
		Timestamp:         snap.ObservedAt.UTC().Format(time.RFC3339),
		Slot:              snap.Slot,
		TokenName:         event.TokenName,
		TokenSymbol:       event.TokenSymbol,
		LiquiditySOL:      snap.Enriched.LiquiditySOL,
		TokenSupply:       snap.Enriched.TokenSupply,
		RealSOLReserves:   snap.Enriched.RealSOLReserves,
		RealTokenReserves: snap.Enriched.RealTokenReserves,
		Complete:          snap.Enriched.Complete,
		GraduatedFrom:     string(event.GraduatedFrom),
		BondingCurveTime:  event.BondingCurveDuration,
	}
}

// Journal is the append-only JSONL event log with size-based
// rotation: above 10 MiB the file is renamed with a date suffix and
// at most three rotated files are retained.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	size   int64
	logger *zap.Logger
	now    func() time.Time
}

// NewJournal opens (or creates) the journal file in append mode.
func NewJournal(path string, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, journalFileMode)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	return &Journal{
		path:   path,
		file:   file,
		size:   info.Size(),
		logger: logger.Named("journal"),
		now:    time.Now,
	}, nil
}

// Append writes one JSON line. Rotation is checked before the write.
func (j *Journal) Append(event types.PoolEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.size > journalMaxSize {
		if err := j.rotate(); err != nil {
			j.logger.Error("Journal rotation failed", zap.Error(err))
		}
	}

	line, err := json.Marshal(recordFor(event))
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	line = append(line, '\n')

	n, err := j.file.Write(line)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// rotate renames the active file with today's date and reopens a
// fresh one, pruning rotated files beyond the retention count.
func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return err
	}

	// A second rotation on the same day must not overwrite the first.
	base := fmt.Sprintf("%s.%s", j.path, j.now().Format(journalDateLayout))
	rotated := base
	for seq := 1; ; seq++ {
		if _, err := os.Stat(rotated); os.IsNotExist(err) {
			break
		}
		rotated = fmt.Sprintf("%s.%d", base, seq)
	}
	if err := os.Rename(j.path, rotated); err != nil {
		return err
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, journalFileMode)
	if err != nil {
		return err
	}
	j.file = file
	j.size = 0

	j.pruneRotated()
	j.logger.Info("Journal rotated", zap.String("to", rotated))
	return nil
}

// pruneRotated keeps only the newest journalMaxRotated rotated files.
func (j *Journal) pruneRotated() {
	matches, err := filepath.Glob(j.path + ".*")
	if err != nil || len(matches) <= journalMaxRotated {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-journalMaxRotated] {
		if err := os.Remove(old); err != nil {
			j.logger.Warn("Failed to remove old journal", zap.String("file", old), zap.Error(err))
		}
	}
}

// Close flushes and closes the active file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// ReadRecords reads every record back from a journal file, skipping
// lines that no longer parse.
func ReadRecords(path string) ([]JournalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []JournalRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}
