// Package monitor records per-query performance and quality metrics,
// keeps a rolling in-memory window for alerting, and appends every
// record to a JSONL log for offline analysis.
package monitor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryRecord holds the metrics for one completed query.
type QueryRecord struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`

	// Stage timings in seconds.
	TotalTime      float64 `json:"total_time_seconds"`
	RetrievalTime  float64 `json:"retrieval_time_seconds"`
	EvaluationTime float64 `json:"evaluation_time_seconds"`

	ChunksRetrieved int    `json:"chunks_retrieved"`
	ChunksFinal     int    `json:"chunks_final"`
	RetrievalMethod string `json:"retrieval_method"`

	QualityScore    float64 `json:"quality_score"`
	ConfidenceScore float64 `json:"confidence_score"`

	ErrorOccurred bool   `json:"error_occurred"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Config holds collector settings.
type Config struct {
	// Path is the JSONL log file. Empty disables persistence; records
	// are then kept in memory only.
	Path string

	// WindowSize is the number of recent records kept in memory for
	// alerting and the recent-queries endpoint. Default: 100.
	WindowSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
}

// Collector records query metrics. Safe for concurrent use.
type Collector struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	recent []QueryRecord
}

// NewCollector creates a Collector. When a log path is configured, the
// tail of an existing log is loaded into the rolling window so alerts
// survive restarts. Malformed log lines are skipped.
func NewCollector(config Config, logger *zap.Logger) (*Collector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	c := &Collector{config: config, logger: logger}
	if config.Path == "" {
		return c, nil
	}

	if strings.HasPrefix(config.Path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		config.Path = filepath.Join(home, config.Path[1:])
		c.config = config
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	c.loadTail(config.Path)

	f, err := os.OpenFile(config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics log: %w", err)
	}
	c.file = f
	return c, nil
}

func (c *Collector) loadTail(path string) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("could not read existing metrics log", zap.Error(err))
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		var rec QueryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			skipped++
			continue
		}
		c.push(rec)
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed metrics log lines", zap.Int("lines", skipped))
	}
	c.logger.Debug("loaded metrics window from log",
		zap.Int("records", len(c.recent)),
	)
}

// push appends to the rolling window. Caller holds the lock (or is the
// single-threaded constructor).
func (c *Collector) push(rec QueryRecord) {
	c.recent = append(c.recent, rec)
	if len(c.recent) > c.config.WindowSize {
		c.recent = c.recent[len(c.recent)-c.config.WindowSize:]
	}
}

// Record stores a query record. A missing ID or timestamp is filled in.
// Persistence failures are logged, never surfaced: monitoring must not
// break query serving.
func (c *Collector) Record(rec QueryRecord) QueryRecord {
	if rec.QueryID == "" {
		rec.QueryID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	observeQuery(rec)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.push(rec)
	if c.file != nil {
		line, err := json.Marshal(rec)
		if err == nil {
			line = append(line, '\n')
			_, err = c.file.Write(line)
		}
		if err != nil {
			c.logger.Error("failed to persist query record",
				zap.String("query_id", rec.QueryID),
				zap.Error(err),
			)
		}
	}
	return rec
}

// Recent returns up to n most recent records, oldest first.
func (c *Collector) Recent(n int) []QueryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.recent) {
		n = len(c.recent)
	}
	out := make([]QueryRecord, n)
	copy(out, c.recent[len(c.recent)-n:])
	return out
}

// Close flushes and closes the log file.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
