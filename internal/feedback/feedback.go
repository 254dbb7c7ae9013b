// Package feedback collects user ratings on answers, keeps a rolling
// window plus a JSONL log, and derives retrieval parameter suggestions
// from recent rating patterns.
package feedback

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Answer ratings.
const (
	RatingPositive = "positive"
	RatingNegative = "negative"
)

// ErrInvalidRating indicates a rating outside the accepted values.
var ErrInvalidRating = errors.New("rating must be positive or negative")

// Entry is one user rating of an answer, together with the retrieval
// parameters that produced it. Scores carry the evaluator's 1-5 scale.
type Entry struct {
	FeedbackID string `json:"feedback_id"`
	SessionID  string `json:"session_id,omitempty"`

	Query   string `json:"query"`
	Answer  string `json:"answer,omitempty"`
	Rating  string `json:"rating"`
	Comment string `json:"comment,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	RetrievalMethod string  `json:"retrieval_method,omitempty"`
	RetrievalK      int     `json:"retrieval_k,omitempty"`
	QualityScore    float64 `json:"quality_score,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
	ResponseTime    float64 `json:"response_time_seconds,omitempty"`
}

// Adjustment is an advisory retrieval parameter change derived from
// feedback patterns. Suggestions are surfaced, never auto-applied.
type Adjustment struct {
	Parameter  string  `json:"parameter"`
	OldValue   float64 `json:"old_value"`
	NewValue   float64 `json:"new_value"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Summary aggregates recent feedback for the monitoring surface.
type Summary struct {
	TotalFeedback int     `json:"total_feedback"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	PositiveRatio float64 `json:"positive_ratio"`

	AvgQualityScore    float64 `json:"avg_quality_score"`
	AvgConfidenceScore float64 `json:"avg_confidence_score"`

	// RecommendedK is the retrieval K of the best-rated parameter group,
	// 0 when no group has earned a strong signal yet.
	RecommendedK int `json:"recommended_k,omitempty"`

	Suggestions []Adjustment `json:"suggestions"`
}

// Config holds feedback store settings.
type Config struct {
	// Path is the JSONL log file. Empty disables persistence; entries
	// are then kept in memory only.
	Path string

	// WindowSize is the number of recent entries kept in memory.
	// Default: 1000.
	WindowSize int

	// MinSamples is the minimum number of in-window entries before any
	// suggestion is made. Default: 5.
	MinSamples int

	// PoorScore and StrongScore bound the combined rating+quality score:
	// groups below PoorScore get improvement suggestions, groups above
	// StrongScore back the recommended parameters. Defaults: 0.4, 0.8.
	PoorScore   float64
	StrongScore float64

	// QualityWeight is the weight of the quality score in the combined
	// score; the user-rating ratio carries the remainder. Default: 0.6.
	QualityWeight float64

	// MinK and MaxK clamp suggested retrieval K values. Defaults: 3, 15.
	MinK int
	MaxK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 1000
	}
	if c.MinSamples == 0 {
		c.MinSamples = 5
	}
	if c.PoorScore == 0 {
		c.PoorScore = 0.4
	}
	if c.StrongScore == 0 {
		c.StrongScore = 0.8
	}
	if c.QualityWeight == 0 {
		c.QualityWeight = 0.6
	}
	if c.MinK == 0 {
		c.MinK = 3
	}
	if c.MaxK == 0 {
		c.MaxK = 15
	}
}

// groupMinSamples is the minimum entries a single parameter group needs
// before its pattern counts.
const groupMinSamples = 3

// qualityScale is the evaluator's maximum score.
const qualityScale = 5.0

// Store records feedback entries. Safe for concurrent use.
type Store struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	recent []Entry
}

// NewStore creates a Store. When a log path is configured, the tail of
// an existing log is loaded into the rolling window so suggestions
// survive restarts. Malformed log lines are skipped.
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	s := &Store{config: config, logger: logger}
	if config.Path == "" {
		return s, nil
	}

	if strings.HasPrefix(config.Path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		config.Path = filepath.Join(home, config.Path[1:])
		s.config = config
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	s.loadTail(config.Path)

	f, err := os.OpenFile(config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback log: %w", err)
	}
	s.file = f
	return s, nil
}

func (s *Store) loadTail(path string) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not read existing feedback log", zap.Error(err))
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		s.push(e)
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed feedback log lines", zap.Int("lines", skipped))
	}
	s.logger.Debug("loaded feedback window from log", zap.Int("entries", len(s.recent)))
}

// push appends to the rolling window. Caller holds the lock (or is the
// single-threaded constructor).
func (s *Store) push(e Entry) {
	s.recent = append(s.recent, e)
	if len(s.recent) > s.config.WindowSize {
		s.recent = s.recent[len(s.recent)-s.config.WindowSize:]
	}
}

// Record stores a feedback entry. A missing ID or timestamp is filled
// in. Persistence failures are logged, never surfaced.
func (s *Store) Record(e Entry) (Entry, error) {
	if e.Rating != RatingPositive && e.Rating != RatingNegative {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidRating, e.Rating)
	}
	if e.FeedbackID == "" {
		e.FeedbackID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.push(e)
	if s.file != nil {
		line, err := json.Marshal(e)
		if err == nil {
			line = append(line, '\n')
			_, err = s.file.Write(line)
		}
		if err != nil {
			s.logger.Error("failed to persist feedback entry",
				zap.String("feedback_id", e.FeedbackID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("feedback recorded",
		zap.String("feedback_id", e.FeedbackID),
		zap.String("rating", e.Rating),
	)
	return e, nil
}

// Recent returns up to n most recent entries, oldest first.
func (s *Store) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]Entry, n)
	copy(out, s.recent[len(s.recent)-n:])
	return out
}

// Summarize aggregates entries within the window ending now and derives
// parameter suggestions from them.
func (s *Store) Summarize(window time.Duration) Summary {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.Lock()
	var entries []Entry
	for _, e := range s.recent {
		if e.Timestamp.After(cutoff) {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	sum := Summary{TotalFeedback: len(entries), Suggestions: []Adjustment{}}
	if len(entries) == 0 {
		return sum
	}

	var qualitySum, confidenceSum float64
	var qualityN, confidenceN int
	for _, e := range entries {
		switch e.Rating {
		case RatingPositive:
			sum.PositiveCount++
		case RatingNegative:
			sum.NegativeCount++
		}
		if e.QualityScore > 0 {
			qualitySum += e.QualityScore
			qualityN++
		}
		if e.ConfidenceScore > 0 {
			confidenceSum += e.ConfidenceScore
			confidenceN++
		}
	}
	sum.PositiveRatio = float64(sum.PositiveCount) / float64(len(entries))
	if qualityN > 0 {
		sum.AvgQualityScore = qualitySum / float64(qualityN)
	}
	if confidenceN > 0 {
		sum.AvgConfidenceScore = confidenceSum / float64(confidenceN)
	}

	if len(entries) >= s.config.MinSamples {
		sum.Suggestions, sum.RecommendedK = s.analyze(entries)
	}
	return sum
}

// paramGroup keys entries that shared retrieval parameters.
type paramGroup struct {
	k      int
	method string
}

// analyze groups entries by the parameters that produced them and turns
// consistently poor groups into suggestions. The best strongly-rated
// group backs the recommended K.
func (s *Store) analyze(entries []Entry) ([]Adjustment, int) {
	groups := make(map[paramGroup][]Entry)
	for _, e := range entries {
		g := paramGroup{k: e.RetrievalK, method: e.RetrievalMethod}
		groups[g] = append(groups[g], e)
	}

	keys := make([]paramGroup, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].k != keys[j].k {
			return keys[i].k < keys[j].k
		}
		return keys[i].method < keys[j].method
	})

	suggestions := []Adjustment{}
	bestK, bestScore := 0, 0.0
	for _, g := range keys {
		members := groups[g]
		if len(members) < groupMinSamples || g.k == 0 {
			continue
		}
		score := s.combinedScore(members)

		switch {
		case score < s.config.PoorScore:
			if adj, ok := s.suggestK(g.k, score); ok {
				suggestions = append(suggestions, adj)
			}
		case score > s.config.StrongScore && score > bestScore:
			bestK, bestScore = g.k, score
		}
	}
	return suggestions, bestK
}

// combinedScore blends the positive-rating ratio with the normalized
// quality score. Without quality scores the rating ratio stands alone.
func (s *Store) combinedScore(entries []Entry) float64 {
	positive := 0
	var qualitySum float64
	qualityN := 0
	for _, e := range entries {
		if e.Rating == RatingPositive {
			positive++
		}
		if e.QualityScore > 0 {
			qualitySum += e.QualityScore
			qualityN++
		}
	}
	ratio := float64(positive) / float64(len(entries))
	if qualityN == 0 {
		return ratio
	}
	avgQuality := qualitySum / float64(qualityN) / qualityScale
	return ratio*(1-s.config.QualityWeight) + avgQuality*s.config.QualityWeight
}

// suggestK proposes a K change for a poorly-rated group: widen small K
// for recall, narrow large K for precision.
func (s *Store) suggestK(k int, score float64) (Adjustment, bool) {
	if k < 8 {
		next := k + 2
		if next > s.config.MaxK {
			next = s.config.MaxK
		}
		if next == k {
			return Adjustment{}, false
		}
		return Adjustment{
			Parameter:  "retrieval_k",
			OldValue:   float64(k),
			NewValue:   float64(next),
			Reason:     fmt.Sprintf("raising retrieval k from %d to %d for recall (combined score %.3f)", k, next, score),
			Confidence: 0.8,
		}, true
	}
	next := k - 1
	if next < s.config.MinK {
		return Adjustment{}, false
	}
	return Adjustment{
		Parameter:  "retrieval_k",
		OldValue:   float64(k),
		NewValue:   float64(next),
		Reason:     fmt.Sprintf("lowering retrieval k from %d to %d for precision (combined score %.3f)", k, next, score),
		Confidence: 0.7,
	}, true
}

// Close flushes and closes the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
