package usecase

import (
	"context"
	"errors"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/services/stats"
	xlogger "MoodTreasury/pkg/logger"
)

// AggregatorConfig tunes the mood aggregator.
type AggregatorConfig struct {
	HistoryCap   int // raw score ring buffer size
	ShortWindow  int
	MediumWindow int
	LongWindow   int
}

type moodState struct {
	History []float64      `json:"history"`
	EMA5    stats.EMAState `json:"ema5"`
	EMA15   stats.EMAState `json:"ema15"`
	EMA60   stats.EMAState `json:"ema60"`
}

// MoodAggregator folds sentiment sample batches into one AggregatedMood per
// batch. It carries mutable trend state (score history, three EMAs) between
// calls; callers must treat it as a single logical stream, concurrent
// overlapping Aggregate calls are undefined.
type MoodAggregator struct {
	store   drepo.DurableStore
	log     *xlogger.Logger
	metrics drepo.Metrics
	cfg     AggregatorConfig

	history []float64
	ema5    *stats.EMA
	ema15   *stats.EMA
	ema60   *stats.EMA
	now     func() time.Time
}

// NewMoodAggregator creates a mood aggregator.
func NewMoodAggregator(store drepo.DurableStore, log *xlogger.Logger, metrics drepo.Metrics, cfg AggregatorConfig) *MoodAggregator {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 1000
	}
	return &MoodAggregator{
		store:   store,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		ema5:    stats.NewEMA(cfg.ShortWindow),
		ema15:   stats.NewEMA(cfg.MediumWindow),
		ema60:   stats.NewEMA(cfg.LongWindow),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (a *MoodAggregator) SetNowFunc(now func() time.Time) { a.now = now }

// Restore loads persisted trend state. A missing or corrupt record starts
// from empty; that is a warning, not a failure.
func (a *MoodAggregator) Restore(ctx context.Context) error {
	var s moodState
	if err := a.store.GetJSON(ctx, drepo.KeyMoodState, &s); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			a.log.Warn("no persisted mood state, starting from empty")
			return nil
		}
		a.log.Warn("mood state unreadable, starting from empty", xlogger.Error(err))
		return nil
	}
	a.history = s.History
	if len(a.history) > a.cfg.HistoryCap {
		a.history = a.history[len(a.history)-a.cfg.HistoryCap:]
	}
	a.ema5.Restore(s.EMA5)
	a.ema15.Restore(s.EMA15)
	a.ema60.Restore(s.EMA60)
	a.log.Info("mood state restored", xlogger.Int("history_len", len(a.history)))
	return nil
}

// HistoryLen returns the current score history length.
func (a *MoodAggregator) HistoryLen() int { return len(a.history) }

// Aggregate produces one mood from a sample batch and advances trend state.
// An empty batch returns a zeroed mood and mutates nothing, so gaps in the
// sample feed cannot pollute trend calculations.
func (a *MoodAggregator) Aggregate(ctx context.Context, samples []models.SentimentSample) models.AggregatedMood {
	if len(samples) == 0 {
		return models.AggregatedMood{Timestamp: a.now().UTC(), TopicBreakdown: map[string]float64{}}
	}

	var weighted, totalWeight float64
	topicCounts := make(map[string]int)
	for _, s := range samples {
		w := s.Weight()
		weighted += s.Value * w
		totalWeight += w
		topicCounts[s.Topic]++
	}
	rawScore := 0.0
	if totalWeight > 0 {
		rawScore = weighted / totalWeight
	}

	a.history = append(a.history, rawScore)
	if len(a.history) > a.cfg.HistoryCap {
		a.history = a.history[1:]
	}

	mean := stats.Mean(a.history)
	stddev := stats.StdDev(a.history)

	breakdown := make(map[string]float64, len(topicCounts))
	for topic, n := range topicCounts {
		breakdown[topic] = float64(n) / float64(len(samples))
	}

	mood := models.AggregatedMood{
		Timestamp:      a.now().UTC(),
		RawScore:       rawScore,
		ZScore:         stats.ZScore(rawScore, mean, stddev),
		EMA5:           a.ema5.Add(rawScore),
		EMA15:          a.ema15.Add(rawScore),
		EMA60:          a.ema60.Add(rawScore),
		Volume:         len(samples),
		TopicBreakdown: breakdown,
	}

	a.metrics.RecordMood(mood.RawScore, mood.ZScore)
	a.saveState(ctx)
	return mood
}

func (a *MoodAggregator) saveState(ctx context.Context) {
	s := moodState{
		History: a.history,
		EMA5:    a.ema5.State(),
		EMA15:   a.ema15.State(),
		EMA60:   a.ema60.State(),
	}
	if err := a.store.SetJSON(ctx, drepo.KeyMoodState, s, 0); err != nil {
		a.log.Error("persist mood state failed", xlogger.Error(err))
		a.metrics.RecordError("mood_state")
	}
}
