package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/repository"
	"MoodTreasury/internal/services/risk"
	"MoodTreasury/pkg/logger"
	"MoodTreasury/pkg/metrics"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func newTestAggregator(t *testing.T) (*MoodAggregator, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	agg := NewMoodAggregator(store, newTestLogger(t), metrics.Nop{}, AggregatorConfig{
		HistoryCap:   1000,
		ShortWindow:  5,
		MediumWindow: 15,
		LongWindow:   60,
	})
	return agg, store
}

func sample(value, confidence, weight float64, topic string) models.SentimentSample {
	return models.SentimentSample{Value: value, Confidence: confidence, AuthorWeight: weight, Topic: topic}
}

func TestAggregateWeightedScore(t *testing.T) {
	agg, _ := newTestAggregator(t)

	mood := agg.Aggregate(context.Background(), []models.SentimentSample{
		sample(1.0, 1.0, 1.0, models.TopicOwnAsset),
		sample(-1.0, 0.5, 1.0, models.TopicMarket),
	})

	// weights 1.0 and 0.5: (1.0*1.0 + -1.0*0.5) / 1.5
	assert.InDelta(t, 1.0/3.0, mood.RawScore, 1e-9)
	assert.Equal(t, 2, mood.Volume)
	assert.InDelta(t, 0.5, mood.TopicBreakdown[models.TopicOwnAsset], 1e-9)
	assert.InDelta(t, 0.5, mood.TopicBreakdown[models.TopicMarket], 1e-9)
}

func TestAggregateFirstBatchSeedsEMAs(t *testing.T) {
	agg, _ := newTestAggregator(t)

	mood := agg.Aggregate(context.Background(), []models.SentimentSample{
		sample(0.8, 1.0, 1.0, models.TopicOwnAsset),
	})

	assert.InDelta(t, 0.8, mood.EMA5, 1e-9)
	assert.InDelta(t, 0.8, mood.EMA15, 1e-9)
	assert.InDelta(t, 0.8, mood.EMA60, 1e-9)
	// a single score has zero stddev, so its z-score pins to 0
	assert.Zero(t, mood.ZScore)
}

func TestAggregateEmptyBatchMutatesNothing(t *testing.T) {
	ctx := context.Background()
	agg, _ := newTestAggregator(t)

	first := agg.Aggregate(ctx, []models.SentimentSample{sample(0.5, 1.0, 1.0, models.TopicOwnAsset)})
	require.Equal(t, 1, agg.HistoryLen())

	empty := agg.Aggregate(ctx, nil)
	assert.Zero(t, empty.RawScore)
	assert.Zero(t, empty.Volume)
	assert.Equal(t, 1, agg.HistoryLen())

	// trend state continues exactly where it left off
	second := agg.Aggregate(ctx, []models.SentimentSample{sample(0.5, 1.0, 1.0, models.TopicOwnAsset)})
	assert.InDelta(t, first.EMA5+(0.5-first.EMA5)*(2.0/6.0), second.EMA5, 1e-9)
	assert.Equal(t, 2, agg.HistoryLen())
}

func TestAggregateHistoryCapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	agg := NewMoodAggregator(store, newTestLogger(t), metrics.Nop{}, AggregatorConfig{
		HistoryCap:   3,
		ShortWindow:  5,
		MediumWindow: 15,
		LongWindow:   60,
	})

	for i := 0; i < 5; i++ {
		agg.Aggregate(ctx, []models.SentimentSample{sample(float64(i), 1.0, 1.0, models.TopicOwnAsset)})
	}
	assert.Equal(t, 3, agg.HistoryLen())
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	agg, store := newTestAggregator(t)

	agg.Aggregate(ctx, []models.SentimentSample{sample(0.4, 1.0, 1.0, models.TopicOwnAsset)})
	agg.Aggregate(ctx, []models.SentimentSample{sample(0.6, 1.0, 1.0, models.TopicOwnAsset)})

	restored := NewMoodAggregator(store, newTestLogger(t), metrics.Nop{}, AggregatorConfig{
		HistoryCap:   1000,
		ShortWindow:  5,
		MediumWindow: 15,
		LongWindow:   60,
	})
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, agg.HistoryLen(), restored.HistoryLen())

	// both instances must produce identical moods for the same next batch
	want := agg.Aggregate(ctx, []models.SentimentSample{sample(0.2, 1.0, 1.0, models.TopicOwnAsset)})
	got := restored.Aggregate(ctx, []models.SentimentSample{sample(0.2, 1.0, 1.0, models.TopicOwnAsset)})
	assert.InDelta(t, want.RawScore, got.RawScore, 1e-9)
	assert.InDelta(t, want.ZScore, got.ZScore, 1e-9)
	assert.InDelta(t, want.EMA15, got.EMA15, 1e-9)
}

func TestRestoreMissingStateStartsEmpty(t *testing.T) {
	agg, _ := newTestAggregator(t)
	require.NoError(t, agg.Restore(context.Background()))
	assert.Zero(t, agg.HistoryLen())
}

// newTestGate builds a risk gate over the same store as the caller.
func newTestRiskGate(t *testing.T, store drepo.DurableStore) *risk.Gate {
	t.Helper()
	return risk.NewGate(store, newTestLogger(t), metrics.Nop{}, risk.Limits{
		MinTreasuryThreshold: 0.1,
		MaxDailySpendPercent: 100,
		MaxConsecutiveLosses: 3,
	})
}
