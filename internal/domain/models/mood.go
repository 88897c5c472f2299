package models

import "time"

// Topic labels assigned per sample by the upstream NLP collaborator.
const (
	TopicOwnAsset = "own_asset"
	TopicMarket   = "market"
)

// SentimentSample is one scored social-media observation. Value is the
// lexicon score in [-1,1], Confidence in [0,1], AuthorWeight >= 0.
type SentimentSample struct {
	Value        float64 `json:"value"`
	Confidence   float64 `json:"confidence"`
	AuthorWeight float64 `json:"authorWeight"`
	Topic        string  `json:"topic"`
}

// Weight returns the sample's contribution weight.
func (s SentimentSample) Weight() float64 {
	return s.Confidence * s.AuthorWeight
}

// AggregatedMood is the per-batch sentiment aggregate. Immutable once built;
// the next aggregation call supersedes it.
type AggregatedMood struct {
	Timestamp      time.Time          `json:"timestamp"`
	RawScore       float64            `json:"rawScore"`
	ZScore         float64            `json:"zScore"`
	EMA5           float64            `json:"ema5"`
	EMA15          float64            `json:"ema15"`
	EMA60          float64            `json:"ema60"`
	Volume         int                `json:"volume"`
	TopicBreakdown map[string]float64 `json:"topicBreakdown"`
}

// MarketSignal is a read-only market snapshot supplied by the market data
// collaborator.
type MarketSignal struct {
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChange24h"`
	Volume24h      float64 `json:"volume24h"`
	Liquidity      float64 `json:"liquidity"`
	Momentum       float64 `json:"momentum"`
	LargeTransfers int     `json:"largeTransfers"`
}
