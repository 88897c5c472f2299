package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovingAverageWindow(t *testing.T) {
	m := NewMovingAverage(3)
	assert.Equal(t, 1.0, m.Add(1))
	assert.Equal(t, 1.5, m.Add(2))
	assert.Equal(t, 2.0, m.Add(3))
	// 1 drops out of the window
	assert.Equal(t, 3.0, m.Add(4))
	assert.Equal(t, 3, m.Len())
}

func TestEMAFirstAddSeedsValue(t *testing.T) {
	e := NewEMA(5)
	assert.Equal(t, 7.5, e.Add(7.5))
	assert.True(t, e.Primed())
}

func TestEMASmoothing(t *testing.T) {
	e := NewEMA(5) // alpha = 1/3
	e.Add(9)
	got := e.Add(3)
	want := (1.0/3.0)*3 + (2.0/3.0)*9
	assert.InDelta(t, want, got, 1e-12)
}

func TestEMAReset(t *testing.T) {
	e := NewEMA(5)
	e.Add(10)
	e.Reset()
	assert.False(t, e.Primed())
	assert.Equal(t, 0.0, e.Value())
	// seeds again after reset
	assert.Equal(t, 4.0, e.Add(4))
}

func TestEMAStateRoundTrip(t *testing.T) {
	e := NewEMA(15)
	e.Add(1)
	e.Add(2)
	s := e.State()

	r := NewEMA(15)
	r.Restore(s)
	assert.Equal(t, e.Value(), r.Value())
	assert.True(t, r.Primed())
}

func TestStdDevPopulation(t *testing.T) {
	// population stddev of [2,4,4,4,5,5,7,9] is exactly 2
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, StdDev(xs), 1e-12)
}

func TestZScoreZeroStdDev(t *testing.T) {
	z := ZScore(5, 5, 0)
	assert.Equal(t, 0.0, z)
	assert.False(t, math.IsNaN(z))
}

func TestZScore(t *testing.T) {
	assert.InDelta(t, 1.5, ZScore(8, 5, 2), 1e-12)
	assert.InDelta(t, -1.5, ZScore(2, 5, 2), 1e-12)
}

func TestCrossover(t *testing.T) {
	cases := []struct {
		name string
		fast []float64
		slow []float64
		want CrossDirection
	}{
		{"down", []float64{10, 4}, []float64{8, 8}, CrossDown},
		{"up", []float64{4, 10}, []float64{8, 8}, CrossUp},
		{"none above", []float64{10, 10}, []float64{8, 8}, CrossNone},
		{"none tie to tie", []float64{8, 8}, []float64{8, 8}, CrossNone},
		{"tie then strictly below", []float64{8, 7}, []float64{8, 8}, CrossDown},
		{"short series", []float64{10}, []float64{8, 8}, CrossNone},
		{"empty", nil, nil, CrossNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Crossover(tc.fast, tc.slow))
		})
	}
}
