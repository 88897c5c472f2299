package stats

import "math"

// MovingAverage is a simple arithmetic mean over the last window values.
type MovingAverage struct {
	window int
	values []float64
}

// NewMovingAverage creates a moving average with the given window size.
func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{window: window, values: make([]float64, 0, window)}
}

// Add pushes a value, dropping the oldest beyond the window, and returns the
// current average.
func (m *MovingAverage) Add(v float64) float64 {
	m.values = append(m.values, v)
	if len(m.values) > m.window {
		m.values = m.values[1:]
	}
	return m.Value()
}

// Value returns the current average, 0 if no values were added.
func (m *MovingAverage) Value() float64 {
	if len(m.values) == 0 {
		return 0
	}
	return Mean(m.values)
}

// Len returns the number of retained values.
func (m *MovingAverage) Len() int { return len(m.values) }

// EMAState is the serializable state of an EMA accumulator.
type EMAState struct {
	Value  float64 `json:"value"`
	Primed bool    `json:"primed"`
}

// EMA is an exponential moving average with alpha = 2/(window+1). The first
// Add seeds the state with the raw value so there is no warm-up bias.
type EMA struct {
	alpha  float64
	value  float64
	primed bool
}

// NewEMA creates an EMA with the given smoothing window.
func NewEMA(window int) *EMA {
	if window < 1 {
		window = 1
	}
	return &EMA{alpha: 2.0 / (float64(window) + 1)}
}

// Add folds a value in and returns the updated average.
func (e *EMA) Add(v float64) float64 {
	if !e.primed {
		e.value = v
		e.primed = true
		return e.value
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// Value returns the current average, 0 if uninitialized.
func (e *EMA) Value() float64 { return e.value }

// Primed reports whether at least one value was added.
func (e *EMA) Primed() bool { return e.primed }

// Reset clears the accumulator to uninitialized.
func (e *EMA) Reset() {
	e.value = 0
	e.primed = false
}

// State snapshots the accumulator for persistence.
func (e *EMA) State() EMAState {
	return EMAState{Value: e.value, Primed: e.primed}
}

// Restore loads a persisted snapshot.
func (e *EMA) Restore(s EMAState) {
	e.value = s.Value
	e.primed = s.Primed
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation (divide by N).
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// ZScore returns how many standard deviations v sits from mean. A zero
// stddev yields 0 rather than NaN/Inf.
func ZScore(v, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (v - mean) / stddev
}

// CrossDirection is the outcome of a two-series crossover check.
type CrossDirection string

const (
	CrossUp   CrossDirection = "up"
	CrossDown CrossDirection = "down"
	CrossNone CrossDirection = "none"
)

// Crossover compares the last two paired samples of fast against slow.
// "down" means fast was at or above slow and is now strictly below; "up" is
// the mirror. Anything else, including ties and short series, is "none".
func Crossover(fast, slow []float64) CrossDirection {
	if len(fast) < 2 || len(slow) < 2 {
		return CrossNone
	}
	prevFast, curFast := fast[len(fast)-2], fast[len(fast)-1]
	prevSlow, curSlow := slow[len(slow)-2], slow[len(slow)-1]

	if prevFast >= prevSlow && curFast < curSlow {
		return CrossDown
	}
	if prevFast <= prevSlow && curFast > curSlow {
		return CrossUp
	}
	return CrossNone
}
