package generator

import (
	"math"
	"math/rand"
	"time"

	"iot-sim/internal/models"
)

// Strategy produces one synthetic sample from a parameter map. Strategies
// are pure apart from reading the wall clock (SINE) or an independent random
// source (RANDOM); the global rand source is safe for concurrent use, which
// matters because device ticks run in parallel.
type Strategy func(params map[string]float64) float64

var strategies = map[models.SimulationPattern]Strategy{
	models.PatternSine:   sineWave,
	models.PatternRandom: randomValue,
}

// StrategyFor returns the generator for a pattern. Unknown patterns are
// rejected at configuration time; hitting one here means the device carries
// a config that predates validation, and the caller skips the device.
func StrategyFor(pattern models.SimulationPattern) (Strategy, bool) {
	strategy, ok := strategies[pattern]
	return strategy, ok
}

// sineWave oscillates around offset with the configured amplitude and a
// period given in seconds. Parameter presence and period > 0 are enforced
// by config validation, not here.
func sineWave(params map[string]float64) float64 {
	amplitude := params["amplitude"]
	period := params["period"]
	offset := params["offset"]
	return math.Sin(float64(time.Now().UnixMilli())/(period*1000)*2*math.Pi)*amplitude + offset
}

// randomValue is uniformly distributed in [min, max).
func randomValue(params map[string]float64) float64 {
	min := params["min"]
	max := params["max"]
	return min + (max-min)*rand.Float64()
}
