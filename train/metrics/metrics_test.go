package metrics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterGlobalAvgIsArithmeticMean(t *testing.T) {
	m := NewMeter(3)
	values := []float64{1, 2, 3, 4, 5, 6}
	var sum float64
	for _, v := range values {
		m.Update(v)
		sum += v
	}
	assert.InDelta(t, sum/float64(len(values)), m.GlobalAvg(), 1e-12)
	assert.Equal(t, int64(len(values)), m.Count())
	assert.Equal(t, 6.0, m.Value())
	assert.Equal(t, 6.0, m.Max())
}

func TestMeterWindowStatistics(t *testing.T) {
	m := NewMeter(3)
	for _, v := range []float64{100, 1, 2, 3} {
		m.Update(v)
	}
	// Window holds the last three values {1, 2, 3}.
	assert.InDelta(t, 2.0, m.Avg(), 1e-12)
	assert.InDelta(t, 2.0, m.Median(), 1e-12)

	m.Update(4) // Window {2, 3, 4}.
	assert.InDelta(t, 3.0, m.Avg(), 1e-12)
}

func TestMeterEvenWindowMedian(t *testing.T) {
	m := NewMeter(4)
	for _, v := range []float64{1, 2, 3, 10} {
		m.Update(v)
	}
	assert.InDelta(t, 2.5, m.Median(), 1e-12)
}

func TestUnboundedMeterStreamingMedian(t *testing.T) {
	m := NewMeter(0)
	rng := rand.New(rand.NewPCG(42, 17))
	for i := 0; i < 10000; i++ {
		m.Update(rng.Float64())
	}
	// P² is approximate; for 10k uniform samples it lands close to 0.5.
	assert.InDelta(t, 0.5, m.Median(), 0.05)
	assert.InDelta(t, 0.5, m.Avg(), 0.05)
}

func TestMeterFormat(t *testing.T) {
	m := NewMeter(1).WithFormat("%.6f (%.6f)")
	m.Update(0.000125)
	assert.Equal(t, "0.000125 (0.000125)", m.String())
}

func TestSetAutoRegistersAndOrders(t *testing.T) {
	s := NewSet()
	s.Update("loss", 2)
	s.Update("lr", 0.001)
	s.Update("loss", 4)
	require.Equal(t, []string{"loss", "lr"}, s.Names())

	averages := s.GlobalAverages()
	assert.InDelta(t, 3.0, averages["loss"], 1e-12)
	assert.InDelta(t, 0.001, averages["lr"], 1e-12)
	assert.Nil(t, s.Get("missing"))
}

func TestSetString(t *testing.T) {
	s := NewSet().WithDelimiter(" | ")
	s.AddMeter("loss", NewMeter(10).WithFormat("%.2f (%.2f)"))
	s.Update("loss", 1)
	s.Update("loss", 3)
	assert.Equal(t, "loss: 2.00 (2.00)", s.String())
}
