package metrics

// streamingMedian keeps an approximate median of a stream of values in
// constant space.
//
// It uses the P² algorithm, described in the paper
// https://dl.acm.org/doi/abs/10.1145/4372.4378, and in a more friendly
// way in the post in: https://www.baeldung.com/cs/streaming-median
type streamingMedian struct {
	markers  [5]float64
	counters [5]int64
}

var p2Quantiles = [5]float64{0, 0.25, 0.5, 0.75, 1}

func (sm *streamingMedian) update(x float64) {
	if sm.counters[4] == 0 {
		// This is the very first element:
		for i := range 5 {
			sm.markers[i] = x
			if i > 0 {
				sm.counters[i] = 1
			}
		}
		return
	}

	// Update the first and last markers and counters:
	sm.markers[0] = min(x, sm.markers[0])
	sm.markers[4] = max(x, sm.markers[4])
	// counters[0] is always 0.
	sm.counters[4]++ // Always incremented.
	for i := 1; i < 4; i++ {
		if x <= sm.markers[i] {
			sm.counters[i]++
		}
	}

	// Find inner ideal counters:
	var idealCounters [5]float64
	currentN := float64(sm.counters[4])
	for i := 1; i < 4; i++ {
		idealCounters[i] = p2Quantiles[i] * (currentN - 1)
	}

	// Adjust counts and markers where needed:
	for i := 1; i < 4; i++ {
		d := idealCounters[i] - float64(sm.counters[i])
		if d >= 1 {
			d = 1
			if sm.counters[i] >= sm.counters[i+1] || sm.markers[i] >= sm.markers[i+1] {
				// No margin to adjust markers[i] or counters[i].
				continue
			}
		} else if d <= -1 {
			d = -1
			if sm.counters[i] <= sm.counters[i-1] || sm.markers[i] <= sm.markers[i-1] {
				// No margin to adjust markers[i] or counters[i].
				continue
			}
		} else {
			// The difference is not large enough that we need to adjust counts.
			continue
		}

		nCurrent := float64(sm.counters[i])
		nPrevious := float64(sm.counters[i-1])
		nNext := float64(sm.counters[i+1])
		qPrevious := sm.markers[i-1]
		qCurrent := sm.markers[i]
		qNext := sm.markers[i+1]

		deltaNPrevious := nCurrent - nPrevious
		deltaNNext := nNext - nCurrent
		deltaNOuter := nNext - nPrevious

		deltaQPrevious := qCurrent - qPrevious
		deltaQNext := qNext - qCurrent
		deltaQOuter := qNext - qPrevious

		qNew := sm.markers[i] // Default to no change if interpolation fails.

		// Attempt parabolic interpolation:
		if deltaNPrevious > 0 && deltaNNext > 0 && deltaNOuter > 0 {
			adjustmentAmount := d / deltaNOuter
			term1 := (deltaNPrevious + d) * deltaQNext / deltaNNext
			term2 := (deltaNNext - d) * deltaQPrevious / deltaNPrevious
			qNew = qCurrent + adjustmentAmount*(term1+term2)
		} else if deltaNOuter > 0 {
			// Linear interpolation between neighbor markers:
			qNew = qPrevious + (deltaNPrevious+d)*deltaQOuter/deltaNOuter
		}
		sm.markers[i] = qNew
		sm.counters[i] += int64(d)
	}
}

func (sm *streamingMedian) value() float64 {
	return sm.markers[2]
}
