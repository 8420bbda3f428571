// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics implements the scalar metric aggregator used by the
// training and evaluation drivers: named meters tracking a smoothed
// window of recent values plus global cumulative statistics.
//
// A Set has an explicit lifecycle: the drivers create one at the start
// of a pass, update it after every batch, read the averages at the end
// and discard it. Nothing here is process-global.
package metrics

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the smoothing window of meters auto-registered by
// Set.Update.
const DefaultWindow = 20

// DefaultFormat renders the window median followed by the global
// average, the usual progress-log form.
const DefaultFormat = "%.4f (%.4f)"

// Meter tracks one named scalar statistic: a trailing window of recent
// values plus global cumulative aggregates.
type Meter struct {
	window    []float64
	maxWindow int
	next      int

	last  float64
	total float64
	count int64
	max   float64

	// Streaming median estimate, used instead of the window when the
	// meter is unbounded.
	med *streamingMedian

	format string
}

// NewMeter creates a meter with the given smoothing window. A window of
// zero or less means unbounded: the window statistics become the global
// ones and the median is tracked with a P² streaming estimator.
func NewMeter(window int) *Meter {
	m := &Meter{maxWindow: window, format: DefaultFormat}
	if window > 0 {
		m.window = make([]float64, 0, window)
	} else {
		m.med = &streamingMedian{}
	}
	return m
}

// WithFormat sets the fmt verb string applied to (median, global
// average) by String. It returns the meter so calls can be chained.
func (m *Meter) WithFormat(format string) *Meter {
	m.format = format
	return m
}

// Update records a new value.
func (m *Meter) Update(value float64) {
	m.last = value
	m.total += value
	if m.count == 0 || value > m.max {
		m.max = value
	}
	m.count++
	if m.maxWindow > 0 {
		if len(m.window) < m.maxWindow {
			m.window = append(m.window, value)
		} else {
			m.window[m.next] = value
		}
		m.next = (m.next + 1) % m.maxWindow
	} else {
		m.med.update(value)
	}
}

// Count returns the number of values recorded.
func (m *Meter) Count() int64 { return m.count }

// Value returns the most recent value.
func (m *Meter) Value() float64 { return m.last }

// Max returns the largest value recorded.
func (m *Meter) Max() float64 { return m.max }

// GlobalAvg returns the cumulative average over all recorded values.
func (m *Meter) GlobalAvg() float64 {
	if m.count == 0 {
		return 0
	}
	return m.total / float64(m.count)
}

// Avg returns the mean over the current window, or the global average
// for unbounded meters.
func (m *Meter) Avg() float64 {
	if m.maxWindow <= 0 || len(m.window) == 0 {
		return m.GlobalAvg()
	}
	return stat.Mean(m.window, nil)
}

// Median returns the median over the current window, or the P²
// streaming estimate for unbounded meters.
func (m *Meter) Median() float64 {
	if m.maxWindow <= 0 {
		return m.med.value()
	}
	if len(m.window) == 0 {
		return 0
	}
	sorted := append([]float64{}, m.window...)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// String renders the meter with its configured format.
func (m *Meter) String() string {
	return fmt.Sprintf(m.format, m.Median(), m.GlobalAvg())
}

// Set is an insertion-ordered collection of named meters.
type Set struct {
	meters    map[string]*Meter
	order     []string
	delimiter string
}

// NewSet creates an empty meter set.
func NewSet() *Set {
	return &Set{
		meters:    make(map[string]*Meter),
		delimiter: "  ",
	}
}

// WithDelimiter sets the separator used by String.
func (s *Set) WithDelimiter(delimiter string) *Set {
	s.delimiter = delimiter
	return s
}

// AddMeter registers a meter under the given name, replacing statistics
// of a previous meter with the same name. It returns the set so calls
// can be chained.
func (s *Set) AddMeter(name string, m *Meter) *Set {
	if _, ok := s.meters[name]; !ok {
		s.order = append(s.order, name)
	}
	s.meters[name] = m
	return s
}

// Update records a value under the given name, auto-registering a meter
// with the default window on first use.
func (s *Set) Update(name string, value float64) {
	m, ok := s.meters[name]
	if !ok {
		m = NewMeter(DefaultWindow)
		s.AddMeter(name, m)
	}
	m.Update(value)
}

// Get returns the named meter, or nil if it was never registered.
func (s *Set) Get(name string) *Meter { return s.meters[name] }

// Names returns the meter names in registration order.
func (s *Set) Names() []string { return append([]string{}, s.order...) }

// GlobalAverages returns the global average of every meter, keyed by
// name.
func (s *Set) GlobalAverages() map[string]float64 {
	averages := make(map[string]float64, len(s.order))
	for _, name := range s.order {
		averages[name] = s.meters[name].GlobalAvg()
	}
	return averages
}

// MustGet returns the named meter and panics if absent. Meant for
// callers that just registered it.
func (s *Set) MustGet(name string) *Meter {
	m := s.meters[name]
	if m == nil {
		exceptions.Panicf("metrics.Set: no meter named %q", name)
	}
	return m
}

// String renders every meter as "name: value" joined by the delimiter,
// in registration order.
func (s *Set) String() string {
	parts := make([]string, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, fmt.Sprintf("%s: %s", name, s.meters[name]))
	}
	return strings.Join(parts, s.delimiter)
}
