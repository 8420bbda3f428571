// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package plots collects metric samples during training and evaluation
// into plottable points, and saves/loads them as JSON streams.
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"

	"github.com/vislang/slt/train"
	"github.com/vislang/slt/train/metrics"
)

// TrainingPlotFileName is the default file name within a results directory to
// store plot points collected during training.
const TrainingPlotFileName = "training_plot_points.json"

// Point represents a training plot point. It is used to save/load plots.
type Point struct {
	// MetricName of this point.
	MetricName string

	// Short name
	Short string

	// MetricType typically will be "loss", "wer", "bleu".
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Step is the global step this metric was measured.
	// Usually, this is an int value, stored as a float64.
	Step float64

	// Value is the metric captured.
	Value float64
}

// Plotter is a generic plotter API.
type Plotter interface {
	// AddPoint to be drawn. One metric at a time.
	AddPoint(point Point)

	// DynamicSampleDone is called after all the data points recorded for this
	// sample (one measurement step). The value `incomplete` is set to true if
	// any of the measurements is NaN or infinite.
	DynamicSampleDone(incomplete bool)
}

// metricType groups meter names into plot families: the cumulative BLEU
// orders share one plot, everything else plots under its own name.
func metricType(name string) string {
	if strings.HasPrefix(name, "bleu") {
		return "bleu"
	}
	return name
}

// AddMetersSample records the global average of every meter in the set as one
// plot sample at the given step. Metric names are prefixed ("Train: ",
// "Eval: ") so training and evaluation series plot apart.
func AddMetersSample(plotter Plotter, step float64, prefix string, set *metrics.Set) {
	var incomplete bool
	for _, name := range set.Names() {
		value := set.MustGet(name).GlobalAvg()
		if math.IsNaN(value) || math.IsInf(value, 0) {
			incomplete = true
			continue
		}
		plotter.AddPoint(Point{
			MetricName: prefix + name,
			Short:      name,
			MetricType: metricType(name),
			Step:       step,
			Value:      value,
		})
	}
	plotter.DynamicSampleDone(incomplete)
}

// AttachToLoop samples the loop's meters into the plotter every everyN
// training steps, and once more at the end of each epoch.
func AttachToLoop(loop *train.Loop, everyN int, plotter Plotter) {
	const name = "slt.ui.plots"
	train.EveryNSteps(loop, everyN, name, 100, func(loop *train.Loop) error {
		AddMetersSample(plotter, float64(loop.LoopStep), "Train: ", loop.Meters)
		return nil
	})
	loop.OnEnd(name, 100, func(loop *train.Loop) error {
		AddMetersSample(plotter, float64(loop.LoopStep), "Train: ", loop.Meters)
		return nil
	})
}

// AttachToEvaluator samples the evaluator's meters into the plotter at the end
// of every evaluation pass, indexed by epoch.
func AttachToEvaluator(ev *train.Evaluator, plotter Plotter) {
	ev.OnEnd("slt.ui.plots", 100, func(ev *train.Evaluator) error {
		AddMetersSample(plotter, float64(ev.Epoch), "Eval: ", ev.Meters)
		return nil
	})
}

// LoadPoints parses all plot points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read Plots file %q", filePath)
	}

	// Read previously stored points.
	dec := json.NewDecoder(f)
	var point Point
	var points []Point
	for {
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plots file %q", filePath)
		}
		points = append(points, point)
	}
	_ = f.Close()
	return points, nil
}

// CreatePointsWriter creates a channel to write Point to the given file.
// It creates an errReport channel to report an error (or nil) back at the very
// end. If any error occurs, it stops writing, and will report the error back
// once pointWriter is closed.
func CreatePointsWriter(filePath string) (pointWriter chan<- Point, errReport <-chan error) {
	pointChan := make(chan Point, 100)
	pointWriter = pointChan
	errChan := make(chan error, 1)
	errReport = errChan
	go func() {
		// Create/append file with upcoming metrics.
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			err = errors.Wrapf(err, "failed to open Plots file %q for append", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for point := range pointChan {
			if err == nil {
				err = enc.Encode(point)
				if err != nil {
					err = errors.Wrapf(err, "failed to encode point %v", point)
					klog.Errorf("Error: %v", err)
				}
			}
		}
		if f != nil {
			if err == nil {
				err = f.Close()
			} else {
				_ = f.Close()
			}
		}
		errChan <- err
	}()
	return
}

// PlotterChannel adapts a points-writer channel (see CreatePointsWriter) to
// the Plotter interface.
type PlotterChannel struct {
	points chan<- Point
}

// NewPlotterChannel creates a Plotter that forwards every point to ch.
func NewPlotterChannel(ch chan<- Point) *PlotterChannel {
	return &PlotterChannel{points: ch}
}

// AddPoint implements Plotter.
func (p *PlotterChannel) AddPoint(point Point) { p.points <- point }

// DynamicSampleDone implements Plotter.
func (p *PlotterChannel) DynamicSampleDone(bool) {}

// Points is a collection of Point objects organized by their Step value.
// It's a `map[float64][]Point` with several utility methods.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual `Point`.
//
// See LoadPoints if you want to read `rawPoints` from a file.
func NewPoints(rawPoints []Point) (points Points) {
	points = make(map[float64][]Point)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Map executes the given function on all individual points, in `Step` order.
// Note that if `p.Step` change, it is not re-indexed.
//
// If you need to reindex the Step after the `Map` transformation, you may call
// [Points.Extract] followed by [NewPoints] to create the re-indexed structure.
func (points Points) Map(fn func(p *Point)) {
	sortedKeys := maps.Keys(points)
	slices.Sort(sortedKeys)
	for _, step := range sortedKeys {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Filter only keeps those points for which `fn` returns true, removing the
// other ones.
func (points Points) Filter(fn func(p Point) bool) {
	sortedKeys := maps.Keys(points)
	slices.Sort(sortedKeys)
	for _, step := range sortedKeys {
		stepPoints := points[step]
		newStepPoints := make([]Point, 0, len(stepPoints))
		for _, pt := range stepPoints {
			if fn(pt) {
				newStepPoints = append(newStepPoints, pt)
			}
		}
		if len(newStepPoints) == len(stepPoints) {
			continue // Nothing filtered.
		}
		if len(newStepPoints) == 0 {
			// Remove this step.
			delete(points, step)
		} else {
			points[step] = newStepPoints
		}
	}
}

// Extract converts the [Points] structure back to a list of individual points.
// The output is sorted by [Point.Step].
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// Add `otherPoints` into this `Points` structure. `otherPoints` is unchanged.
// It does not check for duplicates, points from `otherPoints` are simply
// appended as is.
func (points Points) Add(otherPoints Points) {
	otherPoints.Map(func(p *Point) {
		points[p.Step] = append(points[p.Step], *p)
	})
}

// MetricsNames return the list of metrics names in the whole collection,
// sorted alphabetically by their type and then by their name.
func (points Points) MetricsNames() []string {
	seen := make(map[string]struct{})
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		seen[p.MetricName] = struct{}{}
		nameToType[p.MetricName] = p.MetricType
	})
	names := maps.Keys(seen)
	slices.Sort(names)
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// TableForMetrics returns a table with the first column being the `Step`
// followed by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metricNames ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return cellStyle
		})

	// Headers from metric names.
	if len(metricNames) == 0 {
		metricNames = points.MetricsNames()
	}
	headers := []string{"Step"}
	headers = append(headers, metricNames...)
	table.Headers(headers...)

	// Add rows:
	sortedKeys := maps.Keys(points)
	slices.Sort(sortedKeys)
	for _, step := range sortedKeys {
		row := make([]string, 1+len(metricNames))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			idx := slices.Index(metricNames, pt.MetricName)
			if idx != -1 {
				row[idx+1] = fmt.Sprintf("%f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
