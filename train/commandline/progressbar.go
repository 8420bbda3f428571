// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline renders live progress of training and evaluation
// passes on a terminal: a progress bar plus a table of the current
// metric meters, redrawn in place.
package commandline

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"

	"github.com/vislang/slt/train"
)

// ExtraMetricFn is any function that will give extra values to display
// along the progress bar. It is called at each update of the progress
// bar and should return a name and the current value.
type ExtraMetricFn func() (name, value string)

// RefreshPeriod is the time between terminal updates.
var RefreshPeriod = time.Second * 3

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version, but it
// requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

const progressBarName = "slt.train.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type progressBarUpdate struct {
	amount int
	rows   [][2]string

	// flushed, when set, is closed once this update (and everything
	// before it) has been drawn.
	flushed chan struct{}
}

// maxUpdateFrequency is the time between updates to the commandline
// display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// progressBar holds a progress bar being displayed, shared by the
// training and the evaluation attachments.
type progressBar struct {
	numSteps         int
	lastStepReported int
	totalAmount      int
	bar              *progressbar.ProgressBar
	suffix           string

	// lipgloss-based rich and asynchronous display.
	termenv       *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool
	updates       chan progressBarUpdate

	extraMetricFns []ExtraMetricFn
}

func newProgressBar(extraMetrics []ExtraMetricFn) *progressBar {
	pBar := &progressBar{
		isFirstOutput:  true,
		termenv:        termenv.NewOutput(os.Stdout),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		extraMetricFns: extraMetrics,
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	// Large buffer so the driver is not blocked on a slow terminal.
	pBar.updates = make(chan progressBarUpdate, 100)
	go pBar.drawUpdates()
	return pBar
}

// drawUpdates asynchronously renders enqueued updates, coalescing the
// buffered backlog so a fast driver never waits on the terminal. It
// runs for the lifetime of the process: the same bar is reused across
// epochs.
func (pBar *progressBar) drawUpdates() {
	for update := range pBar.updates {
		amount := update.amount
	exhaust:
		for update.flushed == nil {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}
		if update.flushed != nil {
			// Flush request: account for any coalesced steps and
			// acknowledge.
			if amount > 0 {
				_ = pBar.bar.Add(amount)
			}
			close(update.flushed)
			continue
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := len(update.rows) + 2 + 2
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		fmt.Println(pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount)
		fmt.Println()
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// Write implements io.Writer, and appends the current suffix to each
// line written by the enclosed progressbar.ProgressBar. The suffix
// erases spurious characters from previous prints.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	n, err = os.Stdout.Write(data)
	if err != nil {
		return n, err
	}
	_, err = os.Stdout.Write([]byte(pBar.suffix))
	if err != nil {
		return 0, err
	}
	return
}

func (pBar *progressBar) start(description string, startStep, endStep int) {
	pBar.lastStepReported = startStep
	pBar.isFirstOutput = true
	pBar.totalAmount = 0
	if endStep < 0 {
		pBar.numSteps = 1000 // Guess for now.
	} else {
		pBar.numSteps = endStep - startStep
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	// Erasing to the end of the display ("\033[J") flickers less than
	// erasing line by line on common terminals.
	pBar.suffix = "\033[J"
}

// report enqueues one asynchronous display update covering every step
// up to (and including) loopStep.
func (pBar *progressBar) report(loopStep int, rows [][2]string) {
	if pBar.bar.IsFinished() {
		return
	}
	amount := loopStep + 1 - pBar.lastStepReported
	if amount <= 0 {
		return
	}
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		rows = append(rows, [2]string{name, value})
	}
	pBar.updates <- progressBarUpdate{amount: amount, rows: rows}
	pBar.totalAmount += amount
	pBar.lastStepReported = loopStep + 1
}

// finish waits for every enqueued update to be drawn and moves the
// cursor past the display. The bar stays attached: the next pass calls
// start again.
func (pBar *progressBar) finish() {
	flushed := make(chan struct{})
	pBar.updates <- progressBarUpdate{flushed: flushed}
	<-flushed
	pBar.termenv.ShowCursor()
	fmt.Println()
}

// AttachProgressBar creates a commandline progress bar and attaches it
// to the Loop, so that every epoch run displays a progress bar with
// progression and the current metric meters.
//
// Optionally, one can provide extraMetrics: functions that are called
// at every update of the progress bar and should return a name (title)
// and a value to be included in the updated print-out.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	pBar := newProgressBar(extraMetrics)
	loop.OnStart(progressBarName, 0, func(loop *train.Loop, _ train.Dataset) error {
		description := "      [bold]"
		if loop.Epochs > 0 {
			description = fmt.Sprintf("      [bold]Epoch %d/%d ", loop.Epoch, loop.Epochs)
		}
		pBar.start(description, loop.StartStep, loop.EndStep)
		return nil
	})
	onStep := func(loop *train.Loop) error {
		rows := [][2]string{
			{"Step", fmt.Sprintf("%s of %s", humanize.Comma(int64(loop.LoopStep)), humanize.Comma(int64(loop.EndStep)))},
			{"Median train step duration", FormatDuration(loop.MedianTrainStepDuration())},
		}
		for _, name := range loop.Meters.Names() {
			rows = append(rows, [2]string{name, loop.Meters.MustGet(name).String()})
		}
		pBar.report(loop.LoopStep, rows)
		return nil
	}
	// At least 1000 updates during the pass, or at least every refresh
	// period.
	train.NTimesDuringLoop(loop, 1000, progressBarName, 0, onStep)
	train.PeriodicCallback(loop, RefreshPeriod, false, progressBarName, 0, onStep)
	loop.OnEnd(progressBarName, 0, func(_ *train.Loop) error {
		pBar.finish()
		return nil
	})
}

// AttachEvaluationBar creates a commandline progress bar and attaches
// it to the Evaluator, mirroring AttachProgressBar for evaluation
// passes.
func AttachEvaluationBar(ev *train.Evaluator, extraMetrics ...ExtraMetricFn) {
	pBar := newProgressBar(extraMetrics)
	ev.OnStart(progressBarName, 0, func(ev *train.Evaluator, _ train.Dataset) error {
		description := "      [bold]Evaluating "
		if ev.Epochs > 0 {
			description = fmt.Sprintf("      [bold]Eval %d/%d ", ev.Epoch, ev.Epochs)
		}
		pBar.start(description, 0, ev.EndStep)
		return nil
	})
	ev.OnStep(progressBarName, 0, func(ev *train.Evaluator) error {
		rows := [][2]string{
			{"Step", fmt.Sprintf("%s of %s", humanize.Comma(int64(ev.LoopStep)), humanize.Comma(int64(ev.EndStep)))},
		}
		for _, name := range ev.Meters.Names() {
			rows = append(rows, [2]string{name, ev.Meters.MustGet(name).String()})
		}
		pBar.report(ev.LoopStep, rows)
		return nil
	})
	ev.OnEnd(progressBarName, 0, func(_ *train.Evaluator) error {
		pBar.finish()
		return nil
	})
}
