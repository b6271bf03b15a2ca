// Package plot renders the end-of-run chart: CPU usage on the primary axis
// and resident memory on the secondary axis, against elapsed time.
package plot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/alshdavid/procmon/internal/models"
)

const (
	// Width and Height are the fixed canvas size in pixels.
	Width  = 1920
	Height = 1080

	// secondsThreshold is the run length in milliseconds above which the
	// time axis is labelled in seconds.
	secondsThreshold = 2000
	maxTicks         = 20
)

// ErrNothingToPlot is returned when neither CPU nor memory was recorded.
var ErrNothingToPlot = errors.New("no cpu or memory samples to plot")

type series struct {
	axis  string
	name  string
	color drawing.Color
	xs    []float64
	ys    []float64
	max   float64
}

func (s *series) add(x float64, y float64) {
	s.xs = append(s.xs, x)
	s.ys = append(s.ys, y)
	s.max = math.Max(s.max, y)
}

// Render draws rows into a PNG at path. A metric absent from every row is
// left out of the chart; if both are absent ErrNothingToPlot is returned.
func Render(path string, rows []models.Row) error {
	graph, err := build(rows)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("rendering chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing chart file: %w", err)
	}
	return nil
}

func build(rows []models.Row) (*chart.Chart, error) {
	cpu := &series{axis: "CPU usage (%)", color: drawing.ColorBlue}
	mem := &series{axis: "Memory (KiB)", color: drawing.ColorRed}

	var totalMS int64
	for _, r := range rows {
		ms := r.Time.Milliseconds()
		if ms > totalMS {
			totalMS = ms
		}
		if r.CPU != nil {
			cpu.add(float64(ms), float64(*r.CPU))
		}
		if r.Memory != nil {
			mem.add(float64(ms), float64(*r.Memory/1024))
		}
	}

	var plotted []*series
	for _, s := range []*series{cpu, mem} {
		if len(s.xs) > 0 {
			s.name = s.axis
			plotted = append(plotted, s)
		}
	}
	if len(plotted) == 0 {
		return nil, ErrNothingToPlot
	}
	// The last series carries the run length in the legend.
	last := plotted[len(plotted)-1]
	last.name = fmt.Sprintf("%s | Time: %s", last.name, totalLabel(totalMS))

	xMax := roundUpThousand(totalMS)
	seconds := totalMS > secondsThreshold
	xName := "Time (ms)"
	if seconds {
		xName = "Time (s)"
	}

	graph := &chart.Chart{
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           xName,
			Range:          &chart.ContinuousRange{Min: 0, Max: float64(xMax)},
			Ticks:          ticks(xMax, seconds),
			GridLines:      gridLines(xMax, seconds),
			GridMajorStyle: chart.Style{StrokeColor: drawing.ColorFromHex("dddddd"), StrokeWidth: 1},
		},
	}

	for i, s := range plotted {
		axis := chart.YAxis{
			Name:           s.axis,
			Range:          &chart.ContinuousRange{Min: 0, Max: math.Max(s.max, 1)},
			ValueFormatter: integerFormatter,
		}
		cs := chart.ContinuousSeries{
			Name:    s.name,
			Style:   chart.Style{StrokeColor: s.color, StrokeWidth: 2},
			XValues: s.xs,
			YValues: s.ys,
		}
		if i == 0 {
			graph.YAxis = axis
		} else {
			graph.YAxisSecondary = axis
			cs.YAxis = chart.YAxisSecondary
		}
		graph.Series = append(graph.Series, cs)
	}
	graph.Elements = []chart.Renderable{chart.LegendThin(graph)}

	return graph, nil
}

// roundUpThousand rounds ms up to the next whole thousand, with a minimum of
// one thousand so the axis never collapses.
func roundUpThousand(ms int64) int64 {
	if ms <= 0 {
		return 1000
	}
	return (ms + 999) / 1000 * 1000
}

// tickStep returns the spacing between x ticks: tenths of a second on short
// runs, whole seconds on long ones, widened along 1-2-5 multiples of that
// base to keep at most maxTicks.
func tickStep(xMax int64, seconds bool) int64 {
	decade := int64(100)
	if seconds {
		decade = 1000
	}
	for {
		for _, m := range []int64{1, 2, 5} {
			if step := decade * m; xMax/step <= maxTicks {
				return step
			}
		}
		decade *= 10
	}
}

func ticks(xMax int64, seconds bool) []chart.Tick {
	step := tickStep(xMax, seconds)
	var out []chart.Tick
	for v := int64(0); v <= xMax; v += step {
		out = append(out, chart.Tick{Value: float64(v), Label: timeLabel(v, seconds)})
	}
	return out
}

func gridLines(xMax int64, seconds bool) []chart.GridLine {
	step := tickStep(xMax, seconds)
	var out []chart.GridLine
	for v := step; v <= xMax; v += step {
		out = append(out, chart.GridLine{Value: float64(v)})
	}
	return out
}

func timeLabel(ms int64, seconds bool) string {
	if seconds {
		return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
	}
	return strconv.FormatInt(ms, 10)
}

func totalLabel(ms int64) string {
	if ms > secondsThreshold {
		return fmt.Sprintf("%.2f s", (time.Duration(ms) * time.Millisecond).Seconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

func integerFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(math.Round(f), 'f', 0, 64)
	}
	return fmt.Sprintf("%v", v)
}
