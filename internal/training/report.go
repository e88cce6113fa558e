package training

import (
	"bytes"
	"fmt"
	"image/color"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/landcover/internal/fsutil"
)

var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// WriteReport renders the loss history of a run as <experiment>_loss.png
// and an interactive <experiment>_loss.html in dir.
func WriteReport(fsys fsutil.FileSystem, dir, experiment string, history []EpochStats) (pngPath, htmlPath string, err error) {
	if len(history) == 0 {
		return "", "", fmt.Errorf("no epochs to report")
	}
	pngPath = filepath.Join(dir, experiment+"_loss.png")
	htmlPath = filepath.Join(dir, experiment+"_loss.html")

	png, err := lossPlotPNG(experiment, history)
	if err != nil {
		return "", "", fmt.Errorf("plot loss curve: %w", err)
	}
	if err := fsys.WriteFile(pngPath, png, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", pngPath, err)
	}

	html, err := lossChartHTML(experiment, history)
	if err != nil {
		return "", "", fmt.Errorf("render loss chart: %w", err)
	}
	if err := fsys.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", htmlPath, err)
	}
	diagf("wrote loss report %s and %s", pngPath, htmlPath)
	return pngPath, htmlPath, nil
}

func validated(history []EpochStats) bool {
	for _, s := range history {
		if s.Validated {
			return true
		}
	}
	return false
}

func lossPlotPNG(experiment string, history []EpochStats) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Loss", experiment)
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"

	trainPts := make(plotter.XYs, len(history))
	valPts := make(plotter.XYs, len(history))
	for i, s := range history {
		trainPts[i] = plotter.XY{X: float64(s.Epoch), Y: s.TrainLoss}
		valPts[i] = plotter.XY{X: float64(s.Epoch), Y: s.ValLoss}
	}

	trainLine, err := plotter.NewLine(trainPts)
	if err != nil {
		return nil, err
	}
	trainLine.Color = trainColor
	trainLine.Width = vg.Points(1)
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if validated(history) {
		valLine, err := plotter.NewLine(valPts)
		if err != nil {
			return nil, err
		}
		valLine.Color = valColor
		valLine.Width = vg.Points(1)
		p.Add(valLine)
		p.Legend.Add("validation", valLine)
	}

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lossChartHTML(experiment string, history []EpochStats) ([]byte, error) {
	epochs := make([]int, len(history))
	train := make([]opts.LineData, len(history))
	val := make([]opts.LineData, len(history))
	trainAcc := make([]opts.LineData, len(history))
	for i, s := range history {
		epochs[i] = s.Epoch
		train[i] = opts.LineData{Value: s.TrainLoss}
		val[i] = opts.LineData{Value: s.ValLoss}
		trainAcc[i] = opts.LineData{Value: s.TrainAcc}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: experiment + " loss", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: experiment, Subtitle: fmt.Sprintf("%d epochs", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Epoch", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Loss", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(epochs).AddSeries("train loss", train)
	if validated(history) {
		line.AddSeries("validation loss", val)
	}
	line.AddSeries("train accuracy", trainAcc)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
