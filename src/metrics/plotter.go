package metrics

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"cropbot/src/datamodels"
	"cropbot/src/utils/errors"
)

// ForecastPlotter renders the recent close history plus the ensemble
// forecast band to a static PNG, for archival alongside the run.
type ForecastPlotter struct {
	history    []datamodels.PriceObservation
	forecasts  []datamodels.EnsembleForecast
	filename   string
	fileOutput bool
}

func NewForecastPlotter() *ForecastPlotter {
	return &ForecastPlotter{}
}

func (pb *ForecastPlotter) WithHistory(history []datamodels.PriceObservation) *ForecastPlotter {
	pb.history = history
	return pb
}

func (pb *ForecastPlotter) WithForecasts(forecasts []datamodels.EnsembleForecast) *ForecastPlotter {
	pb.forecasts = forecasts
	return pb
}

func (pb *ForecastPlotter) WithFileOutput(filename string) *ForecastPlotter {
	pb.filename = filename
	pb.fileOutput = true
	return pb
}

func (pb *ForecastPlotter) Plot() error {
	if len(pb.history) == 0 && len(pb.forecasts) == 0 {
		return errors.New("nothing to plot")
	}
	if !pb.fileOutput || pb.filename == "" {
		return errors.New("no output file set")
	}

	p := plot.New()
	p.Title.Text = "Forecast Band"
	p.X.Label.Text = "date"
	p.Y.Label.Text = "close"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	closeLine := make(plotter.XYs, len(pb.history))
	for i, obs := range pb.history {
		closeLine[i].X = float64(obs.Date.Unix())
		closeLine[i].Y = obs.Close
	}

	sorted := make([]datamodels.EnsembleForecast, len(pb.forecasts))
	copy(sorted, pb.forecasts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].HorizonDays < sorted[j].HorizonDays })

	pointLine := make(plotter.XYs, len(sorted))
	lowerLine := make(plotter.XYs, len(sorted))
	upperLine := make(plotter.XYs, len(sorted))
	for i, f := range sorted {
		x := float64(f.AsOfDate.AddDate(0, 0, f.HorizonDays).Unix())
		pointLine[i].X, pointLine[i].Y = x, f.PointEstimate
		lowerLine[i].X, lowerLine[i].Y = x, f.LowerBound
		upperLine[i].X, upperLine[i].Y = x, f.UpperBound
	}

	err := plotutil.AddLinePoints(p,
		"close", closeLine,
		"forecast", pointLine,
		"lower", lowerLine,
		"upper", upperLine,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add plot series")
	}

	slog.Info("ForecastPlotter plotting via file", "filename", pb.filename)
	if mkErr := os.MkdirAll(filepath.Dir(pb.filename), 0755); mkErr != nil {
		return errors.Wrap(mkErr, "failed to create plot directory")
	}
	if saveErr := p.Save(10*vg.Inch, 6*vg.Inch, pb.filename); saveErr != nil {
		return errors.Wrap(saveErr, "failed to save plot")
	}
	return nil
}
