package database

import "cropbot/src/datamodels"

var DbTables = []interface{}{
	&datamodels.PriceObservation{},
	&datamodels.MacroObservation{},
	&datamodels.WeatherObservation{},
	&datamodels.FeatureVector{},
	&datamodels.ModelRun{},
	&datamodels.ForecastPoint{},
	&datamodels.EnsembleForecast{},
	&datamodels.Signal{},
	&datamodels.Explanation{},
	&datamodels.Metric{},
	&datamodels.MetricGenerator{},
}
