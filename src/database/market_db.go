package database

import (
	"context"
	"time"

	"cropbot/src/datamodels"
)

// MarketReader is the read interface over the raw observation tables owned
// by the ingestion side.
type MarketReader interface {
	GetPriceHistory(ctx context.Context, symbol datamodels.Symbol, asOfDate time.Time, limit int) ([]datamodels.PriceObservation, error)
	GetPriceObservation(ctx context.Context, symbol datamodels.Symbol, date time.Time) (*datamodels.PriceObservation, error)
	GetMacroHistory(ctx context.Context, series datamodels.MacroSeries, asOfDate time.Time, limit int) ([]datamodels.MacroObservation, error)
	GetWeatherHistory(ctx context.Context, region string, asOfDate time.Time, limit int) ([]datamodels.WeatherObservation, error)
}

func (d *databaseImplementation) GetPriceHistory(ctx context.Context, symbol datamodels.Symbol, asOfDate time.Time, limit int) ([]datamodels.PriceObservation, error) {
	var obs []datamodels.PriceObservation
	err := d.gormDb.WithContext(ctx).
		Where("symbol = ? AND date <= ?", symbol, asOfDate).
		Order("date ASC").
		Find(&obs).Error
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	return obs, nil
}

func (d *databaseImplementation) GetPriceObservation(ctx context.Context, symbol datamodels.Symbol, date time.Time) (*datamodels.PriceObservation, error) {
	var obs []datamodels.PriceObservation
	err := d.gormDb.WithContext(ctx).
		Where("symbol = ? AND date = ?", symbol, date).
		Limit(1).
		Find(&obs).Error
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, nil
	}
	return &obs[0], nil
}

func (d *databaseImplementation) GetMacroHistory(ctx context.Context, series datamodels.MacroSeries, asOfDate time.Time, limit int) ([]datamodels.MacroObservation, error) {
	var obs []datamodels.MacroObservation
	err := d.gormDb.WithContext(ctx).
		Where("series = ? AND date <= ?", series, asOfDate).
		Order("date ASC").
		Find(&obs).Error
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	return obs, nil
}

func (d *databaseImplementation) GetWeatherHistory(ctx context.Context, region string, asOfDate time.Time, limit int) ([]datamodels.WeatherObservation, error) {
	var obs []datamodels.WeatherObservation
	err := d.gormDb.WithContext(ctx).
		Where("region = ? AND date <= ?", region, asOfDate).
		Order("date ASC").
		Find(&obs).Error
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	return obs, nil
}
