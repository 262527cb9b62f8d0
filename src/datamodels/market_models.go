package datamodels

import (
	"time"
)

type Symbol string

const (
	SymbolSoybeanOil  Symbol = "ZL=F"
	SymbolSoybeanMeal Symbol = "ZM=F"
	SymbolPalmOil     Symbol = "FCPO=F"
)

// PriceObservation is a daily OHLCV bar written by the ingestion side.
// This core only ever reads it.
type PriceObservation struct {
	BaseModel
	Date   time.Time `gorm:"not null;uniqueIndex:idx_price_date_symbol;type:date"`
	Symbol Symbol    `gorm:"not null;uniqueIndex:idx_price_date_symbol"`
	Open   float64   `gorm:"not null"`
	High   float64   `gorm:"not null"`
	Low    float64   `gorm:"not null"`
	Close  float64   `gorm:"not null"`
	Volume float64   `gorm:"not null"`
}

type MacroSeries string

const (
	MacroSeriesDollarIndex MacroSeries = "dxy"
	MacroSeriesFedFunds    MacroSeries = "fed_funds"
)

// MacroObservation is a daily macro series value (FX index, rate level).
type MacroObservation struct {
	BaseModel
	Date   time.Time   `gorm:"not null;uniqueIndex:idx_macro_date_series;type:date"`
	Series MacroSeries `gorm:"not null;uniqueIndex:idx_macro_date_series"`
	Value  float64     `gorm:"not null"`
}

// WeatherObservation is a daily weather metric for a growing region.
type WeatherObservation struct {
	BaseModel
	Date   time.Time `gorm:"not null;uniqueIndex:idx_weather_date_region_metric;type:date"`
	Region string    `gorm:"not null;uniqueIndex:idx_weather_date_region_metric"`
	Metric string    `gorm:"not null;uniqueIndex:idx_weather_date_region_metric"`
	Value  float64   `gorm:"not null"`
}
