package datamodels

import (
	"time"
)

// Canonical feature names produced by the feature engine. Downstream
// consumers look features up by these keys and must treat a missing key as
// unknown, never as a neutral value.
const (
	FeatureRSI14          = "rsi_14"
	FeatureMA7            = "ma_7"
	FeatureMA30           = "ma_30"
	FeatureMA90           = "ma_90"
	FeatureVolumeZ        = "vol_z"
	FeatureCrushRatio     = "crush_ratio"
	FeatureCrushZ         = "crush_z"
	FeatureBopoSpread     = "bopo_spread"
	FeatureBopoZ          = "bopo_z"
	FeatureBopoDivergence = "bopo_divergence"
	FeatureDollarIndexZ   = "dxy_z"
	FeatureRateLevel      = "rate_level"
	FeatureWeatherPrefix  = "weather_anom_" // per-region, e.g. weather_anom_midwest
)

// FeatureVector is one named feature value for one date and entity
// (a symbol or a region). Unique on (date, entity, feature_name) and
// replaced wholesale when the pipeline reruns for that date.
type FeatureVector struct {
	BaseModel
	Date        time.Time `gorm:"not null;uniqueIndex:idx_feature_key;type:date"`
	Entity      string    `gorm:"not null;uniqueIndex:idx_feature_key"`
	FeatureName string    `gorm:"not null;uniqueIndex:idx_feature_key"`
	Value       float64   `gorm:"not null"`
	Unit        string
}
