package datamodels

import (
	"time"

	"cropbot/src/utils/errors"
)

type CropbotConfig struct {
	DatabaseConfig PostgresConfig       `mapstructure:"postgres"`
	PipelineConfig PipelineConfig       `mapstructure:"pipeline"`
	BaselineConfig BaselineConfig       `mapstructure:"baseline"`
	SequenceConfig SequenceConfig       `mapstructure:"sequence"`
	EnsembleConfig EnsembleConfig       `mapstructure:"ensemble"`
	SignalPolicy   SignalPolicyConfig   `mapstructure:"signal_policy"`
	ServerConfig   ServerConfig         `mapstructure:"server"`
	MetricsWriter  *MetricsWriterConfig `mapstructure:"metrics_writer"`
	StorageConfig  StorageConfig        `mapstructure:"storage"`
}

func (c *CropbotConfig) Validate() error {
	if err := c.PipelineConfig.Validate(); err != nil {
		return err
	}
	if err := c.EnsembleConfig.Validate(); err != nil {
		return err
	}
	return c.SignalPolicy.Validate()
}

type PostgresConfig struct {
	Database string `mapstructure:"database"`
	Host     string `mapstructure:"host"`
	Password string `mapstructure:"password"`
	Port     int    `mapstructure:"port"`
	SSL      struct {
		CA   string `mapstructure:"ca"`
		Cert string `mapstructure:"cert"`
		Key  string `mapstructure:"key"`
		Mode string `mapstructure:"mode"`
	} `mapstructure:"ssl"`
	URI  string `mapstructure:"uri"`
	User string `mapstructure:"user"`
}

// PipelineConfig drives one pipeline invocation. It is passed in explicitly,
// never held as process-wide state.
type PipelineConfig struct {
	Symbol         Symbol        `mapstructure:"symbol"`
	Horizons       []int         `mapstructure:"horizons"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	LockAttempts   int           `mapstructure:"lock_attempts"`
	LockBackoff    time.Duration `mapstructure:"lock_backoff"`
	WeatherRegions []string      `mapstructure:"weather_regions"`
}

func (p *PipelineConfig) Validate() error {
	if p.Symbol == "" {
		return errors.New("pipeline symbol is required")
	}
	if len(p.Horizons) == 0 {
		return errors.New("at least one forecast horizon is required")
	}
	for _, h := range p.Horizons {
		if h <= 0 {
			return errors.Newf("horizon must be positive, got %d", h)
		}
	}
	if p.LockAttempts <= 0 {
		return errors.New("lock_attempts must be greater than 0")
	}
	return nil
}

// ShortestHorizon returns the smallest configured horizon in days.
func (p *PipelineConfig) ShortestHorizon() int {
	shortest := p.Horizons[0]
	for _, h := range p.Horizons[1:] {
		if h < shortest {
			shortest = h
		}
	}
	return shortest
}

type BaselineConfig struct {
	MinHistory     int     `mapstructure:"min_history"`
	TrainingWindow int     `mapstructure:"training_window"`
	BandMultiplier float64 `mapstructure:"band_multiplier"`
}

type SequenceConfig struct {
	Lookback    int     `mapstructure:"lookback"`
	Seed        int64   `mapstructure:"seed"`
	RidgeLambda float64 `mapstructure:"ridge_lambda"`
}

type EnsembleConfig struct {
	BaselineWeight         float64 `mapstructure:"baseline_weight"`
	SequenceWeight         float64 `mapstructure:"sequence_weight"`
	SingleSourceConfidence float64 `mapstructure:"single_source_confidence"`
}

func (e *EnsembleConfig) Validate() error {
	if e.BaselineWeight < 0 || e.SequenceWeight < 0 {
		return errors.New("ensemble weights cannot be negative")
	}
	if e.BaselineWeight+e.SequenceWeight == 0 {
		return errors.New("ensemble weights cannot both be zero")
	}
	if e.SingleSourceConfidence < 0 || e.SingleSourceConfidence > 100 {
		return errors.New("single_source_confidence must be within [0, 100]")
	}
	return nil
}

// SignalPolicyConfig holds the decision thresholds for the signal engine.
// The values shipped in config files are a starting policy, not a finalized
// one; nothing in the engine hard-codes them.
type SignalPolicyConfig struct {
	HighRiskVolatility float64 `mapstructure:"high_risk_volatility"`
	CostCeiling        float64 `mapstructure:"cost_ceiling"`
	ConfidenceBar      float64 `mapstructure:"confidence_bar"`
	VolumeLbs          float64 `mapstructure:"volume_lbs"`
	PriceScale         float64 `mapstructure:"price_scale"`
	TopFeatureCount    int     `mapstructure:"top_feature_count"`
}

func (s *SignalPolicyConfig) Validate() error {
	if s.HighRiskVolatility <= 0 {
		return errors.New("high_risk_volatility must be greater than 0")
	}
	if s.VolumeLbs <= 0 {
		return errors.New("volume_lbs must be greater than 0")
	}
	if s.PriceScale <= 0 {
		return errors.New("price_scale must be greater than 0")
	}
	if s.ConfidenceBar < 0 || s.ConfidenceBar > 100 {
		return errors.New("confidence_bar must be within [0, 100]")
	}
	return nil
}

type ServerConfig struct {
	Port            string `mapstructure:"port"`
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
	HealthEndpoint  string `mapstructure:"health_endpoint"`
}

type MetricsWriterConfig struct {
	WsWriter   bool   `mapstructure:"ws_writer"`
	FileWriter bool   `mapstructure:"file_writer"`
	FilePath   string `mapstructure:"file_path"`
}

type StorageConfig struct {
	Bucket         string `mapstructure:"bucket"`
	ArtifactPrefix string `mapstructure:"artifact_prefix"`
}
