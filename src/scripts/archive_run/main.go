package main

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"cropbot/src/config"
	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/metrics"
	"cropbot/src/utils/general"
)

// Archives the artifacts of a finished run to the configured GCS bucket:
// the forecast band plot and, when the file metrics writer is enabled,
// the metrics CSV. Usage: archive_run <YYYY-MM-DD>

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <YYYY-MM-DD>", os.Args[0])
	}
	asOf, err := time.Parse("2006-01-02", os.Args[1])
	if err != nil {
		log.Fatalf("Invalid date %q: %v", os.Args[1], err)
	}
	asOf = datamodels.Day(asOf)

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if appConfig.StorageConfig.Bucket == "" {
		log.Fatalf("No storage bucket configured")
	}

	db, err := database.NewDBConnection(appConfig.DatabaseConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()

	history, err := db.GetPriceHistory(ctx, appConfig.PipelineConfig.Symbol, asOf, 120)
	if err != nil {
		log.Fatalf("Failed to read price history: %v", err)
	}
	forecasts, err := db.GetEnsembleForecasts(ctx, asOf)
	if err != nil {
		log.Fatalf("Failed to read forecasts: %v", err)
	}
	if len(forecasts) == 0 {
		log.Fatalf("No forecasts stored for %s, nothing to archive", asOf.Format("2006-01-02"))
	}

	plotPath := filepath.Join(os.TempDir(), "forecast_"+asOf.Format("2006-01-02")+".png")
	plotErr := metrics.NewForecastPlotter().
		WithHistory(history).
		WithForecasts(forecasts).
		WithFileOutput(plotPath).
		Plot()
	if plotErr != nil {
		log.Fatalf("Failed to render forecast plot: %v", plotErr)
	}

	prefix := path.Join(appConfig.StorageConfig.ArtifactPrefix, asOf.Format("2006-01-02"))

	if err := general.UploadFileToBucket(ctx, plotPath,
		appConfig.StorageConfig.Bucket, path.Join(prefix, "forecast.png")); err != nil {
		log.Fatalf("Failed to upload plot: %v", err)
	}
	log.Printf("Uploaded %s to gs://%s/%s", plotPath, appConfig.StorageConfig.Bucket, path.Join(prefix, "forecast.png"))

	if appConfig.MetricsWriter != nil && appConfig.MetricsWriter.FileWriter && appConfig.MetricsWriter.FilePath != "" {
		if _, statErr := os.Stat(appConfig.MetricsWriter.FilePath); statErr == nil {
			object := path.Join(prefix, "metrics.csv")
			if err := general.UploadFileToBucket(ctx, appConfig.MetricsWriter.FilePath,
				appConfig.StorageConfig.Bucket, object); err != nil {
				log.Fatalf("Failed to upload metrics file: %v", err)
			}
			log.Printf("Uploaded %s to gs://%s/%s", appConfig.MetricsWriter.FilePath, appConfig.StorageConfig.Bucket, object)
		}
	}
}
