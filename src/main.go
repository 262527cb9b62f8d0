package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cropbot/src/config"
	"cropbot/src/database"
	"cropbot/src/datamodels"
	"cropbot/src/metrics"
	"cropbot/src/pipeline"
	"cropbot/src/server"
	"cropbot/src/version"
)

func main() {
	initializeLogging()

	dateFlag := flag.String("date", "", "run the pipeline for this as-of date (YYYY-MM-DD)")
	fromFlag := flag.String("from", "", "start of a date range to run (YYYY-MM-DD)")
	toFlag := flag.String("to", "", "end of a date range to run (YYYY-MM-DD)")
	serveFlag := flag.Bool("serve", false, "start the API server after any runs")
	plotFlag := flag.String("plot", "", "write a forecast band PNG to this path after a single run")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cropbotConfig, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	buildInfo := version.GetBuildInfo()
	slog.Info("Ramping up Cropbot",
		"symbol", cropbotConfig.PipelineConfig.Symbol,
		"version", buildInfo["version"], "commit", buildInfo["commit"])

	db, err := database.NewDBConnection(cropbotConfig.DatabaseConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	metricsWriter, wsWriter := buildMetricsWriters(db, cropbotConfig.MetricsWriter)
	defer metricsWriter.Close()

	orchestrator := pipeline.NewOrchestrator(db, *cropbotConfig, metricsWriter)

	if *dateFlag != "" {
		asOf, parseErr := time.Parse("2006-01-02", *dateFlag)
		if parseErr != nil {
			slog.Error("Invalid -date", "value", *dateFlag, "error", parseErr)
			os.Exit(1)
		}
		summary, runErr := orchestrator.Run(ctx, asOf)
		reportSummary(summary, runErr)
		if runErr != nil {
			os.Exit(1)
		}
		if *plotFlag != "" {
			plotRun(ctx, db, cropbotConfig.PipelineConfig.Symbol, datamodels.Day(asOf), *plotFlag)
		}
	}

	if *fromFlag != "" && *toFlag != "" {
		from, fromErr := time.Parse("2006-01-02", *fromFlag)
		to, toErr := time.Parse("2006-01-02", *toFlag)
		if fromErr != nil || toErr != nil {
			slog.Error("Invalid -from/-to", "from", *fromFlag, "to", *toFlag)
			os.Exit(1)
		}
		summaries, rangeErr := orchestrator.RunRange(ctx, from, to)
		for i := range summaries {
			reportSummary(&summaries[i], nil)
		}
		if rangeErr != nil {
			slog.Error("Range run finished with failures", "error", rangeErr)
			os.Exit(1)
		}
	}

	if !*serveFlag {
		return
	}

	srv := server.NewServer(":" + cropbotConfig.ServerConfig.Port).
		WithDatabase(db).
		WithOrchestrator(orchestrator)
	if wsWriter != nil {
		srv = srv.WithMetricsWriter(wsWriter)
	}

	go func() {
		slog.Info("Starting server")
		if err := srv.Start(ctx); err != nil {
			slog.Error("Server failed", "error", err)
		}
	}()
	//go server.StartHeartbeat(ctx)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// buildMetricsWriters assembles the configured writers plus the always-on
// database writer. The websocket writer is returned separately so the server
// can attach clients to it.
func buildMetricsWriters(db database.CropbotDatabase, config *datamodels.MetricsWriterConfig) (metrics.MetricsWriter, *metrics.WebsocketMetricsWriter) {
	var writers []metrics.MetricsWriter
	var wsWriter *metrics.WebsocketMetricsWriter

	if config != nil {
		if config.WsWriter {
			wsWriter = metrics.NewWebSocketMetricsWriter()
			writers = append(writers, wsWriter)
		}
		if config.FileWriter {
			fileWriter, err := metrics.NewFileMetricsWriter(config.FilePath, metrics.FormatCSV)
			if err != nil {
				slog.Error("Failed to create file metrics writer", "error", err)
			} else {
				writers = append(writers, fileWriter)
			}
		}
	}

	dbWriter, err := metrics.NewDBMetricsWriter(db)
	if err != nil {
		slog.Error("Failed to create db metrics writer", "error", err)
	} else {
		writers = append(writers, dbWriter)
	}

	return metrics.NewMultiMetricsWriter(writers...), wsWriter
}

func reportSummary(summary *pipeline.Summary, runErr error) {
	if summary == nil {
		slog.Error("Pipeline produced no summary", "error", runErr)
		return
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		slog.Error("Failed to encode summary", "error", err)
		return
	}
	if runErr != nil {
		slog.Error("Pipeline run failed", "date", summary.AsOfDate.Format("2006-01-02"), "error", runErr)
	}
	os.Stdout.Write(append(encoded, '\n'))
}

func plotRun(ctx context.Context, db database.CropbotDatabase, symbol datamodels.Symbol, asOf time.Time, path string) {
	history, err := db.GetPriceHistory(ctx, symbol, asOf, 120)
	if err != nil {
		slog.Error("Failed to read history for plot", "error", err)
		return
	}
	forecasts, err := db.GetEnsembleForecasts(ctx, asOf)
	if err != nil {
		slog.Error("Failed to read forecasts for plot", "error", err)
		return
	}
	plotErr := metrics.NewForecastPlotter().
		WithHistory(history).
		WithForecasts(forecasts).
		WithFileOutput(path).
		Plot()
	if plotErr != nil {
		slog.Error("Failed to render forecast plot", "error", plotErr)
		return
	}
	slog.Info("Wrote forecast plot", "path", path)
}

func initializeLogging() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	switch strings.ToLower(logLevel) {
	case "debug":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})))
	case "info":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	default:
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	}
}
