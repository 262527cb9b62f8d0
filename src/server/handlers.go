package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"cropbot/src/datamodels"
)

// @title Cropbot API
// @version 1.0
// @description API server for the Cropbot forecast and signal pipeline
// @host localhost:8080
// @BasePath /

// WebSocketMessageType represents the type of WebSocket message
// @Description Type of message being sent over WebSocket connection
type WebSocketMessageType string

// WebSocket message type constants
const (
	// Subscribe message type for following a date's signal
	Subscribe WebSocketMessageType = "subscribe"
	// Command message type for triggering pipeline actions
	Command WebSocketMessageType = "command"
)

// WebSocketMessage represents a message sent over WebSocket
// @Description Message structure for WebSocket communication
type WebSocketMessage struct {
	// Type of the WebSocket message (subscribe or command)
	// Required: true
	// Enum: subscribe, command
	MessageType WebSocketMessageType `json:"message_type" example:"subscribe"`
	// Raw JSON message payload
	// Required: true
	Message []byte `json:"message"`
}

// WebSocketResponse represents a response sent back over WebSocket
// @Description Response structure for WebSocket communication
type WebSocketResponse struct {
	// Whether the operation was successful
	// Required: true
	Success bool `json:"success" example:"true"`
	// Response payload data
	// Required: false
	Data any `json:"data"`
	// Error message if operation failed
	// Required: false
	Error string `json:"error" example:"Failed to process message"`
}

type CommandAction string

// Command action constants
const (
	Run CommandAction = "run"
)

// CommandData represents a command to be sent over WebSocket
// @Description Data structure for command messages
type CommandData struct {
	// Command action to be performed
	// Required: true
	Action CommandAction `json:"action" example:"run"`
	// As-of date for the action, YYYY-MM-DD
	// Required: true
	Date string `json:"date" example:"2025-06-02"`
}

// SubscribeData names the date whose signal the client wants pushed
// @Description Data structure for subscribe messages
type SubscribeData struct {
	// As-of date to follow, YYYY-MM-DD
	// Required: true
	Date string `json:"date" example:"2025-06-02"`
}

// RegisterHealthCheck registers the health check endpoint
// @Summary Health check endpoint
// @Description Returns health status of the Cropbot service
// @Tags health
// @Produce plain
// @Success 200 {string} string "Cropbot is healthy"
// @Router /health [get]
func (s *Server) RegisterHealthCheck() {
	s.httpMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Cropbot is healthy"))
	})
}

// RegisterApiRoutes registers the read endpoints and the pipeline trigger
func (s *Server) RegisterApiRoutes() {
	s.httpMux.HandleFunc("/api/signal", s.handleGetSignal)
	s.httpMux.HandleFunc("/api/forecasts", s.handleGetForecasts)
	s.httpMux.HandleFunc("/api/features", s.handleGetFeatures)
	s.httpMux.HandleFunc("/api/explanations", s.handleGetExplanations)
	s.httpMux.HandleFunc("/api/runs", s.handleGetRuns)
	s.httpMux.HandleFunc("/api/run", s.handleTriggerRun)
}

// RegisterWebSocketHandler registers the WebSocket endpoint
// @Summary WebSocket connection endpoint
// @Description Establishes WebSocket connection for real-time communication
// @Tags websocket
// @Accept json
// @Produce json
// @Success 101 {string} string "Switching protocols to websocket"
// @Router /ws [get]
func (s *Server) RegisterWebSocketHandler() {
	s.httpMux.HandleFunc("/ws", s.handleWebSocket)
}

// RegisterSwagger registers the Swagger documentation endpoint
// @Summary Swagger documentation endpoint
// @Description Serves Swagger API documentation UI and JSON spec
// @Tags docs
// @Accept json
// @Produce json,html
// @Success 200 {string} string "Swagger documentation UI"
// @Router /swagger [get]
func (s *Server) RegisterSwagger() {
	s.httpMux.HandleFunc("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseDate reads the date query parameter, defaulting to today.
func parseDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return datamodels.Day(time.Now().UTC()), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return datamodels.Day(date), nil
}

// handleGetSignal returns the signal for a date
// @Summary Get the signal for a date
// @Description Returns the terminal BUY/WATCH/HOLD signal for the as-of date
// @Tags signals
// @Produce json
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {object} datamodels.Signal
// @Failure 404 {object} map[string]string
// @Router /api/signal [get]
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	signal, err := s.db.GetSignal(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if signal == nil {
		writeError(w, http.StatusNotFound, "no signal for "+date.Format("2006-01-02"))
		return
	}
	writeJSON(w, http.StatusOK, signal)
}

// handleGetForecasts returns the ensemble forecasts for a date
// @Summary Get ensemble forecasts for a date
// @Description Returns the reconciled per-horizon forecasts for the as-of date
// @Tags forecasts
// @Produce json
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {array} datamodels.EnsembleForecast
// @Router /api/forecasts [get]
func (s *Server) handleGetForecasts(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	forecasts, err := s.db.GetEnsembleForecasts(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, forecasts)
}

// handleGetFeatures returns the feature vectors for a date
// @Summary Get feature vectors for a date
// @Description Returns the engineered features stored for the as-of date
// @Tags features
// @Produce json
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {array} datamodels.FeatureVector
// @Router /api/features [get]
func (s *Server) handleGetFeatures(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vectors, err := s.db.GetFeatureVectors(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, vectors)
}

// handleGetExplanations returns the explanations stored for a date
// @Summary Get explanations for a date
// @Description Returns the model and signal explanations stored for the as-of date
// @Tags explanations
// @Produce json
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {array} datamodels.Explanation
// @Router /api/explanations [get]
func (s *Server) handleGetExplanations(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	explanations, err := s.db.GetExplanations(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, explanations)
}

// handleGetRuns returns run provenance by id or date
// @Summary Get model runs
// @Description Returns one run with its forecast points when run_id is set, otherwise all runs started on the date
// @Tags runs
// @Produce json
// @Param run_id query string false "Run ID"
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/runs [get]
func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if runId := r.URL.Query().Get("run_id"); runId != "" {
		run, err := s.db.GetModelRun(r.Context(), runId)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "no run with id "+runId)
			return
		}
		points, err := s.db.GetForecastPoints(r.Context(), runId)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "forecast_points": points})
		return
	}

	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.db.GetModelRunsByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleTriggerRun runs the pipeline synchronously for a date
// @Summary Trigger a pipeline run
// @Description Runs the full pipeline for the as-of date and returns the stage summary
// @Tags runs
// @Produce json
// @Param date query string false "As-of date, YYYY-MM-DD (defaults to today)"
// @Success 200 {object} pipeline.Summary
// @Failure 409 {object} map[string]string
// @Router /api/run [post]
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no pipeline attached")
		return
	}
	date, err := parseDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.orchestrator.Run(r.Context(), date)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
