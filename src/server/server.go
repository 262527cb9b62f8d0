package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cropbot/src/database"
	"cropbot/src/metrics"
	"cropbot/src/pipeline"
)

type Server struct {
	addr          string
	upgrader      websocket.Upgrader
	httpMux       *http.ServeMux
	metricsWriter *metrics.WebsocketMetricsWriter
	db            database.CropbotDatabase
	orchestrator  *pipeline.Orchestrator
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all connections (for development purposes)
			},
		},
		httpMux: http.NewServeMux(),
	}
}

func (s *Server) WithMetricsWriter(metricsWriter *metrics.WebsocketMetricsWriter) *Server {
	s.metricsWriter = metricsWriter
	return s
}

func (s *Server) WithDatabase(db database.CropbotDatabase) *Server {
	s.db = db
	return s
}

func (s *Server) WithOrchestrator(orchestrator *pipeline.Orchestrator) *Server {
	s.orchestrator = orchestrator
	return s
}

func (s *Server) Start(ctx context.Context) error {
	s.RegisterHealthCheck()
	s.RegisterApiRoutes()
	s.RegisterWebSocketHandler()
	s.RegisterSwagger()
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.httpMux,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("Failed to close server", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Starting server on %s", s.addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	if s.metricsWriter != nil {
		s.metricsWriter.AddClient(conn)
		defer s.metricsWriter.RemoveClient(conn)
	}

	slog.Info("Client connected")

	welcomeMessage := WebSocketResponse{
		Success: true,
		Data:    "Welcome to the Cropbot WebSocket server",
	}
	if err := conn.WriteJSON(welcomeMessage); err != nil {
		slog.Error("Failed to send welcome message", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Error("Error reading message:", "error", err)
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(msg, &wsMessage); err != nil {
			slog.Error("Failed to unmarshal message", "error", err)
			continue
		}

		switch wsMessage.MessageType {
		case Subscribe:
			slog.Info("Server websocket received subscribe message")
			response := s.handleSubscribe(ctx, conn, wsMessage.Message)
			if err := conn.WriteJSON(response); err != nil {
				slog.Error("Failed to send subscribe response", "error", err)
				return
			}
		case Command:
			slog.Info("Server websocket received command message")
			commandResponse := s.handleCommand(ctx, wsMessage.Message)
			if err := conn.WriteJSON(commandResponse); err != nil {
				slog.Error("Failed to send command response", "error", err)
				return
			}
		default:
			slog.Info(fmt.Sprintf("Received unknown message type: %s", wsMessage.MessageType))
		}
	}
}

// handleSubscribe attaches the connection to signal notifications for a
// date; each completed signal for that date is pushed as it lands.
func (s *Server) handleSubscribe(ctx context.Context, conn *websocket.Conn, payload []byte) WebSocketResponse {
	if s.db == nil {
		return WebSocketResponse{Success: false, Error: "no database attached"}
	}

	var sub SubscribeData
	if err := json.Unmarshal(payload, &sub); err != nil {
		return WebSocketResponse{Success: false, Error: err.Error()}
	}
	if _, err := time.Parse("2006-01-02", sub.Date); err != nil {
		return WebSocketResponse{Success: false, Error: fmt.Sprintf("invalid date %q", sub.Date)}
	}

	subscriberId := s.db.NewSubscriber(ctx)
	ch, err := s.db.SubscribeToSignals(ctx, subscriberId, sub.Date)
	if err != nil {
		return WebSocketResponse{Success: false, Error: err.Error()}
	}

	go func() {
		defer func() {
			if err := s.db.UnsubscribeFromSignals(subscriberId, sub.Date); err != nil {
				slog.Warn("Failed to unsubscribe", "subscriber", subscriberId, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case action, ok := <-ch:
				if !ok {
					return
				}
				push := WebSocketResponse{Success: true, Data: map[string]string{"date": sub.Date, "action": action}}
				if err := conn.WriteJSON(push); err != nil {
					slog.Error("Failed to push signal notification", "error", err)
					return
				}
			}
		}
	}()

	return WebSocketResponse{Success: true, Data: "subscribed to " + sub.Date}
}

// handleCommand runs the pipeline for the requested date and returns the
// summary over the socket.
func (s *Server) handleCommand(ctx context.Context, payload []byte) WebSocketResponse {
	var commandData CommandData
	if err := json.Unmarshal(payload, &commandData); err != nil {
		slog.Error("Failed to unmarshal command payload", "error", err)
		return WebSocketResponse{
			Success: false,
			Error:   err.Error(),
		}
	}

	switch commandData.Action {
	case Run:
		if s.orchestrator == nil {
			return WebSocketResponse{Success: false, Error: "no pipeline attached"}
		}
		date, err := time.Parse("2006-01-02", commandData.Date)
		if err != nil {
			return WebSocketResponse{Success: false, Error: fmt.Sprintf("invalid date %q", commandData.Date)}
		}
		summary, err := s.orchestrator.Run(ctx, date)
		if err != nil {
			return WebSocketResponse{Success: false, Error: err.Error(), Data: summary}
		}
		return WebSocketResponse{Success: true, Data: summary}
	default:
		return WebSocketResponse{Success: false, Error: fmt.Sprintf("unknown action %q", commandData.Action)}
	}
}

func StartHeartbeat(ctx context.Context) {
	seconds := 10
	timer := time.NewTicker(time.Second * time.Duration(seconds))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down heartbeat")
			return
		case <-timer.C:
			slog.Info(fmt.Sprintf("%d second heartbeat", seconds))
		}
	}
}
