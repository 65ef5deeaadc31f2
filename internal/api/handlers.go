package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"polymarket-sniper/internal/config"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	bot      BotController
	cfg      config.DashboardConfig
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(bot BotController, cfg config.DashboardConfig, hub *Hub, logger *slog.Logger) *Handlers {
	h := &Handlers{
		bot:    bot,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
}

// isOriginAllowed decides whether a WebSocket origin may connect. With an
// allowlist configured, only exact matches pass. Without one, non-browser
// clients (empty origin), localhost, and same-host origins are allowed.
func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return u.Host == reqHost
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// HandleStatus returns the full bot state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.bot.Status())
}

// HandleMarkets returns the currently tradeable markets.
func (h *Handlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.bot.Markets())
}

// HandleTrades returns the trade log, most recent first.
func (h *Handlers) HandleTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.bot.Trades())
}

// HandleBotStart resumes trading.
func (h *Handlers) HandleBotStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.bot.StartTrading()
	writeJSON(w, map[string]bool{"running": true})
}

// HandleBotStop pauses trading. Open positions still settle.
func (h *Handlers) HandleBotStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.bot.StopTrading()
	writeJSON(w, map[string]bool{"running": false})
}

// HandleToggleDryRun flips paper/live mode and returns the new state.
func (h *Handlers) HandleToggleDryRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dryRun := h.bot.ToggleDryRun()
	writeJSON(w, map[string]bool{"dry_run": dryRun})
}

// HandleWebSocket upgrades the connection, sends the full state, then
// leaves the client subscribed to hub broadcasts.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	status := h.bot.Status()
	hello := Event{
		Type:      EventStatus,
		Timestamp: status.Timestamp,
		Data:      status,
	}
	data, err := json.Marshal(hello)
	if err != nil {
		h.logger.Error("failed to marshal status hello", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send status hello to client")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
