// Package httpserver exposes the assistant's observation surface: health,
// state snapshot, metrics and a live event stream. The voice pipeline
// never depends on it.
package httpserver

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/events"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/metrics"
)

// Status is the snapshot served at /status.
type Status struct {
	State       string `json:"state"`
	Speaking    bool   `json:"speaking"`
	FAQEntries  int    `json:"faq_entries"`
	RAGDocs     int    `json:"rag_documents"`
	RAGEnabled  bool   `json:"rag_enabled"`
	OllamaModel string `json:"ollama_model"`
}

// New creates a configured Echo server instance.
func New(status func() Status, hub *events.Hub, log *logrus.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, status())
	})

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.GET("/events", eventsHandler(hub, log))

	return e
}

var upgrader = websocket.Upgrader{
	// Local observation endpoint; no cross-origin restrictions.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventsHandler upgrades to a websocket and streams hub events as JSON
// until the client goes away.
func eventsHandler(hub *events.Hub, log *logrus.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		sub, cancel := hub.Subscribe()
		defer cancel()

		// Drain client frames so close/ping handling works; we never
		// expect meaningful input on this socket.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		for ev := range sub {
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("event subscriber disconnected")
				return nil
			}
		}
		return nil
	}
}
