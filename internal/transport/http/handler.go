package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Service is the data the status API exposes.
type Service interface {
	KnownCommands() []string
	Players(ctx context.Context) []string
	History(ctx context.Context, user string, limit int) ([]domain.HistoryEntry, error)
	Audit(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// Status reports live process state.
type Status interface {
	ConsoleConnected() bool
	Sessions() int
}

// Handler handles HTTP requests.
type Handler struct {
	service Service
	status  Status
}

// NewHandler creates a new handler.
func NewHandler(service Service, status Status) *Handler {
	return &Handler{
		service: service,
		status:  status,
	}
}

// RegisterRoutes registers the routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.GET("/v1/commands", h.ListCommands)
	e.GET("/v1/players", h.ListPlayers)
	e.GET("/v1/history", h.ListHistory)
	e.GET("/v1/audit", h.ListAudit)
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"console_connected": h.status.ConsoleConnected(),
		"sessions":          h.status.Sessions(),
	})
}

// ListCommands returns the known console commands.
// GET /v1/commands
func (h *Handler) ListCommands(c echo.Context) error {
	commands := h.service.KnownCommands()
	if commands == nil {
		commands = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"commands": commands})
}

// ListPlayers returns the online players.
// GET /v1/players
func (h *Handler) ListPlayers(c echo.Context) error {
	players := h.service.Players(c.Request().Context())
	if players == nil {
		players = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"players": players})
}

// ListHistory returns submitted lines, newest first.
// GET /v1/history?user=&limit=
func (h *Handler) ListHistory(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
	}

	entries, err := h.service.History(c.Request().Context(), c.QueryParam("user"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": entries})
}

// ListAudit returns audit entries, newest first.
// GET /v1/audit?limit=
func (h *Handler) ListAudit(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
	}

	entries, err := h.service.Audit(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"audit": entries})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
