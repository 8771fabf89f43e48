package http

import (
	"context"
	"strconv"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	"refdata-seeder/internal/seeding/usecase"
	"refdata-seeder/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	probeTimeout        = 5 * time.Second
)

// HealthChecker probes the external dependencies of the engine
type HealthChecker interface {
	Health(ctx context.Context) model.HealthReport
}

// StorageStatsProvider summarizes the blob store
type StorageStatsProvider interface {
	StorageStats(ctx context.Context) (*usecase.StorageStats, error)
}

// StatusHandler serves read-only operational endpoints
type StatusHandler struct {
	Health   HealthChecker
	Assets   StorageStatsProvider
	Runs     repository.RunReporter
	Gatherer prometheus.Gatherer
	Log      logger.Logger
}

// NewStatusHandler creates a StatusHandler. Nil dependencies disable their routes' data.
func NewStatusHandler(health HealthChecker, assets StorageStatsProvider, runs repository.RunReporter, gatherer prometheus.Gatherer, log logger.Logger) *StatusHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &StatusHandler{
		Health:   health,
		Assets:   assets,
		Runs:     runs,
		Gatherer: gatherer,
		Log:      log.WithComponent("status-http"),
	}
}

// RegisterRoutes mounts the status endpoints on router
func (h *StatusHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.GetHealth)
	if h.Gatherer != nil {
		router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
	router.Get("/assets/stats", h.GetStorageStats)
	router.Get("/runs/latest", h.GetLatestRun)
	router.Get("/runs", h.ListRuns)
}

// GetHealth reports 200 when every dependency is healthy and 503 otherwise
func (h *StatusHandler) GetHealth(c *fiber.Ctx) error {
	if h.Health == nil {
		return c.JSON(fiber.Map{"healthy": true})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	report := h.Health.Health(ctx)
	if !report.Healthy {
		h.Log.Warnf("Health check failed: %+v", report.Components)
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

func (h *StatusHandler) GetStorageStats(c *fiber.Ctx) error {
	if h.Assets == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "storage_not_configured",
			"message": "No blob store is configured",
		})
	}
	stats, err := h.Assets.StorageStats(c.UserContext())
	if err != nil {
		h.Log.Errorf("Storage stats failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "storage_unavailable",
			"message": err.Error(),
		})
	}
	return c.JSON(stats)
}

// GetLatestRun returns the most recent run summary
func (h *StatusHandler) GetLatestRun(c *fiber.Ctx) error {
	if h.Runs == nil {
		return notFoundRun(c)
	}
	summary, err := h.Runs.Latest(c.UserContext())
	if err != nil {
		h.Log.Errorf("Latest run lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "run_history_unavailable",
			"message": err.Error(),
		})
	}
	if summary == nil {
		return notFoundRun(c)
	}
	return c.JSON(summary)
}

// ListRuns returns up to ?limit= summaries, newest first
func (h *StatusHandler) ListRuns(c *fiber.Ctx) error {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and " + strconv.Itoa(maxHistoryLimit),
			})
		}
		limit = n
	}
	if h.Runs == nil {
		return c.JSON(fiber.Map{"runs": []*model.RunSummary{}})
	}
	runs, err := h.Runs.History(c.UserContext(), int64(limit))
	if err != nil {
		h.Log.Errorf("Run history lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "run_history_unavailable",
			"message": err.Error(),
		})
	}
	if runs == nil {
		runs = []*model.RunSummary{}
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func notFoundRun(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   "no_runs",
		"message": "No seeding run has been recorded yet",
	})
}
