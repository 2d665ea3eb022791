package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/tasks"
)

func NewHandler(db *database.DB, postRepo database.PostRepository,
	scoreRepo database.ScoreRepository, accountList []accounts.Account,
	prober Prober, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		db:          db,
		postRepo:    postRepo,
		scoreRepo:   scoreRepo,
		accountList: accountList,
		prober:      prober,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		slog.Error("Database ping failed", "error", err)
		health["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		health["database"] = "ok"
	}

	if h.prober != nil {
		probeCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if err := h.prober.Probe(probeCtx); err != nil {
			slog.Warn("Federated bridge probe failed", "error", err)
			health["federated_bridge"] = "unreachable"
		} else {
			health["federated_bridge"] = "ok"
		}
	}

	health["accounts"] = len(h.accountList)

	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"accounts": len(h.accountList),
	}

	if count, err := h.postRepo.GetPostCount(); err == nil {
		stats["posts"] = count
	} else {
		slog.Error("Database error", "operation", "get_post_count", "error", err)
	}

	perAccount := make([]map[string]interface{}, 0, len(h.accountList))
	for _, account := range h.accountList {
		info := map[string]interface{}{"handle": account.Handle}
		if count, err := h.postRepo.GetAccountPostCount(account.Handle); err == nil {
			info["posts"] = count
		}
		perAccount = append(perAccount, info)
	}
	stats["per_account"] = perAccount

	if latest, err := h.scoreRepo.GetLatestReport(); err == nil && latest != nil {
		stats["last_report"] = map[string]interface{}{
			"run_date":   latest.RunDate,
			"sent":       latest.Sent,
			"created_at": latest.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, stats)
}

// GetLatestReport serves the most recent rendered report as HTML.
func (h *Handler) GetLatestReport(c *gin.Context) {
	report, err := h.scoreRepo.GetLatestReport()
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No report generated yet"})
		return
	}

	c.Header("X-Report-Date", report.RunDate)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.HTML))
}

type pricePoint struct {
	Series string  `json:"series" binding:"required"`
	Date   string  `json:"date" binding:"required"`
	Value  float64 `json:"value"`
}

// APIStorePrices ingests daily price points for the tracked series so
// the report run has something to correlate against.
func (h *Handler) APIStorePrices(c *gin.Context) {
	var points []pricePoint
	if err := c.ShouldBindJSON(&points); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload: " + err.Error()})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No price points provided"})
		return
	}

	// The whole batch is validated before anything is written.
	for _, p := range points {
		if !knownSeries(p.Series) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown series %q", p.Series)})
			return
		}
		if _, err := time.Parse("2006-01-02", p.Date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
	}

	for _, p := range points {
		err := h.postRepo.UpsertPrice(database.PricePoint{Series: p.Series, PriceDate: p.Date, Value: p.Value})
		if err != nil {
			slog.Error("Database error", "operation", "upsert_price", "series", p.Series, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stored": len(points)})
}

func knownSeries(name string) bool {
	for _, s := range tasks.PriceSeries {
		if s == name {
			return true
		}
	}
	return false
}

// APITriggerRun enqueues a full collection and report run.
func (h *Handler) APITriggerRun(c *gin.Context) {
	h.scheduler.EnqueueRun()
	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"message":  "Run enqueued",
		"accounts": len(h.accountList),
	})
}

// GetScores returns the stored sentiment aggregates for one day,
// defaulting to today.
func (h *Handler) GetScores(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	scores, err := h.scoreRepo.GetScores(date)
	if err != nil {
		slog.Error("Database error", "operation", "get_scores", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"date":   date,
		"scores": scores,
		"total":  len(scores),
	})
}
