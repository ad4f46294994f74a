package shopsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// StatusHandler reports one store's sync health: its registry row plus the
// latest run of each type.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := c.Param("store")
		ctx := c.Request.Context()

		cfg, err := models.ResolveStore(ctx, store)
		if err != nil {
			if errors.Is(err, models.ErrStoreNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "store not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		runLog := &models.RunLog{DB: config.GetDB()}
		response := gin.H{"store": cfg.Store, "shop_domain": cfg.ShopDomain}
		for _, syncType := range []string{models.SyncTypeInventory, models.SyncTypeOrders} {
			last, err := runLog.LastSuccessfulRun(ctx, store, syncType)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if last != nil && last.CompletedAt != nil {
				response["last_"+syncType+"_sync_at"] = last.CompletedAt.UTC().Format(time.RFC3339)
			}
		}
		c.JSON(http.StatusOK, response)
	}
}

// TriggerRequest is the body of POST /sync/trigger.
type TriggerRequest struct {
	Store    string `json:"store" binding:"required"`
	SyncType string `json:"sync_type" binding:"required,oneof=inventory orders"`
	DryRun   bool   `json:"dry_run"`
}

// TriggerHandler validates the request and publishes it; the push worker
// does the actual run so the HTTP caller never waits on API pagination.
func TriggerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":  "store and sync_type (inventory|orders) are required",
					"fields": utils.ProcessValidationErrors(validationErrors),
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "store and sync_type (inventory|orders) are required"})
			return
		}

		ctx := c.Request.Context()
		if req.Store != "all" {
			if _, err := models.ResolveStore(ctx, req.Store); err != nil {
				if errors.Is(err, models.ErrStoreNotFound) || errors.Is(err, models.ErrStoreInactive) {
					c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		payload := SyncPubSubPayload{Store: req.Store, SyncType: req.SyncType, DryRun: req.DryRun}
		if err := PublishSyncRequest(ctx, payload); err != nil {
			config.LogError(config.GetLogger(), "shopsync", "TriggerHandler", "Could not publish sync request", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not enqueue sync run"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"store": req.Store, "sync_type": req.SyncType, "enqueued": true})
	}
}

// RunsHandler lists recent run history for one store, newest first.
func RunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := c.Param("store")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		runLog := &models.RunLog{DB: config.GetDB()}
		runs, err := runLog.RecentRuns(c.Request.Context(), store, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"store": store, "runs": runs})
	}
}

// RunDetailHandler returns one run with its item errors decoded from the
// details column.
func RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var entry models.SyncLog
		err = config.GetDB().WithContext(c.Request.Context()).Where("id = ?", runId).Take(&entry).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var itemErrors []models.ItemError
		if len(entry.Details) > 0 {
			_ = json.Unmarshal(entry.Details, &itemErrors)
		}
		c.JSON(http.StatusOK, gin.H{"run": entry, "item_errors": itemErrors})
	}
}

// ReportHandler builds the current inventory plan without applying it and
// streams the mismatch report as a spreadsheet download.
func ReportHandler(runner *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := c.Param("store")
		ctx := c.Request.Context()

		if store == "all" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mismatch report runs one store at a time"})
			return
		}
		targets, err := runner.Resolve(ctx, store)
		if err != nil {
			if errors.Is(err, models.ErrStoreNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "store not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(targets) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "store not found"})
			return
		}
		cfg := targets[0]

		bundles, err := runner.LoadBundles(ctx, cfg.Store)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		reconciler := &InventoryReconciler{
			Store:      cfg,
			Storefront: runner.NewStorefront(cfg),
			Erp:        runner.NewErp(cfg),
			Bundles:    bundles,
			Logger:     runner.Logger,
		}
		plan, err := reconciler.BuildPlan(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+store+"-mismatch-report.xlsx")
		if err := WriteMismatchReportXlsx(c.Writer, cfg.Store, plan); err != nil {
			config.LogError(config.GetLogger(), "shopsync", "ReportHandler", "Could not write report", store, err)
		}
	}
}

// DuplicatesHandler runs the advisory duplicate scan synchronously; it is
// read-only so there is no run to enqueue.
func DuplicatesHandler(runner *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := c.Param("store")
		days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
		if days <= 0 {
			days = 7
		}
		since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

		groups, err := runner.CheckDuplicates(c.Request.Context(), store, since)
		if err != nil {
			if errors.Is(err, models.ErrStoreNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "store not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		summaries := make([]string, 0, len(groups))
		for _, g := range groups {
			summaries = append(summaries, DescribeGroup(g))
		}
		c.JSON(http.StatusOK, gin.H{"store": store, "groups": groups, "summaries": summaries})
	}
}
