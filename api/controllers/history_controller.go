package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/transfer"
	"github.com/moyoez/excel-console/types"
)

// LogHistory is the cached view of the backend upload logs.
type LogHistory interface {
	List(ctx context.Context, limit int) ([]types.UploadLogEntry, error)
	Get(ctx context.Context, id int64) (*types.UploadLogEntry, error)
	Last() []types.UploadLogEntry
}

// BackendStatus reports on the backend itself.
type BackendStatus interface {
	BaseURL() string
	Stats(ctx context.Context) (*types.UploadStats, error)
	Health(ctx context.Context) error
}

type HistoryController struct {
	history   LogHistory
	backend   BackendStatus
	probeICMP bool
}

func NewHistoryController(history LogHistory, backend BackendStatus, probeICMP bool) *HistoryController {
	return &HistoryController{
		history:   history,
		backend:   backend,
		probeICMP: probeICMP,
	}
}

// HandleLogs lists recent uploads. On failure the last good page is returned
// alongside the error.
// GET /api/console/v1/logs?limit=N
func (ctrl *HistoryController) HandleLogs(c *gin.Context) {
	entries, err := ctrl.history.List(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		c.JSON(remoteStatus(err), tool.FastReturnErrorWithData(
			transfer.UserMessage(err, "Upload logs unavailable"),
			map[string]any{"data": ctrl.history.Last()},
		))
		return
	}
	if entries == nil {
		entries = []types.UploadLogEntry{}
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(entries))
}

// GET /api/console/v1/logs/:id
func (ctrl *HistoryController) HandleLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid log id"))
		return
	}
	entry, err := ctrl.history.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(remoteStatus(err), tool.FastReturnError(transfer.UserMessage(err, "Upload log unavailable")))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(entry))
}

// HandleStats relays the backend statistics for charting clients.
// GET /api/console/v1/stats
func (ctrl *HistoryController) HandleStats(c *gin.Context) {
	stats, err := ctrl.backend.Stats(c.Request.Context())
	if err != nil {
		c.JSON(remoteStatus(err), tool.FastReturnError(transfer.UserMessage(err, "Statistics unavailable")))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(stats))
}

// HandleHealth checks the backend over HTTP and, when enabled, with one ICMP echo.
// GET /api/console/v1/health
func (ctrl *HistoryController) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := gin.H{"backend": ctrl.backend.BaseURL()}
	status := http.StatusOK
	if err := ctrl.backend.Health(ctx); err != nil {
		tool.DefaultLogger.Warnf("[Health] backend unreachable: %v", err)
		resp["reachable"] = false
		resp["error"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp["reachable"] = true
	}

	if ctrl.probeICMP {
		host, err := tool.HostFromURL(ctrl.backend.BaseURL())
		if err == nil {
			var probe tool.ProbeResult
			probe, err = tool.ProbeHost(ctx, host, 2*time.Second)
			resp["icmp"] = probe
		}
		if err != nil {
			resp["icmpError"] = err.Error()
		}
	}
	c.JSON(status, resp)
}
