package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-sync/internal/app"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// SyncHandler exposes the reconciler to a decision surface such as quotectl.
type SyncHandler struct {
	service *app.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(service *app.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

// Sync handles POST /api/v1/sync. A run that pauses on conflicts still answers 200;
// the outcome field tells the caller to resolve.
func (h *SyncHandler) Sync(c *gin.Context) {
	report, err := h.service.Sync(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, reportResponse(report))
}

// Status handles GET /api/v1/sync.
func (h *SyncHandler) Status(c *gin.Context) {
	snap, err := h.service.Snapshot(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SyncStatusResponse{
		Status:       string(snap.Status),
		State:        snap.State,
		LastSyncAt:   snap.LastSyncAt,
		LastError:    snap.LastError,
		PendingCount: len(snap.Pending),
	})
}

// Conflicts handles GET /api/v1/sync/conflicts.
func (h *SyncHandler) Conflicts(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ConflictsResponse{Conflicts: dto.ConflictsFromDomain(h.service.Pending())})
}

// Resolve handles POST /api/v1/sync/resolve.
func (h *SyncHandler) Resolve(c *gin.Context) {
	var req dto.ResolveRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	policy, err := domain.ParsePolicy(req.Policy)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	report, err := h.service.Resolve(c.Request.Context(), policy)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, reportResponse(report))
}

// Discard handles DELETE /api/v1/sync/conflicts.
func (h *SyncHandler) Discard(c *gin.Context) {
	c.JSON(http.StatusOK, dto.DiscardResponse{Discarded: h.service.Discard(c.Request.Context())})
}

// RegisterRoutes registers status reads on rg and the state-changing decisions on editor.
func (h *SyncHandler) RegisterRoutes(rg, editor *gin.RouterGroup) {
	rg.POST("/sync", h.Sync)
	rg.GET("/sync", h.Status)
	rg.GET("/sync/conflicts", h.Conflicts)

	editor.POST("/sync/resolve", h.Resolve)
	editor.DELETE("/sync/conflicts", h.Discard)
}

func reportResponse(r app.Report) dto.SyncReportResponse {
	resp := dto.SyncReportResponse{
		RunID:      r.RunID,
		Outcome:    string(r.Outcome),
		State:      r.State,
		Added:      r.Added,
		Unchanged:  r.Unchanged,
		Duplicates: r.Duplicates,
		Policy:     string(r.Policy),
		Replaced:   r.Replaced,
		Inserted:   r.Inserted,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}

	if len(r.Conflicts) > 0 {
		resp.Conflicts = dto.ConflictsFromDomain(r.Conflicts)
	}

	return resp
}
