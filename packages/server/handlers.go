package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/docstore"
	"github.com/vogtb/gridsync/packages/grid"
	"github.com/vogtb/gridsync/packages/livews"
)

// Handlers serves the document API
type Handlers struct {
	store  *docstore.Store
	hub    *livews.Hub
	logger *slog.Logger
}

func NewHandlers(store *docstore.Store, hub *livews.Hub, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, hub: hub, logger: logger}
}

// RegisterRoutes mounts the document API on rg, normally /v1
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	docs := rg.Group("/documents")
	docs.GET("", h.HandleList)
	docs.GET("/:id", h.HandleLoad)
	docs.PUT("/:id", h.HandleSave)
	docs.POST("/:id/undo", h.HandleUndo)
	docs.POST("/:id/redo", h.HandleRedo)
	docs.GET("/:id/sessions", h.HandleLocks)
	docs.POST("/:id/sessions", h.HandleAcquire)
	docs.POST("/:id/sessions/:token/heartbeat", h.HandleHeartbeat)
	docs.DELETE("/:id/sessions/:token", h.HandleRelease)
	if h.hub != nil {
		docs.GET("/:id/live", h.HandleLive)
	}
}

func (h *Handlers) HandleList(c *gin.Context) {
	c.JSON(http.StatusOK, ListResponse{Documents: h.store.Documents()})
}

func (h *Handlers) HandleLoad(c *gin.Context) {
	snap, rev, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.document(c, snap, rev)
}

func (h *Handlers) HandleSave(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalid, Details: err.Error()})
		return
	}
	snap, err := grid.DecodeSnapshot(req.Snapshot)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid snapshot", Code: CodeInvalid, Details: err.Error()})
		return
	}
	rev, err := h.store.Save(c.Request.Context(), c.Param("id"), c.GetHeader(SessionHeader), snap, req.ExpectedRevision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RevisionResponse{Revision: rev})
}

func (h *Handlers) HandleUndo(c *gin.Context) {
	h.travel(c, h.store.Undo)
}

func (h *Handlers) HandleRedo(c *gin.Context) {
	h.travel(c, h.store.Redo)
}

func (h *Handlers) travel(c *gin.Context, fn func(ctx context.Context, id, token string, expected int64) (grid.Snapshot, int64, error)) {
	var req RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalid, Details: err.Error()})
		return
	}
	snap, rev, err := fn(c.Request.Context(), c.Param("id"), c.GetHeader(SessionHeader), req.ExpectedRevision)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.document(c, &snap, rev)
}

func (h *Handlers) HandleLocks(c *gin.Context) {
	locks := h.store.Locks(c.Param("id"))
	if locks == nil {
		locks = []collab.Lock{}
	}
	c.JSON(http.StatusOK, LocksResponse{Locks: locks})
}

func (h *Handlers) HandleAcquire(c *gin.Context) {
	var req AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "holder is required", Code: CodeInvalid, Details: err.Error()})
		return
	}
	token, err := h.store.Acquire(c.Request.Context(), c.Param("id"), req.Holder)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, AcquireResponse{Token: token})
}

func (h *Handlers) HandleHeartbeat(c *gin.Context) {
	if err := h.store.Heartbeat(c.Request.Context(), c.Param("id"), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) HandleRelease(c *gin.Context) {
	if err := h.store.Release(c.Request.Context(), c.Param("id"), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleLive upgrades to a live connection scoped to the document
func (h *Handlers) HandleLive(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, c.Param("id"))
}

func (h *Handlers) document(c *gin.Context, snap *grid.Snapshot, rev int64) {
	resp := DocumentResponse{Snapshot: json.RawMessage("null"), Revision: rev}
	if snap != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			h.fail(c, err)
			return
		}
		resp.Snapshot = data
	}
	c.JSON(http.StatusOK, resp)
}

// fail maps store errors onto status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	var conflict *collab.LockConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusLocked, ErrorResponse{Error: err.Error(), Code: CodeLocked, Holder: conflict.Holder})
	case errors.Is(err, collab.ErrRevisionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeStaleRevision})
	case errors.Is(err, collab.ErrLockLost):
		c.JSON(http.StatusGone, ErrorResponse{Error: err.Error(), Code: CodeSessionLost})
	case errors.Is(err, collab.ErrNoHistory):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: CodeNoHistory})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal})
	}
}
