// Package admin exposes journal status, id decoding and commit lookup over
// HTTP, along with the Prometheus metrics endpoint.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/metrics"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
	"github.com/kartikbazzad/bunbase/redolog/internal/redolog"
)

// Journal is what the admin API reads from the redo log manager.
type Journal interface {
	Status() redolog.Status
	AllLogs() ([]string, error)
	FindCommit(ctx context.Context, id redo.CommitID) (*redo.CommitTxn, string, error)
}

// Handler serves the admin endpoints.
type Handler struct {
	journal Journal
	logger  *logger.Logger
}

func NewHandler(journal Journal, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{journal: journal, logger: log}
}

// NewRouter builds the gin engine with every admin route.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	r := router.Group("/redo")
	r.GET("/status", h.Status)
	r.GET("/logs", h.Logs)
	r.GET("/txn/:id", h.DecodeTxn)
	r.GET("/commit/:id", h.LocateCommit)
	return router
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.journal.Status())
}

func (h *Handler) Logs(c *gin.Context) {
	paths, err := h.journal.AllLogs()
	if err != nil {
		h.logger.Error("Failed to list redo logs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": paths})
}

// DecodeTxn parses a transaction id.
func (h *Handler) DecodeTxn(c *gin.Context) {
	id, err := redo.DecodeTransactionID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         id.EncodeToString(),
		"time":       id.Time,
		"counter":    id.Counter,
		"started_at": time.Unix(int64(id.Time), 0).UTC().Format(time.RFC3339),
	})
}

// LocateCommit parses a commit id and finds its commit record in history.
func (h *Handler) LocateCommit(c *gin.Context) {
	id, err := redo.DecodeCommitID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	commit, path, err := h.journal.FindCommit(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errors.ErrCommitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to locate commit %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commit_id":    id.EncodeToString(),
		"redo_seq":     id.RedoSeq,
		"txn_id":       commit.TransactionID().EncodeToString(),
		"timestamp":    commit.Timestamp(),
		"committed_at": time.UnixMilli(commit.Timestamp()).UTC().Format(time.RFC3339Nano),
		"log_file":     path,
	})
}
