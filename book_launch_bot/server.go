package booklaunchbot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeUpstream   = "upstream_error"
	ErrorCodeInternal   = "internal_error"
)

// FeedIngester is the operation behind POST /items.
type FeedIngester interface {
	IngestFeed(ctx context.Context) ([]FeedItem, error)
}

// SoonQuerier is the operation behind GET /items.
type SoonQuerier interface {
	QuerySoon(ctx context.Context, offsetDays string, now time.Time) (*WindowQueryResult, error)
}

// Handlers serves the item endpoints.
type Handlers struct {
	ingester FeedIngester
	querier  SoonQuerier
	now      func() time.Time
}

func NewHandlers(ingester FeedIngester, querier SoonQuerier) *Handlers {
	return &Handlers{ingester: ingester, querier: querier, now: time.Now}
}

func JSONError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// Routes builds the HTTP handler.
func (h *Handlers) Routes() http.Handler {
	g := gin.New()
	g.Use(ginLogger(), gin.Recovery())

	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	g.POST("/items", h.PostItems)
	g.GET("/items", h.GetItems)
	return g
}

// PostItems runs ingestion and returns the newly stored items.
func (h *Handlers) PostItems(c *gin.Context) {
	items, err := h.ingester.IngestFeed(c.Request.Context())
	if err != nil {
		pkgLogger.Error("Failed to ingest feed", "error", err)
		if errors.Is(err, ErrFetchFailed) {
			JSONError(c, http.StatusBadGateway, ErrorCodeUpstream, err.Error())
			return
		}
		JSONError(c, http.StatusInternalServerError, ErrorCodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetItems returns the items published on the day selected by ?offset=.
func (h *Handlers) GetItems(c *gin.Context) {
	result, err := h.querier.QuerySoon(c.Request.Context(), c.Query("offset"), h.now())
	if err != nil {
		if errors.Is(err, ErrInvalidOffset) {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		pkgLogger.Error("Failed to query items", "error", err)
		JSONError(c, http.StatusInternalServerError, ErrorCodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}
