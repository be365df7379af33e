package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/translatekit/chatbridge/internal/fetcher"
)

// ChapterFetcher is the fetch surface the transport needs; tests inject
// a fake backed by canned chapters.
type ChapterFetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Chapter, error)
	ClearCache(ctx context.Context) error
}

// ChaptersHandler exposes the stateless single-page fetch and its
// explicit cache clear.
type ChaptersHandler struct {
	Fetcher ChapterFetcher
	logger  *log.Logger
}

func NewChaptersHandler(f ChapterFetcher) *ChaptersHandler {
	return &ChaptersHandler{
		Fetcher: f,
		logger:  log.New(log.Writer(), "[CHAPTERS] ", log.LstdFlags),
	}
}

func (h *ChaptersHandler) Register(g *echo.Group) {
	g.POST("/fetch", h.fetch)
	g.POST("/cache/clear", h.clearCache)
}

func (h *ChaptersHandler) fetch(c echo.Context) error {
	var req chapterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "invalid request body"})
	}
	if strings.TrimSpace(req.URL) == "" {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "url is required"})
	}

	ch, err := h.Fetcher.Fetch(c.Request().Context(), req.URL)
	if err != nil {
		h.logger.Printf("fetch %s failed: %v", req.URL, err)
		return c.JSON(http.StatusBadGateway, messageResponse{Message: "chapter fetch failed: " + err.Error()})
	}
	return c.JSON(http.StatusOK, chapterResponse{
		Success:     true,
		ChapterName: ch.Title,
		RawText:     ch.Text,
		PrevLink:    ch.PrevLink,
		NextLink:    ch.NextLink,
	})
}

func (h *ChaptersHandler) clearCache(c echo.Context) error {
	if err := h.Fetcher.ClearCache(c.Request().Context()); err != nil {
		h.logger.Printf("cache clear failed: %v", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "cache clear failed"})
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "chapter cache cleared"})
}
