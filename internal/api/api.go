// Package api serves the read-only article query interface and the
// reader-mode extraction endpoint. Handlers only parse requests and
// serialize store reads; nothing here ever triggers a source fetch.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/internal/extract"
	"github.com/jwnews/jw-news-reader-api/internal/scheduler"
	"github.com/jwnews/jw-news-reader-api/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Scheduler is the slice of scheduler state the API reports.
type Scheduler interface {
	Cycles() uint64
	LastCycle() (scheduler.CycleStats, bool)
	SourceStatuses() []scheduler.SourceStatus
}

// Extractor converts one allowed article URL into Markdown.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (extract.Result, error)
}

// Server holds the handler dependencies.
type Server struct {
	store     *store.Store
	sched     Scheduler
	extractor Extractor
}

func NewServer(st *store.Store, sched Scheduler, ex Extractor) *Server {
	return &Server{store: st, sched: sched, extractor: ex}
}

// NewRouter builds a gin engine with the service routes mounted. mode
// is a gin mode name; empty keeps the current one. Middleware runs
// before every route.
func NewRouter(mode string, srv *Server, middleware ...gin.HandlerFunc) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)
	srv.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.POST("/extract", s.extractArticle)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/:id", s.getArticle)
		v1.GET("/sources", s.listSources)
		v1.GET("/stats", s.cycleStats)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listArticles(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	articles := s.store.ListRecent(limit, offset)
	if articles == nil {
		articles = []domain.Article{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(articles),
		"limit":    limit,
		"offset":   offset,
		"articles": articles,
	})
}

func (s *Server) getArticle(c *gin.Context) {
	art, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "article not found"})
		return
	}
	c.JSON(http.StatusOK, art)
}

func (s *Server) listSources(c *gin.Context) {
	statuses := s.sched.SourceStatuses()
	if statuses == nil {
		statuses = []scheduler.SourceStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": statuses})
}

func (s *Server) cycleStats(c *gin.Context) {
	resp := gin.H{
		"cycles":    s.sched.Cycles(),
		"storeSize": s.store.Len(),
	}
	if last, ok := s.sched.LastCycle(); ok {
		resp["lastCycle"] = last
	}
	c.JSON(http.StatusOK, resp)
}

type extractRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) extractArticle(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "request body must be JSON with a url field"})
		return
	}

	res, err := s.extractor.Extract(c.Request.Context(), req.URL)
	if err != nil {
		status, detail := extractErrorStatus(err)
		c.JSON(status, gin.H{"detail": detail})
		return
	}
	c.JSON(http.StatusOK, res)
}

// extractErrorStatus maps extraction failure kinds onto HTTP statuses:
// bad URLs are the caller's fault, non-HTML pages are unprocessable,
// everything upstream is a bad gateway.
func extractErrorStatus(err error) (int, string) {
	var exErr *extract.Error
	if !errors.As(err, &exErr) {
		return http.StatusBadGateway, "extraction failed"
	}
	switch exErr.Kind {
	case extract.KindInvalidURL:
		return http.StatusBadRequest, exErr.Msg
	case extract.KindNotHTML:
		return http.StatusUnprocessableEntity, exErr.Msg
	default:
		return http.StatusBadGateway, exErr.Msg
	}
}
