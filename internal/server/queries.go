package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/ragserve/internal/query"
	"github.com/mohammad-safakhou/ragserve/models"
)

var queriesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragserve_queries_submitted_total",
	Help: "Queries accepted by the submit endpoint, by execution mode.",
}, []string{"mode"})

// QueriesHandler exposes the query record lifecycle over HTTP.
type QueriesHandler struct {
	Manager  *query.Manager
	PageSize int
	Logger   *log.Logger
}

func (h *QueriesHandler) Register(e *echo.Echo) {
	e.GET("/", h.index)
	e.GET("/get_query", h.get)
	e.GET("/list_query", h.list)
	e.POST("/submit_query", h.submit)
}

func (h *QueriesHandler) index(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"Hello": "World"})
}

func (h *QueriesHandler) get(c echo.Context) error {
	queryID := c.QueryParam("query_id")
	if queryID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query_id required")
	}
	q, err := h.Manager.Get(c.Request().Context(), queryID)
	if err != nil {
		if errors.Is(err, models.ErrQueryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Query Not Found: "+queryID)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *QueriesHandler) list(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	pageSize := h.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	items, err := h.Manager.List(c.Request().Context(), userID, pageSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []models.Query{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *QueriesHandler) submit(c echo.Context) error {
	var req struct {
		QueryText string `json:"query_text"`
		UserID    string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.QueryText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query_text required")
	}

	q, err := h.Manager.Submit(c.Request().Context(), req.QueryText, req.UserID)
	if err != nil {
		if errors.Is(err, query.ErrQueryTooLong) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	mode := "sync"
	if !q.IsComplete {
		mode = "async"
	}
	queriesSubmitted.WithLabelValues(mode).Inc()
	return c.JSON(http.StatusOK, q)
}
