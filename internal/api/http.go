package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/simlive/internal/errors"
)

// RegisterHTTP mounts the read-only viewer endpoints.
func (a *API) RegisterHTTP(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/join/:code", a.httpJoin)
	v1.GET("/sessions/:id/snapshot", a.httpSnapshot)
	v1.GET("/sessions/:id/fingerprint", a.httpFingerprint)
	v1.GET("/sessions/:id/report", a.httpReport)
}

func (a *API) httpJoin(c *gin.Context) {
	snap, err := a.ss.JoinByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) httpSnapshot(c *gin.Context) {
	snap, err := a.ss.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) httpFingerprint(c *gin.Context) {
	fp, err := a.fingerprint(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"fingerprint": fp})
}

func (a *API) httpReport(c *gin.Context) {
	r, err := a.ss.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code.String(),
		"message": e.Message,
	})
}
