package fieldsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sprayline/fieldsuite_backend/appctx"
	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/utils"
)

// RegisterRoutes mounts the sync endpoints on r. The session middleware must run first.
func RegisterRoutes(r gin.IRouter, gw *Gateway) {
	r.GET("/sync/down", SyncDownHandler(gw))
	r.POST("/sync/up", SyncUpHandler(gw))
	r.POST("/jobs/:id/complete", CompleteJobHandler(gw))
	r.POST("/jobs/:id/paid", MarkPaidHandler(gw))
	r.POST("/jobs/:id/work-order", IssueWorkOrderHandler(gw))
}

func SyncDownHandler(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		since, err := parseSince(c.Query("since"))
		if err != nil {
			respondError(c, gw, "SyncDown", utils.NewValidationError("since", "datetime"))
			return
		}
		delta, err := gw.SyncDown(c.Request.Context(), p, since)
		if err != nil {
			respondError(c, gw, "SyncDown", err)
			return
		}
		c.JSON(http.StatusOK, Envelope{Success: true, Data: delta})
	}
}

func SyncUpHandler(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req SyncUpInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Envelope{Error: &EnvelopeError{Code: "INVALID_REQUEST", Message: "invalid request"}})
			return
		}
		res, err := gw.SyncUp(c.Request.Context(), p, &req)
		if err != nil {
			respondError(c, gw, "SyncUp", err)
			return
		}
		c.JSON(http.StatusOK, Envelope{Success: true, Data: res})
	}
}

func CompleteJobHandler(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req CompleteJobInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Envelope{Error: &EnvelopeError{Code: "INVALID_REQUEST", Message: "invalid request"}})
			return
		}
		res, err := gw.CompleteJob(c.Request.Context(), p, c.Param("id"), req.Actuals)
		if err != nil {
			respondError(c, gw, "CompleteJob", err)
			return
		}
		c.JSON(http.StatusOK, Envelope{Success: true, Data: res})
	}
}

func MarkPaidHandler(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		job, err := gw.MarkPaid(c.Request.Context(), p, c.Param("id"))
		if err != nil {
			respondError(c, gw, "MarkPaid", err)
			return
		}
		c.JSON(http.StatusOK, Envelope{Success: true, Data: job})
	}
}

func IssueWorkOrderHandler(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		job, err := gw.IssueWorkOrder(c.Request.Context(), p, c.Param("id"))
		if err != nil {
			respondError(c, gw, "IssueWorkOrder", err)
			return
		}
		c.JSON(http.StatusOK, Envelope{Success: true, Data: job})
	}
}

func principal(c *gin.Context) (appctx.Principal, bool) {
	p, ok := appctx.PrincipalFrom(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: &EnvelopeError{Code: "UNAUTHORIZED", Message: "unauthorized"}})
		return appctx.Principal{}, false
	}
	return p, true
}

// parseSince accepts RFC 3339 or unix milliseconds. Empty means a full snapshot.
func parseSince(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// StatusFor maps a gateway error to its HTTP status and envelope error.
func StatusFor(err error) (int, *EnvelopeError) {
	var verr *utils.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, &EnvelopeError{Code: "VALIDATION_FAILED", Message: "validation failed", Fields: verr.Fields}
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound, &EnvelopeError{Code: "NOT_FOUND", Message: "not found"}
	case errors.Is(err, utils.ErrConflict):
		return http.StatusConflict, &EnvelopeError{Code: "CONFLICT", Message: "record is busy, retry", Retryable: utils.IsRetryable(err)}
	case errors.Is(err, utils.ErrForbidden):
		return http.StatusForbidden, &EnvelopeError{Code: "FORBIDDEN", Message: "forbidden"}
	case errors.Is(err, context.Canceled):
		return 499, &EnvelopeError{Code: "CANCELED", Message: "request canceled", Retryable: utils.IsRetryable(err)}
	default:
		return http.StatusInternalServerError, &EnvelopeError{Code: "INTERNAL", Message: "internal error"}
	}
}

func respondError(c *gin.Context, gw *Gateway, funcName string, err error) {
	status, body := StatusFor(err)
	if status == http.StatusInternalServerError {
		config.LogError(gw.Logger, "fieldsync", funcName, c.FullPath(), nil, err)
	}
	c.JSON(status, Envelope{Error: body})
}
