package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/valyc0/fraudM/internal/platform/ctxutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

func TestAttachTraceContextEchoesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var got ctxutil.TraceData
	var duplicated bool
	r.GET("/rules", func(c *gin.Context) {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			got = *td
		}
		_, duplicated = c.Get("request_id")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got.RequestID != "req-1" || got.TraceID != "trace-1" {
		t.Fatalf("trace data: got=%+v", got)
	}
	if rec.Header().Get(headerRequestID) != "req-1" || rec.Header().Get(headerTraceID) != "trace-1" {
		t.Fatalf("response headers: got=%v", rec.Header())
	}
	if duplicated {
		t.Fatalf("request id duplicated into gin keys")
	}
}

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/rules", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	if rec.Header().Get(headerRequestID) == "" || rec.Header().Get(headerTraceID) == "" {
		t.Fatalf("generated ids missing: %v", rec.Header())
	}
}

func TestAuthSubjectReachesTraceData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.NewNop(), "s3cret")
	r := gin.New()
	r.Use(AttachTraceContext())
	var got ctxutil.TraceData
	r.GET("/rules/:id", am.RequireAuth(), func(c *gin.Context) {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			got = *td
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/rules/r-1", nil)
	req.Header.Set(headerRequestID, "req-7")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if got.Subject != "operator" || got.RequestID != "req-7" {
		t.Fatalf("trace data: want subject=operator request_id=req-7 got=%+v", got)
	}
}
