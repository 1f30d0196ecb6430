package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/affiliate/internal/affctx"
)

func TestAffiliateRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{}

	var seen snowflake.ID
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/me", srv.AffiliateRequired(), func(c *gin.Context) {
		id, ok := affctx.AffiliateIDFromContext(c.Request.Context())
		if !ok {
			t.Fatal("expected affiliate id in request context")
		}
		seen = id
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "garbage header", header: "not-an-id", status: http.StatusUnauthorized},
		{name: "zero id", header: "0", status: http.StatusUnauthorized},
		{name: "whitespace header", header: "   ", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(HeaderAffiliate, tt.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderAffiliate, "1200161823425")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	if seen != snowflake.ID(1200161823425) {
		t.Fatalf("unexpected affiliate id %d", seen)
	}
}
