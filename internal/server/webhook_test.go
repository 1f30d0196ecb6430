package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	"github.com/smallbiznis/affiliate/internal/tracking/attribution"
)

type fakeConversionService struct {
	recordCalls int
	lastReq     convdomain.RecordRequest
	result      convdomain.RecordResult
	err         error
}

func (f *fakeConversionService) Record(ctx context.Context, req convdomain.RecordRequest) (convdomain.RecordResult, error) {
	f.recordCalls++
	f.lastReq = req
	_ = ctx
	if f.err != nil {
		return convdomain.RecordResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeConversionService) Get(ctx context.Context, id string) (convdomain.Conversion, error) {
	_ = ctx
	_ = id
	return convdomain.Conversion{}, convdomain.ErrNotFound
}

func (f *fakeConversionService) List(ctx context.Context, req convdomain.ListRequest) (convdomain.ListResponse, error) {
	_ = ctx
	_ = req
	return convdomain.ListResponse{}, nil
}

func newWebhookRouter(svc convdomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{conversionSvc: svc}
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/webhooks/orders", srv.HandleOrderWebhook)
	return router
}

func postOrderWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestOrderWebhookExplicitAttribution(t *testing.T) {
	svc := &fakeConversionService{
		result: convdomain.RecordResult{
			Conversion: convdomain.Conversion{
				ID:               snowflake.ID(42),
				OrderID:          "ord_1001",
				CommissionAmount: decimal.NewFromInt(20),
				Status:           convdomain.StatusPending,
			},
		},
	}
	router := newWebhookRouter(svc)

	resp := postOrderWebhook(router, `{"order_id":"ord_1001","subtotal":"100","affiliate_code":"JANE-X7K2","session_id":"sess-1"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.recordCalls != 1 {
		t.Fatalf("expected one record call, got %d", svc.recordCalls)
	}
	if svc.lastReq.AffiliateCode != "JANE-X7K2" || svc.lastReq.SessionID != "sess-1" {
		t.Fatalf("unexpected attribution forwarded: %+v", svc.lastReq)
	}

	var body orderWebhookResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Attributed || body.Existing || body.Conversion == nil {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestOrderWebhookPackedAttribution(t *testing.T) {
	svc := &fakeConversionService{}
	router := newWebhookRouter(svc)

	packed, ok := attribution.Pack("JANE-X7K2", "01HZXK5T9GQ4R8W2N6M3P7V1BC")
	if !ok {
		t.Fatal("pack rejected a valid pair")
	}
	payload, _ := json.Marshal(map[string]any{
		"order_id":    "ord_2001",
		"subtotal":    "50",
		"attribution": packed,
	})

	resp := postOrderWebhook(router, string(payload))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.lastReq.AffiliateCode != "JANE-X7K2" {
		t.Fatalf("expected unpacked code, got %q", svc.lastReq.AffiliateCode)
	}
	if svc.lastReq.SessionID != "01HZXK5T9GQ4R8W2N6M3P7V1BC" {
		t.Fatalf("expected unpacked session, got %q", svc.lastReq.SessionID)
	}
}

func TestOrderWebhookUnattributedIsAcknowledged(t *testing.T) {
	svc := &fakeConversionService{}
	router := newWebhookRouter(svc)

	resp := postOrderWebhook(router, `{"order_id":"ord_3001","subtotal":"75"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.recordCalls != 0 {
		t.Fatal("expected conversion service not to be called without attribution")
	}

	var body orderWebhookResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Attributed {
		t.Fatal("expected attributed=false")
	}
}

func TestOrderWebhookDuplicateOrder(t *testing.T) {
	svc := &fakeConversionService{
		result: convdomain.RecordResult{
			Conversion: convdomain.Conversion{ID: snowflake.ID(42), OrderID: "ord_4001"},
			Existing:   true,
		},
	}
	router := newWebhookRouter(svc)

	resp := postOrderWebhook(router, `{"order_id":"ord_4001","subtotal":"100","affiliate_code":"JANE-X7K2"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body orderWebhookResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Existing {
		t.Fatal("expected existing=true for a retried order")
	}
}

// A declined attribution is still a successfully processed webhook. Erroring
// out would make the checkout system redeliver an order that will never
// attribute, so the handler acknowledges and drops it.
func TestOrderWebhookDeclinedAttributionIsAcknowledged(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"unknown code", affdomain.ErrNotFound},
		{"ineligible affiliate", affdomain.ErrNotEligible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeConversionService{err: tc.err}
			router := newWebhookRouter(svc)

			resp := postOrderWebhook(router, `{"order_id":"ord_5001","subtotal":"100","affiliate_code":"JANE-X7K2"}`)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", resp.Code)
			}
			var body orderWebhookResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if body.Attributed {
				t.Fatal("expected attributed=false for a declined order")
			}
		})
	}
}

func TestOrderWebhookMalformedBody(t *testing.T) {
	svc := &fakeConversionService{}
	router := newWebhookRouter(svc)

	resp := postOrderWebhook(router, `{"order_id":`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.recordCalls != 0 {
		t.Fatal("expected conversion service not to be called")
	}
}
