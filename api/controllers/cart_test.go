package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/noorbazaar/storefront-backend/api/middleware"
	cartsvc "github.com/noorbazaar/storefront-backend/internal/cart"
)

func newCartHandlerService(t *testing.T) cartsvc.Service {
	t.Helper()
	svc, err := cartsvc.NewService(cartsvc.NewMemorySnapshotStore(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func withSession(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(middleware.WithSessionID(req.Context(), sessionID))
}

func TestCartAddCreatesLine(t *testing.T) {
	svc := newCartHandlerService(t)
	handler := CartAdd(svc, nil)

	body := `{"product_id":"mug-1","title":"ماگ سرامیکی","unit_price":250000,"quantity":2}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), "sess-1")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data cartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Cart == nil || len(envelope.Data.Cart.Lines) != 1 {
		t.Fatalf("expected one cart line, got %+v", envelope.Data.Cart)
	}
	if envelope.Data.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", envelope.Data.Cart.Lines[0].Quantity)
	}
	if envelope.Data.Message == "" {
		t.Fatal("expected a confirmation message")
	}
}

func TestCartAddMissingSession(t *testing.T) {
	handler := CartAdd(newCartHandlerService(t), nil)

	body := `{"product_id":"mug-1","title":"ماگ","unit_price":250000,"quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddRejectsInvalidBody(t *testing.T) {
	handler := CartAdd(newCartHandlerService(t), nil)

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"title":"بدون شناسه"}`)), "sess-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCartGetEmptySession(t *testing.T) {
	handler := CartGet(newCartHandlerService(t), nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "sess-empty")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Cart == nil || envelope.Data.Cart.Total != 0 {
		t.Fatalf("expected an empty cart, got %+v", envelope.Data.Cart)
	}
}
