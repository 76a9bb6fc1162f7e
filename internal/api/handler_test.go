package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pos-service/config"
	"pos-service/internal/crm"
	"pos-service/internal/loyalty"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	locationID  = "9c1de0f4-6a55-4b8e-a3c2-1f5e7d2b9a10"
	vendorID    = "2f8b4c6d-1e3a-4d7f-9b0c-5a6e8f1d2c34"
	customerID  = "71a3e9b2-c4d5-4f60-8a1b-2c3d4e5f6a7b"
	inventoryID = "d4c3b2a1-9f8e-4d7c-b6a5-0e1f2a3b4c5d"
	productID   = "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9"
	missingID   = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
)

type stubCRM struct{}

func (stubCRM) PushVisit(context.Context, crm.VisitPayload) (*crm.PushResult, error) {
	return &crm.PushResult{ContactID: "aiq-1"}, nil
}

type testServer struct {
	router *gin.Engine
	repo   *memory.Store
}

func newTestServer(t *testing.T, verifier *TokenVerifier) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.New()
	repo.AddLocation(models.Location{ID: locationID, VendorID: vendorID, Slug: "mission", Name: "Mission"})
	repo.AddCustomer(models.Customer{ID: customerID, VendorID: vendorID, Name: "Ari"})
	repo.AddInventory(models.InventoryRecord{ID: inventoryID, ProductID: productID, LocationID: locationID, Quantity: 3})

	cfg := config.CRMConfig{Timeout: time.Second, SyncMode: config.SyncModeInline, MaxRetries: 3, RetryBase: time.Second}
	loyaltySvc := service.NewLoyaltyService(repo, loyalty.DefaultTiers, "alpineiq")
	syncSvc := service.NewSyncService(repo, stubCRM{}, loyaltySvc, "alpineiq", cfg, nil)
	sales := service.NewSaleService(repo, loyaltySvc, syncSvc, nil, nil, config.SyncModeInline)

	router := gin.New()
	h := NewHandler(sales, loyaltySvc, verifier)
	h.AddReadinessCheck("memory", func(context.Context) error { return nil })
	h.SetupRoutes(router)
	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func saleBody(qty int) map[string]interface{} {
	total := float64(qty) * 12.5
	return map[string]interface{}{
		"locationId":    locationID,
		"vendorId":      vendorID,
		"customerId":    customerID,
		"customerName":  "Ari",
		"paymentMethod": "card",
		"subtotal":      total,
		"taxAmount":     0,
		"total":         total,
		"items": []map[string]interface{}{
			{"productId": productID, "productName": "Pre-roll", "unitPrice": 12.5, "quantity": qty, "lineTotal": total, "inventoryId": inventoryID},
		},
	}
}

func TestCreateSaleEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(2), nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Regexp(t, `^POS-MIS-\d{8}-\d{4}$`, body["orderNumber"])
	assert.Equal(t, float64(25), body["pointsEarned"])
	assert.Equal(t, "Bronze", body["newTier"])
	assert.Equal(t, true, body["alpineIQSynced"])
	assert.Nil(t, body["alpineIQError"])

	loyaltyBody, ok := body["loyalty"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(25), loyaltyBody["totalPoints"])
	assert.Equal(t, false, loyaltyBody["tierUpgrade"])

	order := body["order"].(map[string]interface{})
	assert.Equal(t, "completed", order["status"])
	assert.Len(t, order["items"], 1)
}

func TestCreateSaleEndpointReturnsDollars(t *testing.T) {
	s := newTestServer(t, nil)
	req := saleBody(2)
	req["paymentMethod"] = "cash"
	req["cashTendered"] = 30
	req["changeGiven"] = 5

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", req, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	order := body["order"].(map[string]interface{})
	assert.Equal(t, 25.0, order["subtotal"])
	assert.Equal(t, 0.0, order["taxAmount"])
	assert.Equal(t, 25.0, order["total"])
	assert.NotContains(t, order, "totalCents")
	assert.NotContains(t, order, "subtotalCents")

	item := order["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 12.5, item["unitPrice"])
	assert.Equal(t, 25.0, item["lineTotal"])
	assert.NotContains(t, item, "unitPriceCents")

	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, 25.0, tx["amount"])
	assert.Equal(t, 30.0, tx["cashTendered"])
	assert.Equal(t, 5.0, tx["changeGiven"])
	assert.NotContains(t, tx, "amountCents")

	w, fetched := s.do(t, http.MethodGet, "/api/v1/orders/"+order["id"].(string), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25.0, fetched["order"].(map[string]interface{})["total"])
}

func TestCreateSaleEndpointRejectsNonUUIDInventory(t *testing.T) {
	s := newTestServer(t, nil)
	req := saleBody(1)
	req["items"].([]map[string]interface{})[0]["inventoryId"] = "inv-1"

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", req, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing or invalid fields", body["error"])
	assert.Empty(t, s.repo.Orders())
}

func TestCreateSaleEndpointValidation(t *testing.T) {
	s := newTestServer(t, nil)
	req := saleBody(1)
	req["items"] = []interface{}{}

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", req, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, s.repo.Orders())
}

func TestCreateSaleEndpointMalformedJSON(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sales", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSaleEndpointInsufficientInventory(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(4), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient inventory for Pre-roll: requested 4, available 3", body["error"])
}

func TestCreateSaleEndpointPersistenceFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.repo.FailOrderItems = errors.New("relation \"order_items\" does not exist")

	w, body := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(1), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["details"], "order_items")
	assert.Empty(t, s.repo.Orders())
}

func TestCreateSaleEndpointIdempotencyHeader(t *testing.T) {
	s := newTestServer(t, nil)
	headers := map[string]string{"Idempotency-Key": "till-3-42"}

	w1, first := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(1), headers)
	require.Equal(t, http.StatusOK, w1.Code)
	w2, second := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(1), headers)
	require.Equal(t, http.StatusOK, w2.Code)

	assert.Equal(t, first["orderNumber"], second["orderNumber"])
	assert.Equal(t, "duplicate request", second["message"])
	assert.Len(t, s.repo.Orders(), 1)
}

func TestGetOrderAndInventory(t *testing.T) {
	s := newTestServer(t, nil)
	_, created := s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(1), nil)
	orderID := created["order"].(map[string]interface{})["id"].(string)

	w, body := s.do(t, http.MethodGet, "/api/v1/orders/"+orderID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orderID, body["order"].(map[string]interface{})["id"])

	w, body = s.do(t, http.MethodGet, "/api/v1/inventory/"+inventoryID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["inventory"].(map[string]interface{})["quantity"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+missingID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdjustInventory(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodPost, "/api/v1/inventory/"+inventoryID+"/adjust", map[string]interface{}{"delta": 5, "reason": "delivery"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(8), body["quantity"])

	w, body = s.do(t, http.MethodPost, "/api/v1/inventory/"+inventoryID+"/adjust", map[string]interface{}{"delta": -10}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "Insufficient inventory for "+inventoryID)

	w, _ = s.do(t, http.MethodPost, "/api/v1/inventory/"+inventoryID+"/adjust", map[string]interface{}{"delta": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/inventory/"+missingID+"/adjust", map[string]interface{}{"delta": -1}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/inventory/"+inventoryID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(8), body["inventory"].(map[string]interface{})["quantity"])
}

func TestGetLoyalty(t *testing.T) {
	s := newTestServer(t, nil)
	_, _ = s.do(t, http.MethodPost, "/api/v1/pos/sales", saleBody(2), nil)

	w, body := s.do(t, http.MethodGet, "/api/v1/loyalty/"+customerID+"?vendorId="+vendorID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := body["loyalty"].(map[string]interface{})
	assert.Equal(t, "Bronze", acct["tierName"])
	assert.Equal(t, float64(25), acct["lifetimePoints"])
	assert.Equal(t, "aiq-1", acct["externalContactId"])
	assert.Len(t, acct["transactions"], 1)

	w, _ = s.do(t, http.MethodGet, "/api/v1/loyalty/"+customerID, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/loyalty/nobody?vendorId="+vendorID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}
