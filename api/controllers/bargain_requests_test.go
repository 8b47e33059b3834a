package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bargaining-backend/api/middleware"
	"github.com/angelmondragon/bargaining-backend/internal/bargainrequests"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
)

type testBargainRequestService struct {
	created    []bargainrequests.CreateInput
	unread     map[uuid.UUID][]models.BargainRequest
	markedID   uuid.UUID
	merchantID uuid.UUID
}

func (s *testBargainRequestService) Create(ctx context.Context, input bargainrequests.CreateInput) (*models.BargainRequest, error) {
	s.created = append(s.created, input)
	return &models.BargainRequest{ID: uuid.New(), ShopName: input.ShopName, ProductName: input.ProductTitle}, nil
}

func (s *testBargainRequestService) ListUnread(ctx context.Context, merchantID uuid.UUID, shopName string) ([]models.BargainRequest, error) {
	rows, ok := s.unread[merchantID]
	if !ok || (shopName != "" && (len(rows) == 0 || rows[0].ShopName != shopName)) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	return rows, nil
}

func (s *testBargainRequestService) MarkRead(ctx context.Context, merchantID uuid.UUID, id uuid.UUID) (*models.BargainRequest, error) {
	s.merchantID = merchantID
	s.markedID = id
	return &models.BargainRequest{ID: id, MarkAsRead: true}, nil
}

func withMerchant(req *http.Request, merchantID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithMerchantID(req.Context(), merchantID))
}

func TestCreateBargainRequestReturnsCreated(t *testing.T) {
	svc := &testBargainRequestService{}
	body := `{"product_title":"Tote","variant_title":"Default Title","variant_id":"v1","variant_price":"25.00","customer_email":"a@example.com","shop_name":"demo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/bargain-requests", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateBargainRequest(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.created) != 1 || svc.created[0].VariantPrice == nil {
		t.Fatalf("unexpected service input %+v", svc.created)
	}
}

func TestCreateBargainRequestValidatesEmail(t *testing.T) {
	svc := &testBargainRequestService{}
	body := `{"product_title":"Tote","variant_title":"Large","variant_price":"25.00","customer_email":"nope","shop_name":"demo"}`
	resp := httptest.NewRecorder()
	CreateBargainRequest(svc, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if resp.Code != http.StatusBadRequest || len(svc.created) != 0 {
		t.Fatalf("expected 400 without service call, got %d", resp.Code)
	}
}

func TestListBargainRequestsUsesMerchantShop(t *testing.T) {
	merchantID := uuid.New()
	svc := &testBargainRequestService{unread: map[uuid.UUID][]models.BargainRequest{
		merchantID: {{ID: uuid.New(), ShopName: "demo"}},
	}}

	resp := httptest.NewRecorder()
	ListBargainRequests(svc, testLogger())(resp, withMerchant(httptest.NewRequest(http.MethodGet, "/", nil), merchantID))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"shop_name":"demo"`) {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	ListBargainRequests(svc, testLogger())(resp, withMerchant(httptest.NewRequest(http.MethodGet, "/?shop=other", nil), merchantID))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign shop, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	ListBargainRequests(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/?shop=demo", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without merchant, got %d", resp.Code)
	}
}

func TestMarkBargainRequestRead(t *testing.T) {
	svc := &testBargainRequestService{}
	merchantID := uuid.New()
	id := uuid.New()

	for _, tc := range []struct {
		param  string
		status int
	}{
		{param: id.String(), status: http.StatusOK},
		{param: "not-a-uuid", status: http.StatusBadRequest},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("requestId", tc.param)
		req = withMerchant(req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)), merchantID)
		resp := httptest.NewRecorder()
		MarkBargainRequestRead(svc, testLogger())(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("param %q: expected %d, got %d", tc.param, tc.status, resp.Code)
		}
	}
	if svc.markedID != id || svc.merchantID != merchantID {
		t.Fatalf("expected %s marked for %s, got %s for %s", id, merchantID, svc.markedID, svc.merchantID)
	}
}
