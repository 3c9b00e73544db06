package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/platform/auth"
	"github.com/shopnetic/api/internal/services"
)

const routerTestSecret = "router-test-secret"

func bearerToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(routerTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func newTestRouter(t *testing.T, orders services.OrderService) http.Handler {
	t.Helper()
	authenticator, err := auth.NewAuthenticator(routerTestSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	return NewRouter(RouterDeps{
		Authenticator: authenticator,
		Orders:        NewOrderHandlers(orders),
		AdminOrders:   NewAdminOrderHandlers(orders),
		Payments:      NewPaymentHandlers(&stubPaymentService{}),
	})
}

func TestRouterRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rr.Code)
	}
}

func TestRouterAuthenticatedListOrders(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	var captured services.ListOrdersCommand
	service := &stubOrderService{
		listFn: func(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
			captured = cmd
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleOrder(now)}}, nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Requester.UserID != "user-1" || captured.Requester.IsAdmin {
		t.Fatalf("unexpected requester from token: %#v", captured.Requester)
	}
}

func TestRouterAdminGroupForbiddenForUsers(t *testing.T) {
	router := newTestRouter(t, &stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-admin, got %d", rr.Code)
	}
}

func TestRouterAdminGroupAllowsAdmins(t *testing.T) {
	service := &stubOrderService{
		listFn: func(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{}, nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", bearerToken(t, "admin-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, &stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse error payload: %v", err)
	}
	if payload["error"] != "route_not_found" {
		t.Fatalf("expected route_not_found code, got %v", payload["error"])
	}
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &stubOrderService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected readyz 200, got %d", rr.Code)
	}
}

func TestRouterReadyzReportsFailures(t *testing.T) {
	authenticator, err := auth.NewAuthenticator(routerTestSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	router := NewRouter(RouterDeps{
		Authenticator: authenticator,
		Health: NewHealthHandlers(map[string]ReadinessCheck{
			"firestore": func(ctx context.Context) error { return context.DeadlineExceeded },
		}),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz 503, got %d", rr.Code)
	}

	var payload struct {
		Status   string            `json:"status"`
		Failures map[string]string `json:"failures"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse readyz payload: %v", err)
	}
	if payload.Status != "unavailable" {
		t.Fatalf("expected unavailable status, got %s", payload.Status)
	}
	if _, ok := payload.Failures["firestore"]; !ok {
		t.Fatalf("expected firestore failure, got %#v", payload.Failures)
	}
}
