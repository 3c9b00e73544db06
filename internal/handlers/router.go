package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopnetic/api/internal/platform/auth"
	"github.com/shopnetic/api/internal/platform/httpx"
)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// RouterDeps bundles the handlers and middleware mounted by NewRouter.
type RouterDeps struct {
	Authenticator *auth.Authenticator
	Orders        *OrderHandlers
	AdminOrders   *AdminOrderHandlers
	Payments      *PaymentHandlers
	Health        *HealthHandlers

	// Middlewares are applied globally, in order, after chi's request ID.
	Middlewares []func(http.Handler) http.Handler
	// Idempotency guards the order creation endpoint when set.
	Idempotency func(http.Handler) http.Handler
}

// NewRouter constructs the chi router with shared middleware and all route groups.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(defaultTimeout))
	for _, mw := range deps.Middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	health := deps.Health
	if health == nil {
		health = NewHealthHandlers(nil)
	}
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route(defaultAPIPrefix, func(api chi.Router) {
		api.Route("/orders", func(group chi.Router) {
			if deps.Authenticator != nil {
				group.Use(deps.Authenticator.RequireAuth())
			}
			if deps.Idempotency != nil {
				group.Use(deps.Idempotency)
			}
			if deps.Orders != nil {
				deps.Orders.Routes(group)
			}
		})

		api.Route("/payments", func(group chi.Router) {
			if deps.Authenticator != nil {
				group.Use(deps.Authenticator.RequireAuth())
			}
			if deps.Payments != nil {
				deps.Payments.Routes(group)
			}
		})

		api.Route("/admin", func(group chi.Router) {
			if deps.Authenticator != nil {
				group.Use(deps.Authenticator.RequireAuth(auth.RoleAdmin))
			}
			if deps.AdminOrders != nil {
				deps.AdminOrders.Routes(group)
			}
		})
	})

	return r
}
