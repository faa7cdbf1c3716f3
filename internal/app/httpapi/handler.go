// Package httpapi exposes the storefront REST API.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eslamgaber/storefront/internal/app/metrics"
	"github.com/eslamgaber/storefront/internal/app/services/auth"
	"github.com/eslamgaber/storefront/internal/app/services/orders"
	"github.com/eslamgaber/storefront/internal/app/services/products"
	"github.com/eslamgaber/storefront/internal/app/services/users"
	"github.com/eslamgaber/storefront/internal/config"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Handler bundles the HTTP endpoints over the application services.
type Handler struct {
	auth     *auth.Service
	users    *users.Service
	products *products.Service
	orders   *orders.Service
	audit    *auditLog
	log      *logger.Logger
}

// Options carries the handler's collaborators and tuning knobs.
type Options struct {
	Auth     *auth.Service
	Users    *users.Service
	Products *products.Service
	Orders   *orders.Service
	Server   config.ServerConfig
	AuditLog string // optional JSONL file path
	Log      *logger.Logger
}

// New returns the routed API handler.
func New(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditLog)
	if err != nil {
		log.WithError(err).Warn("audit sink unavailable, keeping entries in memory only")
	}

	h := &Handler{
		auth:     opts.Auth,
		users:    opts.Users,
		products: opts.Products,
		orders:   opts.Orders,
		audit:    newAuditLog(0, sink),
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(rateLimit(opts.Server.RateLimit, opts.Server.RateBurst))
	r.Use(h.authenticate)
	r.Use(h.auditMutations)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/users", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.showUser)
		})
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/", h.createUser)
			r.Delete("/{id}", h.deleteUser)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.showProduct)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.listOrders)
		r.Get("/active", h.activeOrder)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.showOrder)
		r.Put("/{id}/complete", h.completeOrder)
		r.Delete("/{id}", h.deleteOrder)
		r.Post("/{id}/products", h.addOrderProduct)
		r.Delete("/{id}/products/{itemID}", h.removeOrderProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/audit", h.listAudit)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": "ok"})
}

// pathID parses a numeric path parameter; zero means absent or malformed.
func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var payload users.NewUser
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	created, err := h.users.Signup(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, err := h.auth.Authenticate(r.Context(), payload.Username, payload.Password)
	metrics.RecordLogin(err == nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload users.NewUser
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	created, err := h.users.Create(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	removed, err := h.users.Delete(r.Context(), id, userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload products.NewProduct
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	created, err := h.products.Create(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	var payload products.ProductChanges
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	updated, err := h.products.Update(r.Context(), id, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	removed, err := h.products.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

// queryUserID reads the optional user_id filter admins may pass.
func queryUserID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context(), userFrom(r.Context()), r.URL.Query().Get("status"), queryUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) activeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetActive(r.Context(), userFrom(r.Context()), queryUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	o, err := h.orders.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	created, err := h.orders.Create(r.Context(), userFrom(r.Context()), queryUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordOrderCreated()
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	updated, err := h.orders.Complete(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordOrderCompleted()
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	removed, err := h.orders.Delete(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

func (h *Handler) addOrderProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if id == 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	var payload orders.NewItem
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	item, err := h.orders.AddProduct(r.Context(), userFrom(r.Context()), id, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) removeOrderProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	itemID := pathID(r, "itemID")
	if id == 0 || itemID == 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	removed, err := h.orders.RemoveProduct(r.Context(), userFrom(r.Context()), id, itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}
