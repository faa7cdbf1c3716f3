package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eslamgaber/storefront/internal/app/domain/order"
	"github.com/eslamgaber/storefront/internal/app/domain/product"
	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/internal/app/services/auth"
	"github.com/eslamgaber/storefront/internal/app/services/orders"
	"github.com/eslamgaber/storefront/internal/app/services/products"
	"github.com/eslamgaber/storefront/internal/app/services/users"
	"github.com/eslamgaber/storefront/internal/app/storage/postgres"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/internal/config"
)

// memdb is an in-memory stand-in for the storage layer, implementing the
// store interfaces every service consumes.
type memdb struct {
	nextID   int64
	users    map[int64]user.User
	products map[int64]product.Product
	orders   map[int64]order.Order
	items    map[int64]order.OrderProduct
}

func newMemdb() *memdb {
	return &memdb{
		nextID:   1,
		users:    map[int64]user.User{},
		products: map[int64]product.Product{},
		orders:   map[int64]order.Order{},
		items:    map[int64]order.OrderProduct{},
	}
}

func (m *memdb) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

type memUsers struct{ db *memdb }

func (s memUsers) FindOne(_ context.Context, opts sqlgen.SelectOptions) (*user.User, error) {
	for _, u := range s.db.users {
		if username, ok := opts.Condition["username"]; ok && u.Username != username.(string) {
			continue
		}
		if id, ok := opts.Condition["id"]; ok && u.ID != id.(int64) {
			continue
		}
		v := u
		return &v, nil
	}
	return nil, nil
}

func (s memUsers) Create(_ context.Context, row sqlgen.Values) (postgres.Result[user.User], error) {
	u := user.User{
		ID:        s.db.id(),
		Username:  row["username"].(string),
		Firstname: row["firstname"].(string),
		Lastname:  row["lastname"].(string),
		Password:  row["password"].(string),
		Role:      row["role"].(string),
	}
	s.db.users[u.ID] = u
	return postgres.Result[user.User]{RowCount: 1, Rows: []user.User{u}}, nil
}

func (s memUsers) Delete(_ context.Context, cond sqlgen.Condition) (postgres.Result[user.User], error) {
	id := cond["id"].(int64)
	u, ok := s.db.users[id]
	if !ok {
		return postgres.Result[user.User]{Rows: []user.User{}}, nil
	}
	delete(s.db.users, id)
	return postgres.Result[user.User]{RowCount: 1, Rows: []user.User{u}}, nil
}

type memUserViews struct{ db *memdb }

func (s memUserViews) Index(_ context.Context, _ sqlgen.SelectOptions) ([]user.Public, error) {
	out := []user.Public{}
	for _, u := range s.db.users {
		out = append(out, user.Public{
			ID: u.ID, Username: u.Username, Firstname: u.Firstname,
			Lastname: u.Lastname, Role: u.Role,
		})
	}
	return out, nil
}

func (s memUserViews) FindOne(_ context.Context, opts sqlgen.SelectOptions) (*user.Public, error) {
	u, ok := s.db.users[opts.Condition["id"].(int64)]
	if !ok {
		return nil, nil
	}
	return &user.Public{
		ID: u.ID, Username: u.Username, Firstname: u.Firstname,
		Lastname: u.Lastname, Role: u.Role,
	}, nil
}

type memProducts struct{ db *memdb }

func (s memProducts) Index(_ context.Context, _ sqlgen.SelectOptions) ([]product.Product, error) {
	out := []product.Product{}
	for _, p := range s.db.products {
		out = append(out, p)
	}
	return out, nil
}

func (s memProducts) FindOne(_ context.Context, opts sqlgen.SelectOptions) (*product.Product, error) {
	p, ok := s.db.products[opts.Condition["id"].(int64)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s memProducts) Create(_ context.Context, row sqlgen.Values) (postgres.Result[product.Product], error) {
	p := product.Product{
		ID:          s.db.id(),
		ProductName: row["product_name"].(string),
		Price:       row["price"].(float64),
	}
	s.db.products[p.ID] = p
	return postgres.Result[product.Product]{RowCount: 1, Rows: []product.Product{p}}, nil
}

func (s memProducts) Update(_ context.Context, opts sqlgen.UpdateOptions) (postgres.Result[product.Product], error) {
	p, ok := s.db.products[opts.Condition["id"].(int64)]
	if !ok {
		return postgres.Result[product.Product]{Rows: []product.Product{}}, nil
	}
	if name, ok := opts.Changes["product_name"]; ok {
		p.ProductName = name.(string)
	}
	if price, ok := opts.Changes["price"]; ok {
		p.Price = price.(float64)
	}
	s.db.products[p.ID] = p
	return postgres.Result[product.Product]{RowCount: 1, Rows: []product.Product{p}}, nil
}

func (s memProducts) Delete(_ context.Context, cond sqlgen.Condition) (postgres.Result[product.Product], error) {
	p, ok := s.db.products[cond["id"].(int64)]
	if !ok {
		return postgres.Result[product.Product]{Rows: []product.Product{}}, nil
	}
	delete(s.db.products, p.ID)
	return postgres.Result[product.Product]{RowCount: 1, Rows: []product.Product{p}}, nil
}

type memOrders struct{ db *memdb }

func matchOrder(o order.Order, cond sqlgen.Condition) bool {
	if id, ok := cond["id"]; ok && o.ID != id.(int64) {
		return false
	}
	if status, ok := cond["status"]; ok && o.Status != status.(string) {
		return false
	}
	if userID, ok := cond["user_id"]; ok && o.UserID != userID.(int64) {
		return false
	}
	return true
}

func (s memOrders) lookup(o order.Order) order.Lookup {
	items := order.LineItems{}
	for _, it := range s.db.items {
		if it.OrderID == o.ID {
			items = append(items, order.LineItem{
				ID:       it.ID,
				Quantity: it.Quantity,
				Product:  s.db.products[it.ProductID],
			})
		}
	}
	owner := s.db.users[o.UserID]
	return order.Lookup{Order: o, Username: owner.Username, OrderProducts: items}
}

func (s memOrders) IndexByLookup(_ context.Context, opts sqlgen.SelectOptions) ([]order.Lookup, error) {
	out := []order.Lookup{}
	for _, o := range s.db.orders {
		if matchOrder(o, opts.Condition) {
			out = append(out, s.lookup(o))
		}
	}
	return out, nil
}

func (s memOrders) FindOneByLookup(_ context.Context, opts sqlgen.SelectOptions) (*order.Lookup, error) {
	for _, o := range s.db.orders {
		if matchOrder(o, opts.Condition) {
			l := s.lookup(o)
			return &l, nil
		}
	}
	return nil, nil
}

func (s memOrders) Exists(_ context.Context, cond sqlgen.Condition) (bool, error) {
	for _, o := range s.db.orders {
		if matchOrder(o, cond) {
			return true, nil
		}
	}
	return false, nil
}

func (s memOrders) Create(_ context.Context, row sqlgen.Values) (postgres.Result[order.Order], error) {
	o := order.Order{
		ID:     s.db.id(),
		Status: row["status"].(string),
		UserID: row["user_id"].(int64),
	}
	s.db.orders[o.ID] = o
	return postgres.Result[order.Order]{RowCount: 1, Rows: []order.Order{o}}, nil
}

func (s memOrders) Update(_ context.Context, opts sqlgen.UpdateOptions) (postgres.Result[order.Order], error) {
	for id, o := range s.db.orders {
		if matchOrder(o, opts.Condition) {
			if status, ok := opts.Changes["status"]; ok {
				o.Status = status.(string)
			}
			s.db.orders[id] = o
			return postgres.Result[order.Order]{RowCount: 1, Rows: []order.Order{o}}, nil
		}
	}
	return postgres.Result[order.Order]{Rows: []order.Order{}}, nil
}

func (s memOrders) Delete(_ context.Context, cond sqlgen.Condition) (postgres.Result[order.Order], error) {
	for id, o := range s.db.orders {
		if matchOrder(o, cond) {
			delete(s.db.orders, id)
			return postgres.Result[order.Order]{RowCount: 1, Rows: []order.Order{o}}, nil
		}
	}
	return postgres.Result[order.Order]{Rows: []order.Order{}}, nil
}

type memItems struct{ db *memdb }

func (s memItems) Create(_ context.Context, row sqlgen.Values) (postgres.Result[order.OrderProduct], error) {
	it := order.OrderProduct{
		ID:        s.db.id(),
		OrderID:   row["order_id"].(int64),
		ProductID: row["product_id"].(int64),
		Quantity:  row["quantity"].(int64),
	}
	s.db.items[it.ID] = it
	return postgres.Result[order.OrderProduct]{RowCount: 1, Rows: []order.OrderProduct{it}}, nil
}

func (s memItems) Delete(_ context.Context, cond sqlgen.Condition) (postgres.Result[order.OrderProduct], error) {
	it, ok := s.db.items[cond["id"].(int64)]
	if !ok || it.OrderID != cond["order_id"].(int64) {
		return postgres.Result[order.OrderProduct]{Rows: []order.OrderProduct{}}, nil
	}
	delete(s.db.items, it.ID)
	return postgres.Result[order.OrderProduct]{RowCount: 1, Rows: []order.OrderProduct{it}}, nil
}

type testAPI struct {
	handler http.Handler
	db      *memdb
	authSvc *auth.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := newMemdb()

	authCfg := config.AuthConfig{
		JWTKey:             "handler-test-key",
		PasswordSalt:       "handler-test-salt",
		PasswordIterations: 1000,
	}
	authSvc := auth.New(memUsers{db}, authCfg, nil)
	userSvc := users.New(memUsers{db}, memUserViews{db}, authSvc.Hasher(), nil)
	productSvc := products.New(memProducts{db}, nil)
	orderSvc := orders.New(memOrders{db}, memItems{db}, nil)

	h := New(Options{
		Auth:     authSvc,
		Users:    userSvc,
		Products: productSvc,
		Orders:   orderSvc,
	})
	return &testAPI{handler: h, db: db, authSvc: authSvc}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

// seedUser inserts an account directly and returns a valid token for it.
func (a *testAPI) seedUser(t *testing.T, username, role string) (int64, string) {
	t.Helper()
	hash, err := a.authSvc.Hasher().Hash("sup3rsecret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := user.User{
		ID: a.db.id(), Username: username, Firstname: "Test", Lastname: "User",
		Password: hash, Role: role,
	}
	a.db.users[u.ID] = u

	token, err := a.authSvc.Authenticate(context.Background(), username, "sup3rsecret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return u.ID, token
}

func TestSignupAndLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/users/signup", "", map[string]any{
		"username": "amira42", "firstname": "Amira", "lastname": "Hassan",
		"password": "sup3rsecret", "role": "admin",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	created, _ := env.Data.(map[string]any)
	if created["role"] != user.RoleUser {
		t.Fatalf("signup must not grant admin, got %v", created["role"])
	}
	if _, leaked := created["password"]; leaked {
		t.Fatal("password must not appear in responses")
	}

	rec = api.do(t, http.MethodPost, "/users/login", "", map[string]string{
		"username": "amira42", "password": "sup3rsecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	if data["token"] == "" {
		t.Fatal("expected a token")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "amira42", user.RoleUser)

	rec := api.do(t, http.MethodPost, "/users/login", "", map[string]string{
		"username": "amira42", "password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Status != "error" || env.Message == "" {
		t.Fatalf("unexpected error envelope %+v", env)
	}
}

func TestUserRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	if rec := api.do(t, http.MethodGet, "/users/", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/users/", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestAdminRoutesRejectRegularUsers(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.seedUser(t, "shopper", user.RoleUser)

	rec := api.do(t, http.MethodPost, "/products/", token, map[string]any{
		"product_name": "Keyboard", "price": 50,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestProductCRUD(t *testing.T) {
	api := newTestAPI(t)
	_, admin := api.seedUser(t, "boss", user.RoleAdmin)

	rec := api.do(t, http.MethodPost, "/products/", admin, map[string]any{
		"product_name": "Keyboard", "price": 50,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	id := int64(created["id"].(float64))

	if rec := api.do(t, http.MethodGet, fmt.Sprintf("/products/%d", id), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("public show status %d", rec.Code)
	}

	rec = api.do(t, http.MethodPut, fmt.Sprintf("/products/%d", id), admin, map[string]any{"price": 75})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPut, fmt.Sprintf("/products/%d", id), admin, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty update must 400, got %d", rec.Code)
	}

	if rec := api.do(t, http.MethodDelete, fmt.Sprintf("/products/%d", id), admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, fmt.Sprintf("/products/%d", id), "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestOrderFlow(t *testing.T) {
	api := newTestAPI(t)
	_, admin := api.seedUser(t, "boss", user.RoleAdmin)
	_, token := api.seedUser(t, "shopper", user.RoleUser)

	rec := api.do(t, http.MethodPost, "/products/", admin, map[string]any{
		"product_name": "Keyboard", "price": 50,
	})
	productData, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	productID := int64(productData["id"].(float64))

	rec = api.do(t, http.MethodPost, "/orders/", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status %d: %s", rec.Code, rec.Body.String())
	}
	orderData, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	orderID := int64(orderData["id"].(float64))

	if rec := api.do(t, http.MethodPost, "/orders/", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("second active order must 409, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/products", orderID), token, map[string]any{
		"product_id": productID, "quantity": 6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add product status %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/orders/active", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active status %d: %s", rec.Code, rec.Body.String())
	}
	active, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	items, _ := active["order_products"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one line item, got %v", active["order_products"])
	}
	line, _ := items[0].(map[string]any)
	if line["quantity"].(float64) != 6 {
		t.Fatalf("unexpected line item %v", line)
	}
	nested, _ := line["product"].(map[string]any)
	if nested["product_name"] != "Keyboard" {
		t.Fatalf("unexpected nested product %v", nested)
	}

	rec = api.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/complete", orderID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := api.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/complete", orderID), token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("repeat completion must 404, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/products", orderID), token, map[string]any{
		"product_id": productID,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("adding to completed order must 404, got %d", rec.Code)
	}
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	api := newTestAPI(t)
	_, alice := api.seedUser(t, "alice", user.RoleUser)
	_, bob := api.seedUser(t, "bobby", user.RoleUser)

	rec := api.do(t, http.MethodPost, "/orders/", alice, nil)
	orderData, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	orderID := int64(orderData["id"].(float64))

	if rec := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), bob, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign order must 404, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("own order status %d", rec.Code)
	}
}

func TestAdminDeleteUserGuards(t *testing.T) {
	api := newTestAPI(t)
	adminID, admin := api.seedUser(t, "boss", user.RoleAdmin)
	otherID, _ := api.seedUser(t, "shopper", user.RoleUser)

	rec := api.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", adminID), admin, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self delete must 403, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", otherID), admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	api := newTestAPI(t)
	_, admin := api.seedUser(t, "boss", user.RoleAdmin)

	api.do(t, http.MethodPost, "/products/", admin, map[string]any{
		"product_name": "Keyboard", "price": 50,
	})

	rec := api.do(t, http.MethodGet, "/admin/audit", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status %d: %s", rec.Code, rec.Body.String())
	}
	entries, _ := decodeEnvelope(t, rec).Data.([]any)
	if len(entries) == 0 {
		t.Fatal("expected at least one audit entry")
	}
	entry, _ := entries[0].(map[string]any)
	if entry["path"] != "/products/" || entry["username"] != "boss" {
		t.Fatalf("unexpected audit entry %v", entry)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	db := newMemdb()
	authSvc := auth.New(memUsers{db}, config.AuthConfig{
		JWTKey: "k", PasswordSalt: "s", PasswordIterations: 1000,
	}, nil)
	h := New(Options{
		Auth:     authSvc,
		Users:    users.New(memUsers{db}, memUserViews{db}, authSvc.Hasher(), nil),
		Products: products.New(memProducts{db}, nil),
		Orders:   orders.New(memOrders{db}, memItems{db}, nil),
		Server:   config.ServerConfig{RateLimit: 1, RateBurst: 2},
	})

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatal("expected the limiter to reject part of the burst")
	}
}
