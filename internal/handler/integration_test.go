//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/dapoer-pos/api/internal/config"
	"github.com/dapoer-pos/api/internal/database"
	"github.com/dapoer-pos/api/internal/router"
	"github.com/dapoer-pos/api/internal/ws"
)

// TestIntegrationFlow exercises the full order lifecycle against a real
// PostgreSQL database: checkout, queue tracking, status transitions,
// cancellation and refund verification.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
		Location:    time.UTC,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: the hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- Bootstrap: store and admin user via direct DB insert ---
	storeID := createStoreRow(t, ctx, pool)
	createAdminRow(t, ctx, pool, storeID)

	token := login(t, server, "admin@test.com", "password123")

	// --- Catalog setup through the staff API ---
	nasiID := createProductAPI(t, server, storeID, token, "Nasi Goreng Dapoer", "25000", 10)
	tehID := createProductAPI(t, server, storeID, token, "Es Teh Manis", "8000", 2)

	pickupTable := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/staff/stores/%s/tables", storeID), map[string]any{
			"number":  "COUNTER-PICKUP",
			"qr_code": "DAPOER-PICKUP",
		}, token)
	pickupTableID := pickupTable["id"].(string)

	// --- 1. Customer checkout (public, no token) ---
	order := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/stores/%s/orders", storeID), map[string]any{
			"customer_name": "Budi",
			"order_type":    "TAKEAWAY",
			"items": []map[string]any{
				{"product_id": nasiID, "quantity": 2},
				{"product_id": tehID, "quantity": 1},
			},
		}, "")

	code := order["transaction_code"].(string)
	if !strings.HasPrefix(code, "TRX-") {
		t.Fatalf("transaction code: got %q, want TRX- prefix", code)
	}
	if got := order["total_amount"].(string); got != "58000.00" {
		t.Fatalf("total_amount: got %s, want 58000.00", got)
	}
	if got := order["queue_number"].(float64); got != 1 {
		t.Fatalf("queue_number: got %v, want 1", got)
	}
	// Max prep time is 10 minutes, which lands in the regular bucket.
	if got := order["estimated_time"].(string); got != "15-20 Menit" {
		t.Fatalf("estimated_time: got %s, want 15-20 Menit", got)
	}
	// Takeaway orders fall back to the counter pickup table.
	if got, _ := order["table_id"].(string); got != pickupTableID {
		t.Fatalf("table_id: got %v, want pickup table %s", order["table_id"], pickupTableID)
	}
	orderID := order["id"].(string)

	// --- 2. Live queue tracking (public) ---
	track := httpDoJSON(t, server, "GET",
		fmt.Sprintf("/stores/%s/orders/code/%s", storeID, code), nil, "")
	if got := track["queue_position"].(float64); got != 1 {
		t.Fatalf("queue_position: got %v, want 1", got)
	}
	if got := track["orders_ahead"].(float64); got != 0 {
		t.Fatalf("orders_ahead: got %v, want 0", got)
	}
	if track["predicted_service_time"].(string) == "" {
		t.Fatal("expected a predicted_service_time")
	}

	// --- 3. Cashier starts preparation; target time is locked in ---
	processing := httpDoJSON(t, server, "PATCH",
		fmt.Sprintf("/staff/stores/%s/orders/%s/status", storeID, orderID),
		map[string]any{"status": "PROCESSING", "payment_status": "PAID"}, token)
	if got := processing["status"].(string); got != "PROCESSING" {
		t.Fatalf("status: got %s, want PROCESSING", got)
	}
	if processing["target_time"] == nil {
		t.Fatal("expected target_time to be set on PENDING -> PROCESSING")
	}

	completed := httpDoJSON(t, server, "PATCH",
		fmt.Sprintf("/staff/stores/%s/orders/%s/status", storeID, orderID),
		map[string]any{"status": "COMPLETED"}, token)
	if got := completed["status"].(string); got != "COMPLETED" {
		t.Fatalf("status: got %s, want COMPLETED", got)
	}

	// --- 4. Second order: paid upfront, then cancelled by the customer ---
	order2 := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/stores/%s/orders", storeID), map[string]any{
			"customer_name":  "Siti",
			"order_type":     "TAKEAWAY",
			"payment_method": "QRIS",
			"payment_status": "PAID",
			"items": []map[string]any{
				{"product_id": tehID, "quantity": 3},
			},
		}, "")
	code2 := order2["transaction_code"].(string)
	if got := order2["queue_number"].(float64); got != 2 {
		t.Fatalf("second order queue_number: got %v, want 2", got)
	}

	cancelled := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/stores/%s/orders/code/%s/cancel", storeID, code2),
		map[string]any{"reason": "changed my mind"}, "")
	if got := cancelled["status"].(string); got != "CANCELLED" {
		t.Fatalf("status after cancel: got %s, want CANCELLED", got)
	}
	if got, _ := cancelled["cancellation_status"].(string); got != "AUTO_CANCELLED" {
		t.Fatalf("cancellation_status: got %v, want AUTO_CANCELLED", cancelled["cancellation_status"])
	}
	// Paid order keeps its payment record and enters the refund queue.
	if got, _ := cancelled["refund_status"].(string); got != "PENDING" {
		t.Fatalf("refund_status: got %v, want PENDING", cancelled["refund_status"])
	}

	// --- 5. Cashier verifies the refund at the counter ---
	refund := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/staff/stores/%s/orders/code/%s/refund/verify", storeID, code2), nil, token)
	if got := refund["refunded_amount"].(string); got != "24000.00" {
		t.Fatalf("refunded_amount: got %s, want 24000.00", got)
	}
	refundedOrder := refund["order"].(map[string]interface{})
	if got, _ := refundedOrder["refund_status"].(string); got != "REFUNDED" {
		t.Fatalf("refund_status: got %v, want REFUNDED", refundedOrder["refund_status"])
	}

	// --- 6. Concurrent checkout: distinct queue numbers under contention ---
	// The per-day counter upsert is the only thing standing between two
	// simultaneous checkouts and a duplicate queue number.
	const concurrentOrders = 8
	type createResult struct {
		queueNumber int
		code        string
		err         error
	}
	results := make(chan createResult, concurrentOrders)
	var wg sync.WaitGroup
	for i := 0; i < concurrentOrders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{
				"customer_name": fmt.Sprintf("Pelanggan %d", n),
				"order_type":    "DINE_IN",
				"items": []map[string]any{
					{"product_id": tehID, "quantity": 1},
				},
			})
			resp, err := http.Post(
				fmt.Sprintf("%s/stores/%s/orders", server.URL, storeID),
				"application/json", bytes.NewReader(body))
			if err != nil {
				results <- createResult{err: err}
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				results <- createResult{err: fmt.Errorf("status %d", resp.StatusCode)}
				return
			}
			var created struct {
				QueueNumber     int    `json:"queue_number"`
				TransactionCode string `json:"transaction_code"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
				results <- createResult{err: err}
				return
			}
			results <- createResult{queueNumber: created.QueueNumber, code: created.TransactionCode}
		}(i)
	}
	wg.Wait()
	close(results)

	seenQueue := map[int]bool{1: true, 2: true} // taken by the sequential orders above
	seenCode := map[string]bool{code: true, code2: true}
	for res := range results {
		if res.err != nil {
			t.Fatalf("concurrent create: %v", res.err)
		}
		if seenQueue[res.queueNumber] {
			t.Fatalf("duplicate queue number %d under concurrent creation", res.queueNumber)
		}
		seenQueue[res.queueNumber] = true
		if seenCode[res.code] {
			t.Fatalf("duplicate transaction code %s under concurrent creation", res.code)
		}
		seenCode[res.code] = true
	}
	if len(seenQueue) != concurrentOrders+2 {
		t.Fatalf("queue numbers: got %d distinct, want %d", len(seenQueue)-2, concurrentOrders)
	}

	t.Logf("integration flow passed: container=%s, store=%s, orders=%s,%s",
		pgContainer.GetContainerID(), storeID, code, code2)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this package directory; go test sets cwd there.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createStoreRow(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO stores (name, address, phone)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		"Dapoer Test", "Jl. Test No. 1", "08123456789",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return id
}

func createAdminRow(t *testing.T, ctx context.Context, pool *pgxpool.Pool, storeID uuid.UUID) uuid.UUID {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (store_id, email, hashed_password, full_name, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		storeID, "admin@test.com", string(hashed), "Test Admin", "ADMIN",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	return id
}

// --- API call helpers ---

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpDoJSON(t, server, "POST", "/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func createProductAPI(t *testing.T, server *httptest.Server, storeID uuid.UUID, token, name, price string, prepTime int) string {
	t.Helper()
	resp := httpDoJSON(t, server, "POST",
		fmt.Sprintf("/staff/stores/%s/products", storeID), map[string]any{
			"name":      name,
			"price":     price,
			"prep_time": prepTime,
		}, token)
	id, ok := resp["id"].(string)
	if !ok || id == "" {
		t.Fatalf("create product %s: no id in response: %+v", name, resp)
	}
	return id
}

func httpDoJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]any, token string) map[string]interface{} {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("%s %s: status %d, body: %v", method, path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
