//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/shopnetic/api/internal/domain"
	pconfig "github.com/shopnetic/api/internal/platform/config"
	pfirestore "github.com/shopnetic/api/internal/platform/firestore"
	"github.com/shopnetic/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		t.Fatalf("new catalog repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seedProduct := func(id string, price, stock int64) {
		t.Helper()
		_, err := client.Collection(productsCollection).Doc(id).Set(ctx, map[string]any{
			"name":         "Product " + id,
			"unitPrice":    price,
			"countInStock": stock,
			"updatedAt":    now,
		})
		if err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}
	seedProduct("prod_keyboard", 4500, 5)
	seedProduct("prod_mouse", 2500, 1)

	createReq := repositories.OrderCreateRequest{
		OrderID:     "ord_it_1",
		OrderNumber: "SN-000001",
		UserID:      "user_1",
		Lines: []domain.OrderLine{
			{ProductID: "prod_keyboard", Name: "Product prod_keyboard", UnitPrice: 4500, Quantity: 2},
			{ProductID: "prod_mouse", Name: "Product prod_mouse", UnitPrice: 2500, Quantity: 1},
		},
		ShippingAddr: domain.Address{
			Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		PaymentMethod: "card",
		Totals:        domain.OrderTotals{Items: 11500, Total: 11500},
		Now:           now,
	}

	order, err := repo.Create(ctx, createReq)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected placed status, got %s", order.Status)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPlaced {
		t.Fatalf("unexpected status history %+v", order.StatusHistory)
	}

	keyboard, err := catalog.FindProduct(ctx, "prod_keyboard")
	if err != nil {
		t.Fatalf("find product after create: %v", err)
	}
	if keyboard.CountInStock != 3 {
		t.Fatalf("expected stock 3 after decrement, got %d", keyboard.CountInStock)
	}

	var catErr *repositories.CatalogError

	_, err = repo.Create(ctx, repositories.OrderCreateRequest{
		OrderID:     "ord_it_short",
		OrderNumber: "SN-000002",
		UserID:      "user_1",
		Lines: []domain.OrderLine{
			{ProductID: "prod_mouse", Name: "Product prod_mouse", UnitPrice: 2500, Quantity: 5},
		},
		ShippingAddr:  createReq.ShippingAddr,
		PaymentMethod: "card",
		Totals:        domain.OrderTotals{Items: 12500, Total: 12500},
		Now:           now,
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if !errors.As(err, &catErr) || catErr.Code != repositories.CatalogErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %v", err)
	}
	if catErr.ProductID != "prod_mouse" || catErr.Available != 0 {
		t.Fatalf("expected prod_mouse with 0 available, got %+v", catErr)
	}

	mouse, err := catalog.FindProduct(ctx, "prod_mouse")
	if err != nil {
		t.Fatalf("find mouse after failed create: %v", err)
	}
	if mouse.CountInStock != 0 {
		t.Fatalf("failed create must not change stock, got %d", mouse.CountInStock)
	}

	catErr = nil
	_, err = repo.Create(ctx, repositories.OrderCreateRequest{
		OrderID:     "ord_it_missing",
		OrderNumber: "SN-000003",
		UserID:      "user_1",
		Lines: []domain.OrderLine{
			{ProductID: "prod_ghost", Name: "ghost", UnitPrice: 1, Quantity: 1},
		},
		ShippingAddr:  createReq.ShippingAddr,
		PaymentMethod: "card",
		Totals:        domain.OrderTotals{Items: 1, Total: 1},
		Now:           now,
	})
	if !errors.As(err, &catErr) || catErr.Code != repositories.CatalogErrorProductNotFound {
		t.Fatalf("expected product not found, got %v", err)
	}

	advanced, err := repo.UpdateStatus(ctx, repositories.OrderStatusUpdateRequest{
		OrderID:  order.ID,
		Expected: domain.OrderStatusPlaced,
		Next:     domain.OrderStatusProcessing,
		Now:      now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("advance status: %v", err)
	}
	if advanced.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", advanced.Status)
	}
	if len(advanced.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(advanced.StatusHistory))
	}

	var ordErr *repositories.OrderError
	_, err = repo.UpdateStatus(ctx, repositories.OrderStatusUpdateRequest{
		OrderID:  order.ID,
		Expected: domain.OrderStatusPlaced,
		Next:     domain.OrderStatusProcessing,
		Now:      now.Add(2 * time.Minute),
	})
	if !errors.As(err, &ordErr) || ordErr.Code != repositories.OrderErrorStatusConflict {
		t.Fatalf("expected status conflict, got %v", err)
	}

	if _, err := client.Collection(productsCollection).Doc("prod_mouse").Delete(ctx); err != nil {
		t.Fatalf("delete mouse: %v", err)
	}

	cancelResult, err := repo.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: order.ID,
		Now:     now.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelResult.AlreadyCancelled {
		t.Fatal("first cancel should not be a replay")
	}
	if cancelResult.Order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelResult.Order.Status)
	}
	if len(cancelResult.RestockedLines) != 1 || cancelResult.RestockedLines[0] != "prod_keyboard" {
		t.Fatalf("expected keyboard restocked, got %v", cancelResult.RestockedLines)
	}
	if len(cancelResult.SkippedLines) != 1 || cancelResult.SkippedLines[0] != "prod_mouse" {
		t.Fatalf("expected mouse skipped, got %v", cancelResult.SkippedLines)
	}

	keyboard, err = catalog.FindProduct(ctx, "prod_keyboard")
	if err != nil {
		t.Fatalf("find keyboard after cancel: %v", err)
	}
	if keyboard.CountInStock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", keyboard.CountInStock)
	}

	replay, err := repo.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: order.ID,
		Now:     now.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("cancel replay: %v", err)
	}
	if !replay.AlreadyCancelled {
		t.Fatal("expected idempotent cancel replay")
	}

	keyboard, err = catalog.FindProduct(ctx, "prod_keyboard")
	if err != nil {
		t.Fatalf("find keyboard after replay: %v", err)
	}
	if keyboard.CountInStock != 5 {
		t.Fatalf("replay must not restock again, got %d", keyboard.CountInStock)
	}

	page, err := repo.List(ctx, repositories.OrderListQuery{
		UserID: "user_1",
		Pager:  domain.Pagination{PageSize: 10},
	})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != order.ID {
		t.Fatalf("unexpected listing %+v", page.Items)
	}
}

// TestOrderRepositoryLastUnitContention races two creates for the last unit
// in stock; exactly one must win.
func TestOrderRepositoryLastUnitContention(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "orders-contention-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if _, err := client.Collection(productsCollection).Doc("prod_last").Set(ctx, map[string]any{
		"name":         "Last unit",
		"unitPrice":    9900,
		"countInStock": 1,
		"updatedAt":    now,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = repo.Create(ctx, repositories.OrderCreateRequest{
				OrderID:     fmt.Sprintf("ord_race_%d", i),
				OrderNumber: fmt.Sprintf("SN-10000%d", i),
				UserID:      fmt.Sprintf("user_%d", i),
				Lines: []domain.OrderLine{
					{ProductID: "prod_last", Name: "Last unit", UnitPrice: 9900, Quantity: 1},
				},
				ShippingAddr: domain.Address{
					Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
				},
				PaymentMethod: "card",
				Totals:        domain.OrderTotals{Items: 9900, Total: 9900},
				Now:           now,
			})
		}(i)
	}
	wg.Wait()

	var wins, shortfalls int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var catErr *repositories.CatalogError
		if errors.As(err, &catErr) && catErr.Code == repositories.CatalogErrorInsufficientStock {
			shortfalls++
			continue
		}
		t.Fatalf("unexpected create error: %v", err)
	}
	if wins != 1 || shortfalls != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d shortfalls=%d", wins, shortfalls)
	}

	snap, err := client.Collection(productsCollection).Doc("prod_last").Get(ctx)
	if err != nil {
		t.Fatalf("read product: %v", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if doc.CountInStock != 0 {
		t.Fatalf("expected stock 0 after race, got %d", doc.CountInStock)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
