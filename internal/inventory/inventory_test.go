package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
	"github.com/rajivgeraev/agrobazaar-api/internal/store/memory"
)

// plainStore скрывает условные записи, как у json-server
type plainStore struct{ store.Store }

func seed(t *testing.T, quantity float64) (*memory.Store, *models.Crop) {
	t.Helper()
	s := memory.New()
	crop := &models.Crop{
		ID:           "crop-1",
		FarmerID:     "f1",
		FarmerName:   "Ramesh",
		CropName:     "Wheat",
		Quantity:     quantity,
		Unit:         "kg",
		PricePerUnit: 12,
	}
	if err := s.CreateCrop(context.Background(), crop); err != nil {
		t.Fatal(err)
	}
	return s, crop
}

func request(qty float64) PurchaseRequest {
	return PurchaseRequest{
		CropID:          "crop-1",
		Quantity:        qty,
		Customer:        Customer{ID: "u1", Name: "Asha"},
		DeliveryAddress: "Pune",
		Phone:           "+91 90000 00000",
		Path:            PathDirect,
	}
}

func TestCommitPurchaseDirect(t *testing.T) {
	s, _ := seed(t, 10)
	svc := NewService(s, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	order, err := svc.CommitPurchase(context.Background(), request(3))
	if err != nil {
		t.Fatal(err)
	}

	if order.PricePerUnit != 12 || order.TotalPrice != 36 || order.Status != models.OrderSuccess {
		t.Errorf("order = %+v", order)
	}
	if order.FarmerID != "f1" || order.CustomerID != "u1" || order.Unit != "kg" {
		t.Errorf("order = %+v", order)
	}

	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 7 {
		t.Errorf("quantity = %v, want 7", crop.Quantity)
	}
	orders, _ := s.ListOrders(context.Background(), store.OrderFilter{})
	if len(orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders))
	}
}

func TestCommitPurchaseUsesProposalPricing(t *testing.T) {
	s, _ := seed(t, 10)
	svc := NewService(s, nil, nil, nil)

	req := request(6)
	req.UnitPrice = 9
	req.Total = 54
	req.Path = PathProposal

	order, err := svc.CommitPurchase(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if order.PricePerUnit != 9 || order.TotalPrice != 54 {
		t.Errorf("order = %+v", order)
	}
	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 4 {
		t.Errorf("quantity = %v, want 4", crop.Quantity)
	}
}

func TestInsufficientStockHasNoSideEffects(t *testing.T) {
	s, _ := seed(t, 5)
	svc := NewService(s, nil, nil, nil)

	_, err := svc.CommitPurchase(context.Background(), request(6))

	var stock *apperr.StockError
	if !errors.As(err, &stock) {
		t.Fatalf("got %v, want StockError", err)
	}
	if stock.Available != 5 || stock.Requested != 6 || stock.Conflict {
		t.Errorf("stock error = %+v", stock)
	}

	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 5 {
		t.Errorf("quantity = %v, want 5", crop.Quantity)
	}
	orders, _ := s.ListOrders(context.Background(), store.OrderFilter{})
	if len(orders) != 0 {
		t.Errorf("orders = %d, want 0", len(orders))
	}
}

func TestValidation(t *testing.T) {
	s, _ := seed(t, 5)
	svc := NewService(s, nil, nil, nil)

	tests := []struct {
		name   string
		mutate func(*PurchaseRequest)
	}{
		{"zero quantity", func(r *PurchaseRequest) { r.Quantity = 0 }},
		{"negative quantity", func(r *PurchaseRequest) { r.Quantity = -1 }},
		{"blank address", func(r *PurchaseRequest) { r.DeliveryAddress = "   " }},
		{"no customer", func(r *PurchaseRequest) { r.Customer = Customer{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(1)
			tt.mutate(&req)
			_, err := svc.CommitPurchase(context.Background(), req)
			if apperr.CodeOf(err) != apperr.CodeValidation {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}

	req := request(1)
	req.CropID = "missing"
	if _, err := svc.CommitPurchase(context.Background(), req); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("got %v, want not found", err)
	}
}

func TestConcurrentCommitsExactlyOneSucceeds(t *testing.T) {
	s, _ := seed(t, 5)
	svc := NewService(s, nil, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.CommitPurchase(context.Background(), request(5))
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case !apperr.IsStock(err):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}

	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 0 {
		t.Errorf("quantity = %v, want 0", crop.Quantity)
	}
	orders, _ := s.ListOrders(context.Background(), store.OrderFilter{})
	if len(orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders))
	}
}

func TestPartialCommitIsCompensatedAndJournaled(t *testing.T) {
	s, _ := seed(t, 10)
	s.Hook = func(op string) error {
		if op == "create_order" {
			return errors.New("orders collection unavailable")
		}
		return nil
	}
	journal := reconcile.NewMemoryJournal()
	svc := NewService(s, journal, nil, nil)

	_, err := svc.CommitPurchase(context.Background(), request(4))

	var partial *apperr.PartialCommitError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialCommitError", err)
	}
	if !partial.Compensated || partial.JournalID == "" {
		t.Errorf("partial = %+v", partial)
	}
	if apperr.HTTPStatus(err) != 500 {
		t.Errorf("status = %d", apperr.HTTPStatus(err))
	}

	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 10 {
		t.Errorf("quantity = %v, want restored 10", crop.Quantity)
	}

	entries, _ := journal.List(context.Background())
	if len(entries) != 1 || entries[0].Kind != reconcile.KindPartialCommit || entries[0].Quantity != 4 {
		t.Errorf("journal = %+v", entries)
	}
}

func TestPartialCommitWithoutConditionalWrites(t *testing.T) {
	mem, _ := seed(t, 10)
	mem.Hook = func(op string) error {
		if op == "create_order" {
			return errors.New("timeout")
		}
		return nil
	}
	journal := reconcile.NewMemoryJournal()
	svc := NewService(plainStore{mem}, journal, nil, nil)

	_, err := svc.CommitPurchase(context.Background(), request(4))

	var partial *apperr.PartialCommitError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialCommitError", err)
	}
	if partial.Compensated {
		t.Error("stock must not be restored without conditional writes")
	}

	crop, _ := mem.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 6 {
		t.Errorf("quantity = %v, want 6", crop.Quantity)
	}
	entries, _ := journal.List(context.Background())
	if len(entries) != 1 || entries[0].Compensated {
		t.Errorf("journal = %+v", entries)
	}
}

func TestFractionalQuantities(t *testing.T) {
	s, _ := seed(t, 10)
	svc := NewService(s, nil, nil, nil)

	if _, err := svc.CommitPurchase(context.Background(), request(0.1)); err != nil {
		t.Fatal(err)
	}
	crop, _ := s.GetCrop(context.Background(), "crop-1")
	if crop.Quantity != 9.9 {
		t.Errorf("quantity = %v, want 9.9", crop.Quantity)
	}
}
