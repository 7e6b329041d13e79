package crop

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/store/memory"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

var (
	farmer   = session.Session{UserID: "f1", Name: "Ramesh", Role: models.RoleFarmer}
	other    = session.Session{UserID: "f2", Name: "Suresh", Role: models.RoleFarmer}
	customer = session.Session{UserID: "u1", Name: "Asha", Role: models.RoleCustomer}
)

type testServer struct {
	app   *fiber.App
	jwt   *utils.JWTService
	store *memory.Store
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	crops := []models.Crop{
		{ID: "crop-1", FarmerID: "f1", FarmerName: "Ramesh", CropName: "Basmati Rice", Category: "Grains", Quantity: 10, Unit: "kg", PricePerUnit: 80},
		{ID: "crop-2", FarmerID: "f1", FarmerName: "Ramesh", CropName: "Tomato", Category: "Vegetables", Quantity: 0, Unit: "kg", PricePerUnit: 20},
		{ID: "crop-3", FarmerID: "f2", FarmerName: "Suresh", CropName: "Brown Rice", Category: "grains", Quantity: 5, Unit: "kg", PricePerUnit: 60},
	}
	for i := range crops {
		if err := s.CreateCrop(ctx, &crops[i]); err != nil {
			t.Fatal(err)
		}
	}

	jwtService := utils.NewJWTService("secret")
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(nil)})
	svc := NewCropService(s, jwtService, nil)
	svc.SetupPublicRoutes(app)
	svc.SetupRoutes(app)
	return &testServer{app: app, jwt: jwtService, store: s}
}

func (ts *testServer) do(t *testing.T, sess *session.Session, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		token, err := ts.jwt.GenerateToken(*sess)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp.StatusCode, out
}

func TestCatalogueFilters(t *testing.T) {
	ts := newServer(t)

	tests := []struct {
		query string
		count int
	}{
		{"", 3},
		{"?category=grains", 2},
		{"?search=RICE", 2},
		{"?in_stock=true", 2},
		{"?farmer_id=f1&in_stock=true", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := ts.do(t, nil, http.MethodGet, "/api/crops"+tt.query, nil)
			if status != fiber.StatusOK || body["count"] != float64(tt.count) {
				t.Errorf("status = %d body = %v", status, body)
			}
		})
	}

	status, _ := ts.do(t, nil, http.MethodGet, "/api/crops?in_stock=maybe", nil)
	if status != fiber.StatusBadRequest {
		t.Errorf("bad in_stock status = %d", status)
	}
	status, _ = ts.do(t, nil, http.MethodGet, "/api/crops/nope", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("missing crop status = %d", status)
	}
}

func TestCropManagement(t *testing.T) {
	ts := newServer(t)
	newCrop := map[string]any{"cropName": "Wheat", "category": "Grains", "quantity": 50, "unit": "kg", "pricePerUnit": 25.499}

	status, _ := ts.do(t, &customer, http.MethodPost, "/api/crops", newCrop)
	if status != fiber.StatusForbidden {
		t.Errorf("customer create status = %d, want 403", status)
	}

	status, body := ts.do(t, &farmer, http.MethodPost, "/api/crops", newCrop)
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d body = %v", status, body)
	}
	created := body["crop"].(map[string]any)
	id := created["id"].(string)
	if created["farmerId"] != "f1" || created["pricePerUnit"] != 25.5 {
		t.Errorf("crop = %v", created)
	}

	update := map[string]any{"cropName": "Wheat", "category": "Grains", "quantity": 40, "unit": "kg", "pricePerUnit": 24}
	status, _ = ts.do(t, &other, http.MethodPut, "/api/crops/"+id, update)
	if status != fiber.StatusForbidden {
		t.Errorf("foreign update status = %d, want 403", status)
	}

	update["quantity"] = -1
	status, _ = ts.do(t, &farmer, http.MethodPut, "/api/crops/"+id, update)
	if status != fiber.StatusBadRequest {
		t.Errorf("negative quantity status = %d, want 400", status)
	}

	update["quantity"] = 40
	status, body = ts.do(t, &farmer, http.MethodPut, "/api/crops/"+id, update)
	if status != fiber.StatusOK || body["crop"].(map[string]any)["quantity"] != float64(40) {
		t.Errorf("update status = %d body = %v", status, body)
	}

	status, _ = ts.do(t, &farmer, http.MethodDelete, "/api/crops/"+id, nil)
	if status != fiber.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
	if _, err := ts.store.GetCrop(context.Background(), models.ID(id)); err == nil {
		t.Error("crop must be deleted")
	}
}

func TestCreateCropFromFormStrings(t *testing.T) {
	ts := newServer(t)
	form := map[string]any{"cropName": "Onion", "category": "Vegetables", "quantity": "100", "unit": "kg", "pricePerUnit": "25"}

	status, body := ts.do(t, &farmer, http.MethodPost, "/api/crops", form)
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d body = %v", status, body)
	}
	created := body["crop"].(map[string]any)
	if created["quantity"] != float64(100) || created["pricePerUnit"] != float64(25) {
		t.Errorf("crop = %v", created)
	}
}
