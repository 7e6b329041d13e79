package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

func newApp(jwtService *utils.JWTService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Use(requestid.New())
	app.Use(RequestLogger(nil))
	app.Use(Metrics(metrics.New("test")))

	app.Get("/me", func(c fiber.Ctx) error {
		sess, err := RequireSession(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": sess.UserID, "role": sess.Role})
	}, AuthMiddleware(jwtService))

	app.Get("/fail/:kind", func(c fiber.Ctx) error {
		switch c.Params("kind") {
		case "stock":
			return &apperr.StockError{CropID: "c1", Requested: 6, Available: 5, Unit: "kg"}
		case "partial":
			return &apperr.PartialCommitError{CropID: "c1", Quantity: 4, JournalID: "j1", Err: errors.New("boom")}
		case "store":
			return apperr.Store("чтение", errors.New("timeout"))
		default:
			return errors.New("unexpected")
		}
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	app := newApp(jwtService)

	token, err := jwtService.GenerateToken(session.Session{UserID: "f1", Name: "Ramesh", Role: models.RoleFarmer})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if resp.Header.Get(fiber.HeaderXRequestID) == "" {
				t.Error("missing request id")
			}
			if tt.status == fiber.StatusOK {
				body := decode(t, resp)
				if body["user_id"] != "f1" || body["role"] != "farmer" {
					t.Errorf("body = %v", body)
				}
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	app := newApp(utils.NewJWTService("secret"))

	tests := []struct {
		kind   string
		status int
		code   string
	}{
		{"stock", fiber.StatusConflict, string(apperr.CodeStock)},
		{"partial", fiber.StatusInternalServerError, string(apperr.CodePartialCommit)},
		{"store", fiber.StatusBadGateway, string(apperr.CodeStore)},
		{"other", fiber.StatusInternalServerError, string(apperr.CodeInternal)},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail/"+tt.kind, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decode(t, resp)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if tt.kind == "partial" && (body["reconcile"] != true || body["journalId"] != "j1") {
				t.Errorf("body = %v", body)
			}
			if tt.kind == "stock" && body["available"] != float64(5) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestUnknownRouteKeepsFiberStatus(t *testing.T) {
	app := newApp(utils.NewJWTService("secret"))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
