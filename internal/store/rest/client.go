// Package rest реализует клиент хранилища записей в стиле json-server.
// Условных записей у такого хранилища нет: параллельные изменения одного чата
// или остатка решаются по принципу «последняя запись побеждает».
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// Client реализует store.Store поверх HTTP API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

// NewClient создаёт клиент. rps <= 0 отключает ограничение частоты запросов.
func NewClient(baseURL string, timeout time.Duration, rps float64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Limiter:    rate.NewLimiter(limit, burst),
		Logger:     logger,
	}
}

var _ store.Store = (*Client)(nil)

// do выполняет запрос и декодирует ответ в out, если он не nil
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ожидание лимита запросов: %w", err)
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("сериализация запроса %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Warn("Запрос к хранилищу не выполнен",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("чтение ответа %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, store.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		c.Logger.Warn("Хранилище вернуло ошибку",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return fmt.Errorf("%s %s: статус %d", method, path, resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("разбор ответа %s %s: %w", method, path, err)
	}
	return nil
}

func itemPath(collection string, id models.ID) string {
	return "/" + collection + "/" + url.PathEscape(id.String())
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/"+store.Users, nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, itemPath(store.Users, id), nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) CreateUser(ctx context.Context, u *models.User) error {
	return c.do(ctx, http.MethodPost, "/"+store.Users, nil, u, u)
}

func (c *Client) ListCrops(ctx context.Context, f store.CropFilter) ([]models.Crop, error) {
	query := url.Values{}
	if f.FarmerID != "" {
		query.Set("farmerId", f.FarmerID.String())
	}

	var all []models.Crop
	if err := c.do(ctx, http.MethodGet, "/"+store.Crops, query, nil, &all); err != nil {
		return nil, err
	}

	// Сервер сравнивает поля как строки и не знает остальных фильтров,
	// поэтому окончательный отбор делаем на клиенте
	crops := []models.Crop{}
	for i := range all {
		if f.Match(&all[i]) {
			crops = append(crops, all[i])
		}
	}
	return crops, nil
}

func (c *Client) GetCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	var crop models.Crop
	if err := c.do(ctx, http.MethodGet, itemPath(store.Crops, id), nil, nil, &crop); err != nil {
		return nil, err
	}
	return &crop, nil
}

func (c *Client) CreateCrop(ctx context.Context, crop *models.Crop) error {
	if crop.ID == "" {
		crop.ID = store.NewID()
	}
	return c.do(ctx, http.MethodPost, "/"+store.Crops, nil, crop, crop)
}

func (c *Client) UpdateCrop(ctx context.Context, crop *models.Crop) error {
	return c.do(ctx, http.MethodPut, itemPath(store.Crops, crop.ID), nil, crop, nil)
}

func (c *Client) SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error {
	patch := map[string]any{"quantity": quantity}
	return c.do(ctx, http.MethodPatch, itemPath(store.Crops, id), nil, patch, nil)
}

func (c *Client) DeleteCrop(ctx context.Context, id models.ID) error {
	return c.do(ctx, http.MethodDelete, itemPath(store.Crops, id), nil, nil, nil)
}

func (c *Client) ListChats(ctx context.Context, f store.ChatFilter) ([]models.Chat, error) {
	query := url.Values{}
	if f.CropID != "" {
		query.Set("cropId", f.CropID.String())
	}
	if f.CustomerID != "" {
		query.Set("customerId", f.CustomerID.String())
	}
	if f.FarmerID != "" {
		query.Set("farmerId", f.FarmerID.String())
	}

	var all []models.Chat
	if err := c.do(ctx, http.MethodGet, "/"+store.Chats, query, nil, &all); err != nil {
		return nil, err
	}

	chats := []models.Chat{}
	for i := range all {
		if f.Match(&all[i]) {
			chats = append(chats, all[i])
		}
	}
	return chats, nil
}

func (c *Client) GetChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	var chat models.Chat
	if err := c.do(ctx, http.MethodGet, itemPath(store.Chats, id), nil, nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = store.NewID()
	}
	if chat.Messages == nil {
		chat.Messages = []models.Message{}
	}
	return c.do(ctx, http.MethodPost, "/"+store.Chats, nil, chat, chat)
}

func (c *Client) SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error {
	patch := struct {
		Messages []models.Message `json:"messages"`
		Revision int64            `json:"revision"`
	}{msgs, revision}
	return c.do(ctx, http.MethodPatch, itemPath(store.Chats, id), nil, patch, nil)
}

func (c *Client) DeleteChat(ctx context.Context, id models.ID) error {
	return c.do(ctx, http.MethodDelete, itemPath(store.Chats, id), nil, nil, nil)
}

func (c *Client) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	query := url.Values{}
	if f.CustomerID != "" {
		query.Set("customerId", f.CustomerID.String())
	}
	if f.FarmerID != "" {
		query.Set("farmerId", f.FarmerID.String())
	}

	var all []models.Order
	if err := c.do(ctx, http.MethodGet, "/"+store.Orders, query, nil, &all); err != nil {
		return nil, err
	}

	orders := []models.Order{}
	for i := range all {
		if f.Match(&all[i]) {
			orders = append(orders, all[i])
		}
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, id models.ID) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, itemPath(store.Orders, id), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = store.NewID()
	}
	return c.do(ctx, http.MethodPost, "/"+store.Orders, nil, o, o)
}

// Ping проверяет доступность хранилища
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/"+store.Crops, url.Values{"_limit": {"1"}}, nil, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) Close(context.Context) error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}
