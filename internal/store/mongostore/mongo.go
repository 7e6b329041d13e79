// Package mongostore хранит записи в MongoDB, по коллекции на тип записи.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// seqField хранит порядок вставки, чтобы списки возвращались как в json-server
const seqField = "_seq"

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
	logger *zap.Logger
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.Conditional = (*Store)(nil)
)

// Connect подключается к MongoDB и проверяет соединение
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB не отвечает: %w", err)
	}

	logger.Info("Успешное подключение к MongoDB", zap.String("database", database))
	return &Store{Client: client, DB: client.Database(database), logger: logger}, nil
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.DB.Collection(name)
}

// toDoc переводит запись в документ через её JSON-представление,
// чтобы форма в MongoDB совпадала с формой в json-server
func toDoc(v any) (bson.D, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDoc(raw bson.Raw, out any) error {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func idFilter(id models.ID) bson.M {
	return bson.M{"_id": id.String()}
}

func getDoc[T any](ctx context.Context, s *Store, collection string, id models.ID) (*T, error) {
	raw, err := s.coll(collection).FindOne(ctx, idFilter(id)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s %s: %w", collection, id, err)
	}

	var v T
	if err := fromDoc(raw, &v); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s %s: %w", collection, id, err)
	}
	return &v, nil
}

func listDocs[T any](ctx context.Context, s *Store, collection string, filter bson.M) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: seqField, Value: 1}})
	cur, err := s.coll(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	items := []T{}
	for cur.Next(ctx) {
		var v T
		if err := fromDoc(cur.Current, &v); err != nil {
			return nil, fmt.Errorf("ошибка разбора %s: %w", collection, err)
		}
		items = append(items, v)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода %s: %w", collection, err)
	}
	return items, nil
}

func insertDoc(ctx context.Context, s *Store, collection string, id models.ID, v any) error {
	doc, err := toDoc(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", collection, err)
	}
	doc = append(doc,
		bson.E{Key: "_id", Value: id.String()},
		bson.E{Key: seqField, Value: time.Now().UnixNano()},
	)

	if _, err := s.coll(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("ошибка создания %s %s: %w", collection, id, err)
	}
	return nil
}

func setFields(ctx context.Context, s *Store, collection string, filter bson.M, fields any) (*mongo.UpdateResult, error) {
	doc, err := toDoc(fields)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации %s: %w", collection, err)
	}
	return s.coll(collection).UpdateOne(ctx, filter, bson.M{"$set": doc})
}

func patchDoc(ctx context.Context, s *Store, collection string, id models.ID, fields any) error {
	res, err := setFields(ctx, s, collection, idFilter(id), fields)
	if err != nil {
		return fmt.Errorf("ошибка обновления %s %s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

func deleteDoc(ctx context.Context, s *Store, collection string, id models.ID) error {
	res, err := s.coll(collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("ошибка удаления %s %s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// missingOrConflict вызывается, когда условное обновление ничего не нашло
func missingOrConflict(ctx context.Context, s *Store, collection string, id models.ID) error {
	n, err := s.coll(collection).CountDocuments(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("ошибка проверки %s %s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", collection, id, store.ErrConflict)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return listDocs[models.User](ctx, s, store.Users, bson.M{})
}

func (s *Store) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	return getDoc[models.User](ctx, s, store.Users, id)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = store.NewID()
	}
	return insertDoc(ctx, s, store.Users, u.ID, u)
}

func (s *Store) ListCrops(ctx context.Context, f store.CropFilter) ([]models.Crop, error) {
	filter := bson.M{}
	if f.FarmerID != "" {
		filter["farmerId"] = f.FarmerID.String()
	}
	all, err := listDocs[models.Crop](ctx, s, store.Crops, filter)
	if err != nil {
		return nil, err
	}

	crops := []models.Crop{}
	for i := range all {
		if f.Match(&all[i]) {
			crops = append(crops, all[i])
		}
	}
	return crops, nil
}

func (s *Store) GetCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	return getDoc[models.Crop](ctx, s, store.Crops, id)
}

func (s *Store) CreateCrop(ctx context.Context, c *models.Crop) error {
	if c.ID == "" {
		c.ID = store.NewID()
	}
	return insertDoc(ctx, s, store.Crops, c.ID, c)
}

func (s *Store) UpdateCrop(ctx context.Context, c *models.Crop) error {
	return patchDoc(ctx, s, store.Crops, c.ID, c)
}

func (s *Store) SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error {
	return patchDoc(ctx, s, store.Crops, id, map[string]float64{"quantity": quantity})
}

func (s *Store) CompareAndSetCropQuantity(ctx context.Context, id models.ID, expected, next float64) error {
	filter := bson.M{"_id": id.String(), "quantity": expected}
	res, err := s.coll(store.Crops).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"quantity": next}})
	if err != nil {
		return fmt.Errorf("ошибка списания остатка %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, s, store.Crops, id)
	}
	return nil
}

func (s *Store) DeleteCrop(ctx context.Context, id models.ID) error {
	return deleteDoc(ctx, s, store.Crops, id)
}

func chatFilter(f store.ChatFilter) bson.M {
	filter := bson.M{}
	if f.CropID != "" {
		filter["cropId"] = f.CropID.String()
	}
	if f.CustomerID != "" {
		filter["customerId"] = f.CustomerID.String()
	}
	if f.FarmerID != "" {
		filter["farmerId"] = f.FarmerID.String()
	}
	return filter
}

func (s *Store) ListChats(ctx context.Context, f store.ChatFilter) ([]models.Chat, error) {
	return listDocs[models.Chat](ctx, s, store.Chats, chatFilter(f))
}

func (s *Store) GetChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	return getDoc[models.Chat](ctx, s, store.Chats, id)
}

func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	if c.ID == "" {
		c.ID = store.NewID()
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	return insertDoc(ctx, s, store.Chats, c.ID, c)
}

type messagesPatch struct {
	Messages []models.Message `json:"messages"`
	Revision int64            `json:"revision"`
}

func (s *Store) SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error {
	return patchDoc(ctx, s, store.Chats, id, messagesPatch{msgs, revision})
}

func (s *Store) CompareAndSetChatMessages(ctx context.Context, id models.ID, expectedRevision int64, msgs []models.Message) error {
	filter := bson.M{"_id": id.String(), "revision": expectedRevision}
	if expectedRevision == 0 {
		// у чатов, созданных старым клиентом, поля revision нет
		filter = bson.M{"_id": id.String(), "$or": bson.A{
			bson.M{"revision": 0},
			bson.M{"revision": bson.M{"$exists": false}},
		}}
	}

	res, err := setFields(ctx, s, store.Chats, filter, messagesPatch{msgs, expectedRevision + 1})
	if err != nil {
		return fmt.Errorf("ошибка записи сообщений чата %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, s, store.Chats, id)
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, id models.ID) error {
	return deleteDoc(ctx, s, store.Chats, id)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	filter := bson.M{}
	if f.CustomerID != "" {
		filter["customerId"] = f.CustomerID.String()
	}
	if f.FarmerID != "" {
		filter["farmerId"] = f.FarmerID.String()
	}
	if f.CropID != "" {
		filter["cropId"] = f.CropID.String()
	}
	return listDocs[models.Order](ctx, s, store.Orders, filter)
}

func (s *Store) GetOrder(ctx context.Context, id models.ID) (*models.Order, error) {
	return getDoc[models.Order](ctx, s, store.Orders, id)
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = store.NewID()
	}
	return insertDoc(ctx, s, store.Orders, o.ID, o)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
