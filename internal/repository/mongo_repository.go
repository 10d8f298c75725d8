package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartDocument keeps line items as a JSON string so decimal amounts keep
// their exact representation.
type cartDocument struct {
	OwnerKey  string    `bson:"owner_key"`
	Items     string    `bson:"items"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) GetCart(ctx context.Context, key string) (*domain.CartSnapshot, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"owner_key": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal([]byte(doc.Items), &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return &domain.CartSnapshot{Items: items, UpdatedAt: doc.UpdatedAt}, nil
}

func (m *MongoCartRepository) UpsertCart(ctx context.Context, key string, items []domain.CartLineItem) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"items": string(encoded), "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"owner_key": key}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"owner_key": key}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) Load(ctx context.Context, key string) ([]domain.CartLineItem, error) {
	snapshot, err := m.GetCart(ctx, key)
	if errors.Is(err, ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot.Items, nil
}

func (m *MongoCartRepository) Save(ctx context.Context, key string, items []domain.CartLineItem) error {
	if len(items) == 0 {
		return m.DeleteCart(ctx, key)
	}
	return m.UpsertCart(ctx, key, items)
}
