package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/shop-api/internal/core/domain"
)

const (
	usersCollection    = "users"
	productsCollection = "products"
	ordersCollection   = "orders"
)

// MongoAdapter implements the user, product and order repositories on a
// single MongoDB database.
type MongoAdapter struct {
	users    *mongo.Collection
	products *mongo.Collection
	orders   *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		users:    db.Collection(usersCollection),
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
	}
}

func (m *MongoAdapter) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// EnsureIndexes creates the unique user indexes and the lookup indexes used by
// the order filters. It is safe to call repeatedly.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}
	plain := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}

	if _, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("name"), unique("email"), unique("phoneNumber"),
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := m.products.Indexes().CreateOne(ctx, plain("productName")); err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	if _, err := m.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		plain("user"), plain("productOrdered"), plain("orderDate"),
	}); err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	return nil
}

func objectID(id, field string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.NewError(domain.ErrInvalidInput, "Invalid "+field)
	}
	return oid, nil
}
