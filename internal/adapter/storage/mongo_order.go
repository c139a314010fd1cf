package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/shop-api/internal/core/domain"
)

type orderDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	User           primitive.ObjectID `bson:"user"`
	ProductOrdered primitive.ObjectID `bson:"productOrdered"`
	OrderQuantity  int                `bson:"orderQuantity"`
	OrderDate      time.Time          `bson:"orderDate"`
}

func (d orderDocument) toDomain() *domain.Order {
	return &domain.Order{
		ID:             d.ID.Hex(),
		User:           d.User.Hex(),
		ProductOrdered: d.ProductOrdered.Hex(),
		OrderQuantity:  d.OrderQuantity,
		OrderDate:      d.OrderDate.UTC(),
	}
}

// orderDetailsDocument is an order joined with its user by $lookup.
type orderDetailsDocument struct {
	orderDocument `bson:",inline"`
	Users         []userDocument `bson:"users"`
}

func (d orderDetailsDocument) toDomain() domain.OrderDetails {
	details := domain.OrderDetails{
		ID:             d.ID.Hex(),
		ProductOrdered: d.ProductOrdered.Hex(),
		OrderQuantity:  d.OrderQuantity,
		OrderDate:      d.OrderDate.UTC(),
	}
	if len(d.Users) > 0 {
		details.User = d.Users[0].toDomain()
	}
	return details
}

func (m *MongoAdapter) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	userID, err := objectID(order.User, "user")
	if err != nil {
		return nil, err
	}
	productID, err := objectID(order.ProductOrdered, "productOrdered")
	if err != nil {
		return nil, err
	}

	doc := orderDocument{
		ID:             primitive.NewObjectID(),
		User:           userID,
		ProductOrdered: productID,
		OrderQuantity:  order.OrderQuantity,
		OrderDate:      order.OrderDate,
	}
	if _, err := m.orders.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	oid, err := objectID(id, "orderId")
	if err != nil {
		return nil, err
	}

	var doc orderDocument
	err = m.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) GetOrderDetails(ctx context.Context, id string) (*domain.OrderDetails, error) {
	oid, err := objectID(id, "orderId")
	if err != nil {
		return nil, err
	}

	details, err := m.aggregateOrders(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, nil
	}
	return &details[0], nil
}

func (m *MongoAdapter) FindOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderDetails, error) {
	match, err := orderFilterToBSON(filter)
	if err != nil {
		return nil, err
	}
	return m.aggregateOrders(ctx, match)
}

func (m *MongoAdapter) CountOrders(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	match, err := orderFilterToBSON(filter)
	if err != nil {
		return 0, err
	}

	n, err := m.orders.CountDocuments(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (m *MongoAdapter) UpdateOrder(ctx context.Context, id string, expectedQuantity int, patch domain.OrderPatch) (*domain.Order, error) {
	oid, err := objectID(id, "orderId")
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	if patch.OrderQuantity != nil {
		set["orderQuantity"] = *patch.OrderQuantity
	}
	if patch.OrderDate != nil {
		set["orderDate"] = *patch.OrderDate
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc orderDocument
	err = m.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "orderQuantity": expectedQuantity},
		bson.M{"$set": set},
		opts,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) DeleteOrder(ctx context.Context, id string) error {
	oid, err := objectID(id, "orderId")
	if err != nil {
		return err
	}

	if _, err := m.orders.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (m *MongoAdapter) aggregateOrders(ctx context.Context, match bson.M) ([]domain.OrderDetails, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "orderDate", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "user"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "users"},
		}}},
	}

	cursor, err := m.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}

	var docs []orderDetailsDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	details := make([]domain.OrderDetails, 0, len(docs))
	for _, d := range docs {
		details = append(details, d.toDomain())
	}
	return details, nil
}

func orderFilterToBSON(filter domain.OrderFilter) (bson.M, error) {
	match := bson.M{}
	if filter.Since != nil {
		match["orderDate"] = bson.M{"$gte": *filter.Since}
	}
	if filter.UserID != "" {
		oid, err := objectID(filter.UserID, "userId")
		if err != nil {
			return nil, err
		}
		match["user"] = oid
	}
	if filter.ProductIDs != nil {
		oids := make([]primitive.ObjectID, 0, len(filter.ProductIDs))
		for _, id := range filter.ProductIDs {
			oid, err := objectID(id, "productId")
			if err != nil {
				return nil, err
			}
			oids = append(oids, oid)
		}
		match["productOrdered"] = bson.M{"$in": oids}
	}
	return match, nil
}
