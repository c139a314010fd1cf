package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/shop-api/internal/core/domain"
)

type productDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ProductName   string             `bson:"productName"`
	Category      string             `bson:"category"`
	Price         float64            `bson:"price"`
	StockQuantity int                `bson:"stockQuantity"`
}

func (d productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:            d.ID.Hex(),
		ProductName:   d.ProductName,
		Category:      d.Category,
		Price:         d.Price,
		StockQuantity: d.StockQuantity,
	}
}

func (m *MongoAdapter) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	doc := productDocument{
		ID:            primitive.NewObjectID(),
		ProductName:   product.ProductName,
		Category:      product.Category,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
	}
	if _, err := m.products.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := objectID(id, "productId")
	if err != nil {
		return nil, err
	}
	return m.findOneProduct(ctx, bson.M{"_id": oid})
}

func (m *MongoAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return m.findProducts(ctx, bson.M{})
}

func (m *MongoAdapter) FindProductsByName(ctx context.Context, name string) ([]domain.Product, error) {
	return m.findProducts(ctx, bson.M{"productName": name})
}

func (m *MongoAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	oid, err := objectID(id, "productId")
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	if patch.ProductName != nil {
		set["productName"] = *patch.ProductName
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Price != nil {
		set["price"] = *patch.Price
	}
	if patch.StockQuantity != nil {
		set["stockQuantity"] = *patch.StockQuantity
	}

	return m.findOneAndUpdateProduct(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func (m *MongoAdapter) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := objectID(id, "productId")
	if err != nil {
		return nil, err
	}

	var doc productDocument
	err = m.products.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) RestoreProduct(ctx context.Context, product domain.Product) error {
	oid, err := objectID(product.ID, "productId")
	if err != nil {
		return err
	}

	doc := productDocument{
		ID:            oid,
		ProductName:   product.ProductName,
		Category:      product.Category,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
	}
	if _, err := m.products.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("restore product: %w", err)
	}
	return nil
}

func (m *MongoAdapter) TotalStock(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalStock", Value: bson.D{{Key: "$sum", Value: "$stockQuantity"}}},
		}}},
	}

	cursor, err := m.products.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate stock: %w", err)
	}

	var rows []struct {
		TotalStock int64 `bson:"totalStock"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode stock total: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].TotalStock, nil
}

func (m *MongoAdapter) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	oid, err := objectID(id, "productOrdered")
	if err != nil {
		return nil, err
	}

	// The $gte guard and the $inc run as one single-document update, so two
	// concurrent reservations cannot both pass the check on the same units.
	return m.findOneAndUpdateProduct(ctx,
		bson.M{"_id": oid, "stockQuantity": bson.M{"$gte": quantity}},
		bson.M{"$inc": bson.M{"stockQuantity": -quantity}},
	)
}

func (m *MongoAdapter) IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	oid, err := objectID(id, "productOrdered")
	if err != nil {
		return nil, err
	}

	return m.findOneAndUpdateProduct(ctx,
		bson.M{"_id": oid},
		bson.M{"$inc": bson.M{"stockQuantity": quantity}},
	)
}

func (m *MongoAdapter) findOneProduct(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var doc productDocument
	err := m.products.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) findProducts(ctx context.Context, filter bson.M) ([]domain.Product, error) {
	cursor, err := m.products.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, *d.toDomain())
	}
	return products, nil
}

func (m *MongoAdapter) findOneAndUpdateProduct(ctx context.Context, filter, update bson.M) (*domain.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDocument
	err := m.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return doc.toDomain(), nil
}
