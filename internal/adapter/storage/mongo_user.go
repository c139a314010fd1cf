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

var errDuplicateUser = domain.NewError(domain.ErrConflict, "A user with the same name, email or phoneNumber already exists")

type userDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Email       string             `bson:"email"`
	PhoneNumber string             `bson:"phoneNumber"`
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Email:       d.Email,
		PhoneNumber: d.PhoneNumber,
	}
}

func (m *MongoAdapter) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	doc := userDocument{
		ID:          primitive.NewObjectID(),
		Name:        user.Name,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
	}
	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errDuplicateUser
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id, "userId")
	if err != nil {
		return nil, err
	}

	var doc userDocument
	err = m.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	cursor, err := m.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, *d.toDomain())
	}
	return users, nil
}

func (m *MongoAdapter) RenameUser(ctx context.Context, id, name string) (*domain.User, error) {
	oid, err := objectID(id, "userId")
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	err = m.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"name": name}},
		opts,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errDuplicateUser
		}
		return nil, fmt.Errorf("rename user: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) DeleteUser(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id, "userId")
	if err != nil {
		return nil, err
	}

	var doc userDocument
	err = m.users.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) RestoreUser(ctx context.Context, user domain.User) error {
	oid, err := objectID(user.ID, "userId")
	if err != nil {
		return err
	}

	doc := userDocument{
		ID:          oid,
		Name:        user.Name,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
	}
	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errDuplicateUser
		}
		return fmt.Errorf("restore user: %w", err)
	}
	return nil
}
