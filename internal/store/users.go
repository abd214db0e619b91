package store

import (
	"context"
	"errors"
	"fmt"

	"carrito-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Users lists all users ordered by userName.
func (s *Store) Users(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "userName", Value: 1}})
	cursor, err := s.db.Collection(collUsers).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// UserByID fetches a user by the userId field, not the document id.
func (s *Store) UserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"userId": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &user, nil
}

// AddressesByUserID lists all saved addresses for a user.
func (s *Store) AddressesByUserID(ctx context.Context, userID string) ([]models.Address, error) {
	cursor, err := s.db.Collection(collAddresses).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	addresses := []models.Address{}
	if err := cursor.All(ctx, &addresses); err != nil {
		return nil, fmt.Errorf("failed to decode addresses: %w", err)
	}
	return addresses, nil
}
