// Package mongodb implements the broker's user store on MongoDB. Uniqueness
// of email and of the provider link is pushed down to unique indexes, which
// is what makes CreateIfAbsent a genuine conditional insert.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reelrooms/identity/domain"
)

const usersCollection = "users"

// UserRepository implements domain.UserRepository.
type UserRepository struct {
	users *mongo.Collection
}

// NewUserRepository creates the repository and ensures its indexes.
func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{users: db.Collection(usersCollection)}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *UserRepository) createIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetCollation(&options.Collation{Locale: "en", Strength: 2}),
		},
		{
			Keys: bson.D{
				{Key: "federated_identity.provider", Value: 1},
				{Key: "federated_identity.provider_id", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"federated_identity": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "federated_identity.attributes.identity_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByUserID(ctx context.Context, userID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": userID})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByProvider(ctx context.Context, provider, providerID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{
		"federated_identity.provider":    provider,
		"federated_identity.provider_id": providerID,
	})
}

func (r *UserRepository) FindByPoolIdentityID(ctx context.Context, identityID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{
		"federated_identity.attributes.identity_id": identityID,
	})
}

func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *domain.User) error {
	_, err := r.users.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.UserID}, user)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.UserID, err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
