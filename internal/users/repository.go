package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/devcoons/software-governance-sub000/internal/models"
)

// Repository is the user-directory contract consumed by the auth core.
// Reads are assumed strongly consistent after writes.
type Repository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	// FindByLogin resolves an account by email or username. Returns (nil, nil)
	// when no account matches.
	FindByLogin(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// UpdatePassword replaces the password hash and leaves the account in the
	// normal state: force-password-change cleared, temp-password timestamp gone.
	UpdatePassword(ctx context.Context, id, hash string) error
	// IssueTempPassword stores a temporary password hash and flags the account
	// for a forced change.
	IssueTempPassword(ctx context.Context, id, hash string) error
	// BurnTemporaryPassword overwrites the hash with an unusable digest while
	// keeping the force-change flag set; the temp password is single-use.
	BurnTemporaryPassword(ctx context.Context, id, unusableHash string) error
	UpdateLastLogin(ctx context.Context, id string) error
	SetTotpEnabled(ctx context.Context, id string) error
	GetTotpSecret(ctx context.Context, id string) (string, error)
	UpsertTotpSecret(ctx context.Context, id, secret string) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a new repository for the given collection
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	// login matching is lowercase, so identifiers are stored lowercase
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *MongoRepository) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	filter := bson.M{"$or": bson.A{
		bson.M{"email": ident},
		bson.M{"username": ident},
	}}
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"passwordHash": hash, "forcePasswordChange": false, "updatedAt": now},
		"$unset": bson.M{"tempPasswordIssuedAt": ""},
	})
	return err
}

func (r *MongoRepository) IssueTempPassword(ctx context.Context, id, hash string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"passwordHash":         hash,
			"forcePasswordChange":  true,
			"tempPasswordIssuedAt": now,
			"updatedAt":            now,
		},
	})
	return err
}

func (r *MongoRepository) BurnTemporaryPassword(ctx context.Context, id, unusableHash string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"passwordHash": unusableHash, "updatedAt": now},
		"$unset": bson.M{"tempPasswordIssuedAt": ""},
	})
	return err
}

func (r *MongoRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"lastLoginAt": now, "updatedAt": now},
	})
	return err
}

func (r *MongoRepository) SetTotpEnabled(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"totpEnabled": true, "updatedAt": now},
	})
	return err
}

func (r *MongoRepository) GetTotpSecret(ctx context.Context, id string) (string, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", err
	}
	return u.TotpSecret, nil
}

func (r *MongoRepository) UpsertTotpSecret(ctx context.Context, id, secret string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"totpSecret": secret, "updatedAt": now},
	})
	return err
}
