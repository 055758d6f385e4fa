package store

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerlink/accounts/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// userDocument is the MongoDB shape of a user.
type userDocument struct {
	ID                    bson.ObjectID `bson:"_id,omitempty"`
	Email                 string        `bson:"email"`
	PasswordHash          string        `bson:"password_hash"`
	ExternalAccountID     string        `bson:"external_account_id"`
	ExternalAccountCode   string        `bson:"external_account_code"`
	ExternalAccountLinked bool          `bson:"external_account_linked"`
	ExternalReauthToken   string        `bson:"external_reauth_token"`
	CreatedAt             time.Time     `bson:"created_at"`
	UpdatedAt             time.Time     `bson:"updated_at"`
}

func (d userDocument) toUser() types.User {
	return types.User{
		ID:                    d.ID.Hex(),
		Email:                 d.Email,
		PasswordHash:          d.PasswordHash,
		ExternalAccountID:     d.ExternalAccountID,
		ExternalAccountCode:   d.ExternalAccountCode,
		ExternalAccountLinked: d.ExternalAccountLinked,
		ExternalReauthToken:   d.ExternalReauthToken,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

// MongoUserBackend handles persistence for users in a MongoDB collection.
// Email uniqueness is enforced by a unique index created in EnsureIndexes.
type MongoUserBackend struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoUserBackend(coll *mongo.Collection) *MongoUserBackend {
	return &MongoUserBackend{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique email index if it does not exist.
func (r *MongoUserBackend) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	return err
}

func (r *MongoUserBackend) Insert(ctx context.Context, user types.User) (types.User, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		ID:                    bson.NewObjectID(),
		Email:                 user.Email,
		PasswordHash:          user.PasswordHash,
		ExternalAccountID:     user.ExternalAccountID,
		ExternalAccountCode:   user.ExternalAccountCode,
		ExternalAccountLinked: user.ExternalAccountLinked,
		ExternalReauthToken:   user.ExternalReauthToken,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return doc.toUser(), nil
}

func (r *MongoUserBackend) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *MongoUserBackend) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// Update applies the patch with a single $set so concurrent writers never
// observe a half-applied record.
func (r *MongoUserBackend) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, ErrNotFound
	}

	set := bson.D{}
	if patch.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *patch.Email})
	}
	if patch.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *patch.PasswordHash})
	}
	if patch.ExternalAccountID != nil {
		set = append(set, bson.E{Key: "external_account_id", Value: *patch.ExternalAccountID})
	}
	if patch.ExternalAccountCode != nil {
		set = append(set, bson.E{Key: "external_account_code", Value: *patch.ExternalAccountCode})
	}
	if patch.ExternalAccountLinked != nil {
		set = append(set, bson.E{Key: "external_account_linked", Value: *patch.ExternalAccountLinked})
	}
	if patch.ExternalReauthToken != nil {
		set = append(set, bson.E{Key: "external_reauth_token", Value: *patch.ExternalReauthToken})
	}
	set = append(set, bson.E{Key: "updated_at", Value: r.now().UTC().Truncate(time.Millisecond)})

	var doc userDocument
	err = r.coll.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return doc.toUser(), nil
}

func (r *MongoUserBackend) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserBackend) List(ctx context.Context) ([]types.User, error) {
	cursor, err := r.coll.Find(
		ctx,
		bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]types.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}

func (r *MongoUserBackend) findOne(ctx context.Context, filter bson.D) (types.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return doc.toUser(), nil
}
