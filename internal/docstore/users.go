package docstore

import (
	"context"
	"errors"
	"time"

	"piazza/internal/cache"
	"piazza/internal/models"
	"piazza/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore implements repository.UserRepository on the users collection.
type UserStore struct {
	store *Store
	coll  *mongo.Collection
}

func (s *UserStore) GetByID(ctx context.Context, id uint) (user *models.User, err error) {
	ctx, end := startSpan(ctx, "GetByID", usersCollection)
	defer end(&err)

	var u models.User
	err = cache.Aside(ctx, cache.UserKey(id), &u, cache.UserTTL, func() error {
		if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"googleId": googleID})
}

func (s *UserStore) Create(ctx context.Context, user *models.User) (err error) {
	ctx, end := startSpan(ctx, "Create", usersCollection)
	defer end(&err)

	id, err := s.store.nextID(ctx, usersCollection)
	if err != nil {
		return models.NewInternalError(err)
	}
	now := time.Now().UTC()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		user.ID = 0
		if isDuplicateKey(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// userUpdateDoc sets only the fields that carry a value.
func userUpdateDoc(user *models.User, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if user.Name != "" {
		set["name"] = user.Name
	}
	if user.Email != "" {
		set["email"] = user.Email
	}
	if user.Password != "" {
		set["password"] = user.Password
	}
	if user.GoogleID != nil {
		set["googleId"] = *user.GoogleID
	}
	return bson.M{"$set": set}
}

func (s *UserStore) Update(ctx context.Context, user *models.User) (err error) {
	ctx, end := startSpan(ctx, "Update", usersCollection)
	defer end(&err)

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": user.ID}, userUpdateDoc(user, time.Now().UTC()))
	if err != nil {
		if isDuplicateKey(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("User", user.ID)
	}
	return nil
}

// Delete removes the user and, matching the relational cascade, their posts
// and their comments on other posts.
func (s *UserStore) Delete(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "Delete", usersCollection)
	defer end(&err)

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, id)
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("User", id)
	}
	posts := s.store.db.Collection(postsCollection)
	if _, err := posts.DeleteMany(ctx, bson.M{"userId": id}); err != nil {
		return models.NewInternalError(err)
	}
	_, err = posts.UpdateMany(ctx,
		bson.M{"comments.userId": id},
		bson.M{"$pull": bson.M{"comments": bson.M{"userId": id}}},
	)
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
