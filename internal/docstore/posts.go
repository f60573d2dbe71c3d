package docstore

import (
	"context"
	"errors"
	"time"

	"piazza/internal/models"
	"piazza/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ repository.PostRepository = (*PostStore)(nil)

// PostStore implements repository.PostRepository on the posts collection.
// Comments are embedded in their post document.
type PostStore struct {
	store *Store
	coll  *mongo.Collection
}

func liveFilter(topic string, now time.Time) bson.M {
	return bson.M{
		"topic":     topic,
		"status":    models.PostStatusLive,
		"expiresAt": bson.M{"$gte": now},
	}
}

func expiredFilter(topic string, now time.Time) bson.M {
	return bson.M{
		"topic": topic,
		"$or": bson.A{
			bson.M{"status": models.PostStatusExpired},
			bson.M{"expiresAt": bson.M{"$lt": now}},
		},
	}
}

func dueFilter(now time.Time) bson.M {
	return bson.M{
		"status":    models.PostStatusLive,
		"expiresAt": bson.M{"$lt": now},
	}
}

// mostActiveSort mirrors the relational tie-break: likes, then oldest.
func mostActiveSort() bson.D {
	return bson.D{
		{Key: "likes", Value: -1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	}
}

// hydrate restores the fields bson does not store on embedded comments.
func hydrate(p *models.Post) {
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	for i := range p.Comments {
		p.Comments[i].PostID = p.ID
	}
}

// authorIDs lists, once each, the users the posts and their comments name.
func authorIDs(posts []models.Post) []uint {
	seen := make(map[uint]bool)
	var ids []uint
	add := func(id uint) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range posts {
		add(posts[i].UserID)
		for _, c := range posts[i].Comments {
			add(c.UserID)
		}
	}
	return ids
}

func applyAuthors(posts []models.Post, byID map[uint]*models.User) {
	for i := range posts {
		p := &posts[i]
		p.User = byID[p.UserID]
		for j := range p.Comments {
			p.Comments[j].User = byID[p.Comments[j].UserID]
		}
	}
}

// attachAuthors fills in post and comment authors with a single users query.
func (s *PostStore) attachAuthors(ctx context.Context, posts []models.Post) error {
	ids := authorIDs(posts)
	if len(ids) == 0 {
		return nil
	}
	cur, err := s.store.db.Collection(usersCollection).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"password": 0}))
	if err != nil {
		return models.NewInternalError(err)
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return models.NewInternalError(err)
	}
	byID := make(map[uint]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	applyAuthors(posts, byID)
	return nil
}

func (s *PostStore) one(ctx context.Context, p *models.Post) (*models.Post, error) {
	hydrate(p)
	posts := []models.Post{*p}
	if err := s.attachAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (s *PostStore) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, end := startSpan(ctx, "Create", postsCollection)
	defer end(&err)

	id, err := s.store.nextID(ctx, postsCollection)
	if err != nil {
		return models.NewInternalError(err)
	}
	now := time.Now().UTC()
	post.ID = id
	post.CreatedAt = now
	post.UpdatedAt = now
	post.RefreshStatus(now)
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}

	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		post.ID = 0
		return models.NewInternalError(err)
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, id uint) (post *models.Post, err error) {
	ctx, end := startSpan(ctx, "GetByID", postsCollection)
	defer end(&err)

	var p models.Post
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return s.one(ctx, &p)
}

func (s *PostStore) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.Post, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range posts {
		hydrate(&posts[i])
	}
	if err := s.attachAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostStore) ListLiveByTopic(ctx context.Context, topic string, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ListLiveByTopic", postsCollection)
	defer end(&err)
	return s.find(ctx, liveFilter(topic, now), bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
}

func (s *PostStore) MostActiveByTopic(ctx context.Context, topic string, now time.Time) (post *models.Post, err error) {
	ctx, end := startSpan(ctx, "MostActiveByTopic", postsCollection)
	defer end(&err)

	var p models.Post
	err = s.coll.FindOne(ctx, liveFilter(topic, now), options.FindOne().SetSort(mostActiveSort())).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("Post", topic)
		}
		return nil, models.NewInternalError(err)
	}
	return s.one(ctx, &p)
}

func (s *PostStore) ListExpiredByTopic(ctx context.Context, topic string, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ListExpiredByTopic", postsCollection)
	defer end(&err)
	return s.find(ctx, expiredFilter(topic, now), bson.D{{Key: "expiresAt", Value: -1}, {Key: "_id", Value: -1}})
}

func (s *PostStore) UpdateStatus(ctx context.Context, id uint, status models.PostStatus) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (s *PostStore) increment(ctx context.Context, id uint, field string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: 1}})
	if err != nil {
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (s *PostStore) IncrementLikes(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "IncrementLikes", postsCollection)
	defer end(&err)
	return s.increment(ctx, id, "likes")
}

func (s *PostStore) IncrementDislikes(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "IncrementDislikes", postsCollection)
	defer end(&err)
	return s.increment(ctx, id, "dislikes")
}

func (s *PostStore) AddComment(ctx context.Context, comment *models.Comment) (err error) {
	ctx, end := startSpan(ctx, "AddComment", postsCollection)
	defer end(&err)

	id, err := s.store.nextID(ctx, "comments")
	if err != nil {
		return models.NewInternalError(err)
	}
	comment.ID = id
	comment.CreatedAt = time.Now().UTC()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": comment.PostID},
		bson.M{"$push": bson.M{"comments": comment}},
	)
	if err != nil {
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Post", comment.PostID)
	}
	return nil
}

func (s *PostStore) DeleteComment(ctx context.Context, postID, commentID uint) (deleted bool, err error) {
	ctx, end := startSpan(ctx, "DeleteComment", postsCollection)
	defer end(&err)

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$pull": bson.M{"comments": bson.M{"id": commentID}}},
	)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return res.ModifiedCount > 0, nil
}

// ExpireDue flips every live post whose expiry has passed and returns them
// in their Expired state. Authors are not attached.
func (s *PostStore) ExpireDue(ctx context.Context, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ExpireDue", postsCollection)
	defer end(&err)

	cur, err := s.coll.Find(ctx, dueFilter(now), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(posts) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(posts))
	for i := range posts {
		hydrate(&posts[i])
		ids[i] = posts[i].ID
		posts[i].Status = models.PostStatusExpired
	}
	_, err = s.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": models.PostStatusLive},
		bson.M{"$set": bson.M{"status": models.PostStatusExpired}},
	)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}
