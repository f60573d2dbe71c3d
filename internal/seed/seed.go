package seed

import (
	"context"
	"errors"
	"fmt"
	"log"

	"piazza/internal/bootstrap"
	"piazza/internal/models"
	"piazza/internal/repository"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
	// SkipBcrypt stores DefaultPassword unhashed. Seeded accounts then
	// cannot log in; use it for fast test fixtures only.
	SkipBcrypt bool
	// ExpiredRatio is the share of posts created already expired. Zero
	// means the default; a negative ratio creates only live posts.
	ExpiredRatio float64
	// MaxDays bounds how far expiries are spread from now.
	MaxDays            int
	MaxCommentsPerPost int
	MaxReactions       int
	RandSeed           int64
}

func (o Options) withDefaults() Options {
	if o.ExpiredRatio == 0 {
		o.ExpiredRatio = 0.3
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 14
	}
	if o.MaxCommentsPerPost <= 0 {
		o.MaxCommentsPerPost = 4
	}
	if o.MaxReactions <= 0 {
		o.MaxReactions = 10
	}
	return o
}

// Result counts what a run created.
type Result struct {
	Users    int
	Posts    int
	Live     int
	Expired  int
	Comments int
	Likes    int
	Dislikes int
}

// Seeder writes factory output through the repositories, so it works
// against any configured store.
type Seeder struct {
	users   repository.UserRepository
	posts   repository.PostRepository
	wipe    func(context.Context) error
	factory *Factory
	opts    Options
}

// NewSeeder creates a seeder over the given repositories. wipe may be nil
// when the store cannot be wiped.
func NewSeeder(users repository.UserRepository, posts repository.PostRepository, wipe func(context.Context) error, opts Options) *Seeder {
	opts = opts.withDefaults()
	return &Seeder{users: users, posts: posts, wipe: wipe, factory: NewFactory(opts), opts: opts}
}

// ForRuntime picks the repositories and the wipe strategy of rt's store.
func ForRuntime(rt *bootstrap.Runtime, opts Options) *Seeder {
	var wipe func(context.Context) error
	switch {
	case rt.Docs != nil:
		wipe = rt.Docs.Drop
	case rt.DB != nil:
		wipe = ClearSQL(rt.DB)
	}
	return NewSeeder(rt.Users, rt.Posts, wipe, opts)
}

// ClearSQL deletes every comment, post and user, children first.
func ClearSQL(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		tx := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []interface{}{&models.Comment{}, &models.Post{}, &models.User{}} {
			if err := tx.Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	}
}

// Run seeds users, then posts across Topics with reactions and comments on
// the live ones. Expired posts are left untouched, as the API would.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	log.Printf("🌱 Seeding %d users and %d posts...", s.opts.NumUsers, s.opts.NumPosts)

	if s.opts.ShouldClean {
		if s.wipe == nil {
			return nil, errors.New("seed: store does not support cleaning")
		}
		if err := s.wipe(ctx); err != nil {
			return nil, fmt.Errorf("clean: %w", err)
		}
		log.Println("✓ existing data cleared")
	}

	res := &Result{}
	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}
	res.Users = len(users)
	log.Printf("✓ %d users created", res.Users)

	if len(users) == 0 || s.opts.NumPosts <= 0 {
		return res, nil
	}

	for i := 0; i < s.opts.NumPosts; i++ {
		post := s.factory.BuildPost(s.factory.PickUser(users), s.factory.PickTopic())
		if err := s.posts.Create(ctx, post); err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}
		res.Posts++
		if !post.IsLive() {
			res.Expired++
			continue
		}
		res.Live++

		if err := s.engage(ctx, post, users, res); err != nil {
			return nil, err
		}
	}
	log.Printf("✓ %d posts (%d live, %d expired), %d comments, %d likes, %d dislikes",
		res.Posts, res.Live, res.Expired, res.Comments, res.Likes, res.Dislikes)

	return res, nil
}

// SeedUsers creates n users.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		user := s.factory.BuildUser()
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) engage(ctx context.Context, post *models.Post, users []*models.User, res *Result) error {
	likes := s.factory.Intn(s.opts.MaxReactions + 1)
	for i := 0; i < likes; i++ {
		if err := s.posts.IncrementLikes(ctx, post.ID); err != nil {
			return fmt.Errorf("failed to like post %d: %w", post.ID, err)
		}
	}
	res.Likes += likes

	dislikes := s.factory.Intn(s.opts.MaxReactions/2 + 1)
	for i := 0; i < dislikes; i++ {
		if err := s.posts.IncrementDislikes(ctx, post.ID); err != nil {
			return fmt.Errorf("failed to dislike post %d: %w", post.ID, err)
		}
	}
	res.Dislikes += dislikes

	comments := s.factory.Intn(s.opts.MaxCommentsPerPost + 1)
	for i := 0; i < comments; i++ {
		if err := s.posts.AddComment(ctx, s.factory.BuildComment(s.factory.PickUser(users), post)); err != nil {
			return fmt.Errorf("failed to comment on post %d: %w", post.ID, err)
		}
	}
	res.Comments += comments
	return nil
}
