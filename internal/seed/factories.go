// Package seed provides helpers to create demo data for development and
// testing. Nothing here runs in the API process.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"piazza/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password every seeded account logs in with.
const DefaultPassword = "password123"

// Topics are the boards demo posts are spread across.
var Topics = []string{"politics", "health", "sport", "tech"}

// Factory builds domain entities with realistic fake content. It never
// touches a store; Seeder persists what it builds.
type Factory struct {
	opts  Options
	faker *gofakeit.Faker
	rng   *rand.Rand
	seq   int
	now   func() time.Time
	hash  string
}

// NewFactory creates a Factory. A zero RandSeed picks a time-based seed.
func NewFactory(opts Options) *Factory {
	opts = opts.withDefaults()
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// #nosec G404: acceptable for seeding
	return &Factory{
		opts:  opts,
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (f *Factory) password() string {
	if f.opts.SkipBcrypt {
		return DefaultPassword
	}
	if f.hash == "" {
		hashed, _ := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		f.hash = string(hashed)
	}
	return f.hash
}

// BuildUser returns an unsaved user with a unique email address.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	f.seq++
	first, last := f.faker.FirstName(), f.faker.LastName()
	user := &models.User{
		Name:     first + " " + last,
		Email:    strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, f.seq)),
		Password: f.password(),
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// BuildPost returns an unsaved post by author on topic. Roughly
// ExpiredRatio of built posts are already past their expiry.
func (f *Factory) BuildPost(author *models.User, topic string, overrides ...func(*models.Post)) *models.Post {
	now := f.now()
	post := &models.Post{
		Title:   strings.TrimSuffix(f.faker.Sentence(f.rng.Intn(4)+3), "."),
		Content: f.faker.Paragraph(1, f.rng.Intn(3)+1, 12, "\n"),
		UserID:  author.ID,
		Topic:   models.NormalizeTopic(topic),
	}

	window := time.Duration(f.opts.MaxDays) * 24 * time.Hour
	offset := time.Hour + time.Duration(f.rng.Int63n(int64(window)))
	if f.rng.Float64() < f.opts.ExpiredRatio {
		post.ExpiresAt = now.Add(-offset)
		post.CreatedAt = post.ExpiresAt.Add(-time.Duration(f.rng.Intn(72)+1) * time.Hour)
	} else {
		post.ExpiresAt = now.Add(offset)
		post.CreatedAt = now.Add(-time.Duration(f.rng.Intn(72)) * time.Hour)
	}

	for _, override := range overrides {
		override(post)
	}
	post.RefreshStatus(now)
	return post
}

// BuildComment returns an unsaved comment by author on post.
func (f *Factory) BuildComment(author *models.User, post *models.Post) *models.Comment {
	return &models.Comment{
		PostID:  post.ID,
		UserID:  author.ID,
		Message: f.faker.Sentence(f.rng.Intn(10) + 4),
	}
}

// PickTopic returns one of Topics.
func (f *Factory) PickTopic() string {
	return Topics[f.rng.Intn(len(Topics))]
}

// PickUser returns one of users.
func (f *Factory) PickUser(users []*models.User) *models.User {
	return users[f.rng.Intn(len(users))]
}

// Intn exposes the factory's random source so seeding stays reproducible
// for a fixed RandSeed.
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.rng.Intn(n)
}
