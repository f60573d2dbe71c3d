package seed

import (
	"testing"
	"time"

	"piazza/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUser_UniqueEmails(t *testing.T) {
	f := NewFactory(Options{SkipBcrypt: true, RandSeed: 7})

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		u := f.BuildUser()
		require.NotEmpty(t, u.Name)
		assert.False(t, seen[u.Email], "duplicate email %s", u.Email)
		seen[u.Email] = true
		assert.Equal(t, DefaultPassword, u.Password)
	}
}

func TestBuildUser_HashesPassword(t *testing.T) {
	f := NewFactory(Options{RandSeed: 7})

	a, b := f.BuildUser(), f.BuildUser()
	assert.NotEqual(t, DefaultPassword, a.Password)
	assert.Equal(t, a.Password, b.Password, "hash is computed once per factory")
}

func TestBuildPost_ExpiryMix(t *testing.T) {
	author := &models.User{ID: 3}

	t.Run("all expired", func(t *testing.T) {
		f := NewFactory(Options{ExpiredRatio: 1, MaxDays: 2, RandSeed: 1})
		for i := 0; i < 20; i++ {
			p := f.BuildPost(author, "Tech")
			assert.Equal(t, models.PostStatusExpired, p.Status)
			assert.True(t, p.ExpiresAt.Before(time.Now()))
			assert.True(t, p.CreatedAt.Before(p.ExpiresAt))
		}
	})

	t.Run("all live", func(t *testing.T) {
		f := NewFactory(Options{ExpiredRatio: -1, MaxDays: 2, RandSeed: 1})
		for i := 0; i < 20; i++ {
			p := f.BuildPost(author, "Tech")
			assert.Equal(t, models.PostStatusLive, p.Status)
			assert.True(t, p.ExpiresAt.After(time.Now()))
			assert.True(t, p.ExpiresAt.Before(time.Now().Add(2*24*time.Hour+2*time.Hour)))
		}
	})
}

func TestBuildPost_Fields(t *testing.T) {
	f := NewFactory(Options{RandSeed: 11})
	p := f.BuildPost(&models.User{ID: 9}, "  Sport ", func(p *models.Post) {
		p.ExpiresAt = time.Now().Add(-time.Minute)
	})

	assert.Equal(t, "sport", p.Topic)
	assert.Equal(t, uint(9), p.UserID)
	assert.NotEmpty(t, p.Title)
	assert.NotEmpty(t, p.Content)
	assert.Equal(t, models.PostStatusExpired, p.Status, "status follows overridden expiry")
}

func TestFactory_Reproducible(t *testing.T) {
	a := NewFactory(Options{SkipBcrypt: true, RandSeed: 99})
	b := NewFactory(Options{SkipBcrypt: true, RandSeed: 99})

	assert.Equal(t, a.BuildUser().Email, b.BuildUser().Email)
	assert.Equal(t, a.PickTopic(), b.PickTopic())
	assert.Contains(t, Topics, a.PickTopic())
}
