package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"piazza/internal/config"
	"piazza/internal/models"
	"piazza/internal/repository"
	"piazza/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProfile is the subset of Google's userinfo response that we use.
type GoogleProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleOAuth runs the Google sign-in flow and maps profiles to users.
type GoogleOAuth struct {
	oauth    *oauth2.Config
	userRepo repository.UserRepository

	// fetchProfile loads the signed-in profile; replaced in tests.
	fetchProfile func(ctx context.Context, tok *oauth2.Token) (*GoogleProfile, error)
}

func NewGoogleOAuth(cfg *config.Config, userRepo repository.UserRepository) *GoogleOAuth {
	g := &GoogleOAuth{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userRepo: userRepo,
	}
	g.fetchProfile = g.fetchUserInfo
	return g
}

// Configured reports whether client credentials are present.
func (g *GoogleOAuth) Configured() bool {
	return g != nil && g.oauth.ClientID != ""
}

// NewState returns a random value to bind the callback to this browser session.
func NewState() string {
	return uuid.New().String()
}

// AuthURL is Google's consent page for state.
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for a token and resolves the user.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, models.NewValidationError("missing authorization code")
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, models.NewUnauthorizedError("Google sign-in failed")
	}
	profile, err := g.fetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}
	return g.FindOrCreate(ctx, profile)
}

func (g *GoogleOAuth) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("fetch google profile: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewUnauthorizedError(fmt.Sprintf("google userinfo returned %d", resp.StatusCode))
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, models.NewInternalError(fmt.Errorf("decode google profile: %w", err))
	}
	return &profile, nil
}

// FindOrCreate returns the user linked to profile. An existing account with
// the same email is linked to the Google ID; otherwise a new account without
// a password is created.
func (g *GoogleOAuth) FindOrCreate(ctx context.Context, profile *GoogleProfile) (*models.User, error) {
	if profile == nil || profile.ID == "" {
		return nil, models.NewValidationError("Google profile has no ID")
	}

	user, err := g.userRepo.GetByGoogleID(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	email := validation.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, models.NewValidationError("Google profile has no email")
	}
	googleID := profile.ID

	user, err = g.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := g.userRepo.Update(ctx, &models.User{ID: user.ID, GoogleID: &googleID}); err != nil {
			return nil, err
		}
		user.GoogleID = &googleID
		return user, nil
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	user = &models.User{Name: name, Email: email, GoogleID: &googleID}
	if err := g.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
