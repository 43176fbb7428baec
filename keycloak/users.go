package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// UsersService provides read access to realm users. Write operations on
// users are out of scope for this client.
type UsersService struct {
	client *Client
}

// User is the Admin API user representation.
type User struct {
	ID               string              `json:"id"`
	Username         string              `json:"username"`
	Email            string              `json:"email"`
	EmailVerified    bool                `json:"emailVerified"`
	FirstName        string              `json:"firstName"`
	LastName         string              `json:"lastName"`
	Enabled          bool                `json:"enabled"`
	CreatedTimestamp int64               `json:"createdTimestamp"`
	Attributes       map[string][]string `json:"attributes,omitempty"`
}

// DisplayName returns the user's full name, falling back to the
// username when no name is set.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// List returns realm users with pagination. first is the 0-based start
// index and max caps the page size.
func (s *UsersService) List(ctx context.Context, realm string, first, max int) ([]User, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/users?first=%d&max=%d",
		s.client.baseURL, realm, first, max)

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list users request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var users []User
	if decodeErr := json.NewDecoder(resp.Body).Decode(&users); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", decodeErr)
	}
	return users, nil
}

// Get returns a single user by ID.
func (s *UsersService) Get(ctx context.Context, realm, userID string) (*User, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/users/%s", s.client.baseURL, realm, userID)

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var user User
	if decodeErr := json.NewDecoder(resp.Body).Decode(&user); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", decodeErr)
	}
	return &user, nil
}

// Count returns the total number of users in the realm.
func (s *UsersService) Count(ctx context.Context, realm string) (int, error) {
	if realm == "" {
		return 0, ErrRealmRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/users/count", s.client.baseURL, realm)

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("count users request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, newAPIError(resp)
	}

	var count int
	if decodeErr := json.NewDecoder(resp.Body).Decode(&count); decodeErr != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", decodeErr)
	}
	return count, nil
}
