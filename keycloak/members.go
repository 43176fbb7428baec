package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MembersService manages group membership.
type MembersService struct {
	client *Client
}

// ListMembersOptions are the query parameters for MembersService.List.
type ListMembersOptions struct {
	// First and Max page through the member list; forwarded only when
	// positive.
	First int
	Max   int

	// FullRepresentation requests complete user objects.
	FullRepresentation bool
}

func (o *ListMembersOptions) values() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	if o.First > 0 {
		q.Set("first", strconv.Itoa(o.First))
	}
	if o.Max > 0 {
		q.Set("max", strconv.Itoa(o.Max))
	}
	if o.FullRepresentation {
		q.Set("briefRepresentation", "false")
	}
	return q
}

// List returns the users belonging to a group.
func (s *MembersService) List(ctx context.Context, realm, groupID string, opts *ListMembersOptions) ([]User, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}
	if groupID == "" {
		return nil, ErrGroupIDRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups/%s/members", s.client.baseURL, realm, groupID)
	if enc := opts.values().Encode(); enc != "" {
		reqURL += "?" + enc
	}

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list members request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var members []User
	if decodeErr := json.NewDecoder(resp.Body).Decode(&members); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode members response: %w", decodeErr)
	}
	return members, nil
}

// Add puts a user into a group. Adding an existing member is a no-op
// on the server side.
func (s *MembersService) Add(ctx context.Context, realm, userID, groupID string) error {
	return s.modify(ctx, realm, userID, groupID, http.MethodPut, "add member")
}

// Remove takes a user out of a group.
func (s *MembersService) Remove(ctx context.Context, realm, userID, groupID string) error {
	return s.modify(ctx, realm, userID, groupID, http.MethodDelete, "remove member")
}

// modify handles both membership mutations; they share a URL and differ
// only in method.
func (s *MembersService) modify(ctx context.Context, realm, userID, groupID, method, operation string) error {
	if realm == "" {
		return ErrRealmRequired
	}
	if userID == "" {
		return ErrUserIDRequired
	}
	if groupID == "" {
		return ErrGroupIDRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/users/%s/groups/%s",
		s.client.baseURL, realm, userID, groupID)

	resp, err := s.client.do(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}
