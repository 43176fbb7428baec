package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GroupsService manages realm groups.
type GroupsService struct {
	client *Client
}

// Group is the Admin API group representation. The schema is owned by
// the server; fields the server adds beyond these are not round-tripped.
type Group struct {
	ID            string              `json:"id,omitempty"`
	Name          string              `json:"name,omitempty"`
	Path          string              `json:"path,omitempty"`
	SubGroups     []Group             `json:"subGroups,omitempty"`
	SubGroupCount int64               `json:"subGroupCount,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// ListGroupsOptions are the query parameters for GroupsService.List.
// The zero value lists every top-level group.
type ListGroupsOptions struct {
	// Search matches group names (substring by default).
	Search string

	// Q filters on attributes, in Keycloak's "key:value" syntax.
	Q string

	// Exact makes Search match whole names only.
	Exact bool

	// First and Max page through the collection; both are forwarded
	// only when positive, otherwise the server defaults apply.
	First int
	Max   int

	// FullRepresentation requests complete group objects instead of the
	// brief default.
	FullRepresentation bool

	// Extra is forwarded to the server verbatim. An "id" key here is an
	// ordinary query parameter, never a path substitution; use Get to
	// target a single group.
	Extra url.Values
}

// values serializes the options into a query string.
func (o *ListGroupsOptions) values() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	for key, vals := range o.Extra {
		q[key] = vals
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Q != "" {
		q.Set("q", o.Q)
	}
	if o.Exact {
		q.Set("exact", "true")
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

// List returns the realm's groups matching opts. The options are sent
// as query parameters on the collection URL; pagination and filtering
// happen entirely server-side.
func (s *GroupsService) List(ctx context.Context, realm string, opts *ListGroupsOptions) ([]Group, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups", s.client.baseURL, realm)
	if enc := opts.values().Encode(); enc != "" {
		reqURL += "?" + enc
	}

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list groups request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var groups []Group
	if decodeErr := json.NewDecoder(resp.Body).Decode(&groups); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode groups response: %w", decodeErr)
	}
	return groups, nil
}

// Get returns a single group by ID. No query string is sent.
func (s *GroupsService) Get(ctx context.Context, realm, groupID string) (*Group, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}
	if groupID == "" {
		return nil, ErrGroupIDRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups/%s", s.client.baseURL, realm, groupID)

	resp, err := s.client.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get group request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var group Group
	if decodeErr := json.NewDecoder(resp.Body).Decode(&group); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode group response: %w", decodeErr)
	}
	return &group, nil
}

// Create creates a top-level group and returns the canonical object the
// server persisted. The creation endpoint answers 201 with an empty body
// and a Location header; the new ID is the trailing path segment of that
// header, and a second round trip fetches the stored representation
// (including server-assigned defaults).
func (s *GroupsService) Create(ctx context.Context, realm string, group Group) (*Group, error) {
	if realm == "" {
		return nil, ErrRealmRequired
	}
	if group.Name == "" {
		return nil, ErrGroupNameRequired
	}

	jsonBody, err := json.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal group: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups", s.client.baseURL, realm)

	resp, err := s.client.do(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create group request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, newAPIError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, ErrMissingLocation
	}
	groupID := location[strings.LastIndex(location, "/")+1:]
	if groupID == "" {
		return nil, fmt.Errorf("invalid Location header: %s", location)
	}

	return s.Get(ctx, realm, groupID)
}

// Update replaces a group's representation. The group's ID selects the
// target resource.
func (s *GroupsService) Update(ctx context.Context, realm string, group Group) error {
	if realm == "" {
		return ErrRealmRequired
	}
	if group.ID == "" {
		return ErrGroupIDRequired
	}

	jsonBody, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups/%s", s.client.baseURL, realm, group.ID)

	resp, err := s.client.do(ctx, http.MethodPut, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("update group request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}

// Delete removes a group and all its sub-groups.
func (s *GroupsService) Delete(ctx context.Context, realm, groupID string) error {
	if realm == "" {
		return ErrRealmRequired
	}
	if groupID == "" {
		return ErrGroupIDRequired
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s/groups/%s", s.client.baseURL, realm, groupID)

	resp, err := s.client.do(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("delete group request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}
