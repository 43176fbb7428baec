package keycloak_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/kcadmin/keycloak"
)

// newTestClient creates a Client backed by a pre-supplied token, the
// way an embedding application would hand one in.
func newTestClient(t *testing.T, serverURL string) *keycloak.Client {
	t.Helper()

	client, err := keycloak.NewClient(keycloak.ClientConfig{
		BaseURL: serverURL,
		Tokens:  keycloak.StaticTokenSource("test-admin-token"),
	})
	require.NoError(t, err)
	return client
}

func TestGroupsService_List(t *testing.T) {
	t.Run("sends options as query parameters on the collection URL", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/realms/master/groups", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "Bearer test-admin-token", r.Header.Get("Authorization"))

			q := r.URL.Query()
			assert.Equal(t, "team", q.Get("search"))
			assert.Equal(t, "true", q.Get("exact"))
			assert.Equal(t, "10", q.Get("first"))
			assert.Equal(t, "5", q.Get("max"))
			assert.Equal(t, "false", q.Get("briefRepresentation"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode([]keycloak.Group{
				{ID: "group-1", Name: "team-a", Path: "/team-a"},
				{ID: "group-2", Name: "team-b", Path: "/team-b"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		groups, err := client.Groups.List(context.Background(), "master", &keycloak.ListGroupsOptions{
			Search:             "team",
			Exact:              true,
			First:              10,
			Max:                5,
			FullRepresentation: true,
		})

		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "team-a", groups[0].Name)
		assert.Equal(t, "/team-b", groups[1].Path)
	})

	t.Run("nil options send no query string", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.RawQuery)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		groups, err := client.Groups.List(context.Background(), "master", nil)

		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("extra values are forwarded verbatim as query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// An "id" key stays a plain query parameter; the request
			// still targets the collection URL.
			assert.Equal(t, "/admin/realms/master/groups", r.URL.Path)
			assert.Equal(t, "abc-123", r.URL.Query().Get("id"))
			assert.Equal(t, "bar", r.URL.Query().Get("foo"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.List(context.Background(), "master", &keycloak.ListGroupsOptions{
			Extra: url.Values{"id": {"abc-123"}, "foo": {"bar"}},
		})

		require.NoError(t, err)
	})

	t.Run("non-200 rejects with the response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.List(context.Background(), "master", nil)

		require.Error(t, err)
		apiErr, ok := keycloak.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.JSONEq(t, `{"error":"not_found"}`, string(apiErr.Body))
		assert.Equal(t, "not_found", apiErr.Message())
	})

	t.Run("returns error for empty realm", func(t *testing.T) {
		client := newTestClient(t, "http://localhost:1")

		_, err := client.Groups.List(context.Background(), "", nil)

		require.ErrorIs(t, err, keycloak.ErrRealmRequired)
	})

	t.Run("transport error is passed through without an APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.List(context.Background(), "master", nil)

		require.Error(t, err)
		_, ok := keycloak.AsAPIError(err)
		assert.False(t, ok)
	})
}

func TestGroupsService_Get(t *testing.T) {
	t.Run("targets the single-resource URL with no query string", func(t *testing.T) {
		groupID := "abc-123-def-456"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/realms/master/groups/"+groupID, r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Empty(t, r.URL.RawQuery)
			assert.Equal(t, "Bearer test-admin-token", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(keycloak.Group{
				ID:   groupID,
				Name: "team-a",
				Path: "/team-a",
				Attributes: map[string][]string{
					"tier": {"gold"},
				},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		group, err := client.Groups.Get(context.Background(), "master", groupID)

		require.NoError(t, err)
		assert.Equal(t, groupID, group.ID)
		assert.Equal(t, "team-a", group.Name)
		assert.Equal(t, []string{"gold"}, group.Attributes["tier"])
	})

	t.Run("non-200 rejects with the response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"unknown_error"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.Get(context.Background(), "master", "some-id")

		apiErr, ok := keycloak.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.JSONEq(t, `{"error":"unknown_error"}`, string(apiErr.Body))
	})

	t.Run("returns error for empty group id", func(t *testing.T) {
		client := newTestClient(t, "http://localhost:1")

		_, err := client.Groups.Get(context.Background(), "master", "")

		require.ErrorIs(t, err, keycloak.ErrGroupIDRequired)
	})

	t.Run("returns error on invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`not valid json`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.Get(context.Background(), "master", "some-id")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode")
	})
}

func TestGroupsService_Create(t *testing.T) {
	t.Run("extracts the id from Location and returns the stored object", func(t *testing.T) {
		groupID := "abc-123"
		var posts, gets int

		mux := http.NewServeMux()
		mux.HandleFunc("POST /admin/realms/master/groups", func(w http.ResponseWriter, r *http.Request) {
			posts++
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body keycloak.Group
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "test", body.Name)

			w.Header().Set("Location", "https://host/auth/admin/realms/master/groups/"+groupID)
			w.WriteHeader(http.StatusCreated)
		})
		mux.HandleFunc("GET /admin/realms/master/groups/"+groupID, func(w http.ResponseWriter, _ *http.Request) {
			gets++
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(keycloak.Group{
				ID:   groupID,
				Name: "test",
				Path: "/test",
			})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client := newTestClient(t, server.URL)

		group, err := client.Groups.Create(context.Background(), "master", keycloak.Group{Name: "test"})

		require.NoError(t, err)
		assert.Equal(t, groupID, group.ID)
		assert.Equal(t, "/test", group.Path)
		assert.Equal(t, 1, posts)
		assert.Equal(t, 1, gets)
	})

	t.Run("non-201 rejects with the body and performs no secondary request", func(t *testing.T) {
		var requests int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests++
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"errorMessage":"Top level group named 'test' already exists."}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.Create(context.Background(), "master", keycloak.Group{Name: "test"})

		apiErr, ok := keycloak.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message(), "already exists")
		assert.Equal(t, 1, requests)
	})

	t.Run("returns error on missing Location header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.Create(context.Background(), "master", keycloak.Group{Name: "test"})

		require.ErrorIs(t, err, keycloak.ErrMissingLocation)
	})

	t.Run("returns error for empty name", func(t *testing.T) {
		client := newTestClient(t, "http://localhost:1")

		_, err := client.Groups.Create(context.Background(), "master", keycloak.Group{})

		require.ErrorIs(t, err, keycloak.ErrGroupNameRequired)
	})

	t.Run("transport error performs no further requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Groups.Create(context.Background(), "master", keycloak.Group{Name: "test"})

		require.Error(t, err)
		_, ok := keycloak.AsAPIError(err)
		assert.False(t, ok)
	})
}

func TestGroupsService_Update(t *testing.T) {
	t.Run("puts the representation to the group URL", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/realms/master/groups/abc-123", r.URL.Path)
			assert.Equal(t, http.MethodPut, r.Method)

			var body keycloak.Group
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "renamed", body.Name)

			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		err := client.Groups.Update(context.Background(), "master", keycloak.Group{ID: "abc-123", Name: "renamed"})

		require.NoError(t, err)
	})

	t.Run("returns error for missing id", func(t *testing.T) {
		client := newTestClient(t, "http://localhost:1")

		err := client.Groups.Update(context.Background(), "master", keycloak.Group{Name: "renamed"})

		require.ErrorIs(t, err, keycloak.ErrGroupIDRequired)
	})
}

func TestGroupsService_Delete(t *testing.T) {
	t.Run("deletes the group", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/realms/master/groups/abc-123", r.URL.Path)
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		err := client.Groups.Delete(context.Background(), "master", "abc-123")

		require.NoError(t, err)
	})

	t.Run("non-success rejects with the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Could not find group by id"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		err := client.Groups.Delete(context.Background(), "master", "nope")

		apiErr, ok := keycloak.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}

func TestGroupsService_ContextCancellation(t *testing.T) {
	t.Run("respects context deadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := client.Groups.List(ctx, "master", nil)

		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "context") || strings.Contains(err.Error(), "deadline"))
	})
}
