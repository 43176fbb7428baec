//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/kcadmin/keycloak"
	"github.com/lllypuk/kcadmin/tests/testutil"
)

const integrationTestTimeout = 30 * time.Second

// newAdminClient builds a client authenticated against the container's
// bootstrap admin.
func newAdminClient(t *testing.T, kc *testutil.SharedKeycloakContainer) *keycloak.Client {
	t.Helper()

	tokens := keycloak.NewAdminTokenManager(keycloak.AdminTokenConfig{
		BaseURL:  kc.URL,
		Realm:    "master",
		ClientID: "admin-cli",
		Username: kc.AdminUser,
		Password: kc.AdminPass,
	})

	client, err := keycloak.NewClient(keycloak.ClientConfig{
		BaseURL: kc.URL,
		Tokens:  tokens,
	})
	require.NoError(t, err)
	return client
}

func TestGroupsLifecycle(t *testing.T) {
	kc := testutil.SetupTestKeycloak(t)
	client := newAdminClient(t, kc)

	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()

	groupName := "it-group-" + uuid.NewString()

	created, err := client.Groups.Create(ctx, kc.Realm, keycloak.Group{Name: groupName})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, groupName, created.Name)
	assert.Equal(t, "/"+groupName, created.Path)

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), integrationTestTimeout)
		defer cleanupCancel()
		_ = client.Groups.Delete(cleanupCtx, kc.Realm, created.ID)
	})

	t.Run("get returns the created group", func(t *testing.T) {
		got, getErr := client.Groups.Get(ctx, kc.Realm, created.ID)
		require.NoError(t, getErr)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, groupName, got.Name)
	})

	t.Run("list finds the group by search", func(t *testing.T) {
		groups, listErr := client.Groups.List(ctx, kc.Realm, &keycloak.ListGroupsOptions{
			Search: groupName,
		})
		require.NoError(t, listErr)
		require.Len(t, groups, 1)
		assert.Equal(t, created.ID, groups[0].ID)
	})

	t.Run("update renames the group", func(t *testing.T) {
		renamed := *created
		renamed.Name = groupName + "-renamed"

		require.NoError(t, client.Groups.Update(ctx, kc.Realm, renamed))

		got, getErr := client.Groups.Get(ctx, kc.Realm, created.ID)
		require.NoError(t, getErr)
		assert.Equal(t, renamed.Name, got.Name)
	})

	t.Run("get after delete fails with 404", func(t *testing.T) {
		doomed, createErr := client.Groups.Create(ctx, kc.Realm, keycloak.Group{
			Name: "it-doomed-" + uuid.NewString(),
		})
		require.NoError(t, createErr)

		require.NoError(t, client.Groups.Delete(ctx, kc.Realm, doomed.ID))

		_, getErr := client.Groups.Get(ctx, kc.Realm, doomed.ID)
		apiErr, ok := keycloak.AsAPIError(getErr)
		require.True(t, ok)
		assert.Equal(t, 404, apiErr.StatusCode)
	})

	t.Run("duplicate create fails with conflict", func(t *testing.T) {
		_, createErr := client.Groups.Create(ctx, kc.Realm, keycloak.Group{Name: created.Name})
		apiErr, ok := keycloak.AsAPIError(createErr)
		require.True(t, ok)
		assert.Equal(t, 409, apiErr.StatusCode)
	})
}

func TestGroupMembership(t *testing.T) {
	kc := testutil.SetupTestKeycloak(t)
	client := newAdminClient(t, kc)

	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()

	group, err := client.Groups.Create(ctx, kc.Realm, keycloak.Group{
		Name: "it-members-" + uuid.NewString(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), integrationTestTimeout)
		defer cleanupCancel()
		_ = client.Groups.Delete(cleanupCtx, kc.Realm, group.ID)
	})

	// The bootstrap admin is the only user guaranteed to exist.
	users, err := client.Users.List(ctx, kc.Realm, 0, 50)
	require.NoError(t, err)
	require.NotEmpty(t, users)

	var admin *keycloak.User
	for i := range users {
		if users[i].Username == kc.AdminUser {
			admin = &users[i]
			break
		}
	}
	require.NotNil(t, admin, "bootstrap admin user not found")

	t.Run("new group has no members", func(t *testing.T) {
		members, listErr := client.Members.List(ctx, kc.Realm, group.ID, nil)
		require.NoError(t, listErr)
		assert.Empty(t, members)
	})

	t.Run("add then list then remove", func(t *testing.T) {
		require.NoError(t, client.Members.Add(ctx, kc.Realm, admin.ID, group.ID))

		members, listErr := client.Members.List(ctx, kc.Realm, group.ID, nil)
		require.NoError(t, listErr)
		require.Len(t, members, 1)
		assert.Equal(t, admin.ID, members[0].ID)

		require.NoError(t, client.Members.Remove(ctx, kc.Realm, admin.ID, group.ID))

		members, listErr = client.Members.List(ctx, kc.Realm, group.ID, nil)
		require.NoError(t, listErr)
		assert.Empty(t, members)
	})

	t.Run("adding an unknown user fails", func(t *testing.T) {
		err := client.Members.Add(ctx, kc.Realm, uuid.NewString(), group.ID)
		apiErr, ok := keycloak.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 404, apiErr.StatusCode)
	})
}

func TestUsersCount(t *testing.T) {
	kc := testutil.SetupTestKeycloak(t)
	client := newAdminClient(t, kc)

	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()

	count, err := client.Users.Count(ctx, kc.Realm)
	require.NoError(t, err)
	assert.Positive(t, count)
}
