package store_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
)

func newFactory(t *testing.T) store.Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory := store.NewFactoryWithDB(db)
	require.NoError(t, factory.AutoMigrate())
	return factory
}

func createUser(t *testing.T, factory store.Factory, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Password: "hashed"}
	require.NoError(t, factory.Users().Create(context.Background(), user))
	return user
}

func TestUserStore(t *testing.T) {
	factory := newFactory(t)
	ctx := context.Background()

	alice := createUser(t, factory, "alice")
	require.NotZero(t, alice.ID)

	got, err := factory.Users().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	byID, err := factory.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = factory.Users().Get(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.Password = "rehashed"
	require.NoError(t, factory.Users().Update(ctx, got))
	got, err = factory.Users().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "rehashed", got.Password)

	// Duplicate usernames are rejected by the unique index.
	err = factory.Users().Create(ctx, &model.User{Username: "alice", Password: "x"})
	assert.Error(t, err)

	createUser(t, factory, "bob")
	total, items, err := factory.Users().List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	total, items, err = factory.Users().List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "bob", items[0].Username)

	require.NoError(t, factory.Users().Delete(ctx, "alice"))
	_, err = factory.Users().Get(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccessKeyStore(t *testing.T) {
	factory := newFactory(t)
	ctx := context.Background()
	alice := createUser(t, factory, "alice")

	key := &model.AccessKey{AccessKeyID: "AKALICE", Secret: "secret", UserID: alice.ID}
	require.NoError(t, factory.AccessKeys().Create(ctx, key))

	got, err := factory.AccessKeys().Get(ctx, "AKALICE")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.UserID)

	_, err = factory.AccessKeys().Get(ctx, "AKUNKNOWN")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, factory.AccessKeys().Create(ctx, &model.AccessKey{
		AccessKeyID: "AKALICE2", Secret: "secret2", UserID: alice.ID,
	}))
	keys, err := factory.AccessKeys().ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, factory.AccessKeys().Delete(ctx, "AKALICE"))
	_, err = factory.AccessKeys().Get(ctx, "AKALICE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGroupStoreMembership(t *testing.T) {
	factory := newFactory(t)
	ctx := context.Background()
	alice := createUser(t, factory, "alice")
	bob := createUser(t, factory, "bob")

	group := &model.Group{Name: "team"}
	require.NoError(t, factory.Groups().Create(ctx, group))

	require.NoError(t, factory.Groups().AddUser(ctx, group.ID, alice.ID))
	require.NoError(t, factory.Groups().AddUser(ctx, group.ID, bob.ID))
	// Adding an existing member is a no-op, not a duplicate.
	require.NoError(t, factory.Groups().AddUser(ctx, group.ID, alice.ID))

	got, err := factory.Groups().Get(ctx, "team")
	require.NoError(t, err)
	assert.Len(t, got.Users, 2)

	memberships, err := factory.Groups().ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, "team", memberships[0].Name)

	require.NoError(t, factory.Groups().RemoveUser(ctx, group.ID, alice.ID))
	// Removing a non-member is a no-op.
	require.NoError(t, factory.Groups().RemoveUser(ctx, group.ID, alice.ID))

	memberships, err = factory.Groups().ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	// Deleting the group detaches bob without deleting the user.
	require.NoError(t, factory.Groups().Delete(ctx, "team"))
	_, err = factory.Groups().Get(ctx, "team")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = factory.Users().Get(ctx, "bob")
	require.NoError(t, err)
}

func TestPolicyStore(t *testing.T) {
	factory := newFactory(t)
	ctx := context.Background()
	alice := createUser(t, factory, "alice")

	group := &model.Group{Name: "team"}
	require.NoError(t, factory.Groups().Create(ctx, group))

	doc := `{"Statement": [{"Action": "svc:Get", "Resource": "*", "Effect": "Allow"}]}`
	userPolicy := &model.Policy{Name: "read", UserID: &alice.ID, Document: doc}
	require.NoError(t, factory.Policies().Create(ctx, userPolicy))
	groupPolicy := &model.Policy{Name: "read", GroupID: &group.ID, Document: doc}
	require.NoError(t, factory.Policies().Create(ctx, groupPolicy))

	got, err := factory.Policies().GetForUser(ctx, alice.ID, "read")
	require.NoError(t, err)
	assert.Equal(t, userPolicy.ID, got.ID)

	parsed, err := got.Parse()
	require.NoError(t, err)
	require.Len(t, parsed.Statement, 1)

	got, err = factory.Policies().GetForGroup(ctx, group.ID, "read")
	require.NoError(t, err)
	assert.Equal(t, groupPolicy.ID, got.ID)

	_, err = factory.Policies().GetForUser(ctx, alice.ID, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	userList, err := factory.Policies().ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, userList, 1)
	groupList, err := factory.Policies().ListForGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, groupList, 1)

	got.Document = `{"Statement": [{"Action": "svc:List", "Resource": "*", "Effect": "Allow"}]}`
	require.NoError(t, factory.Policies().Update(ctx, got))
	updated, err := factory.Policies().GetForGroup(ctx, group.ID, "read")
	require.NoError(t, err)
	assert.Contains(t, updated.Document, "svc:List")

	require.NoError(t, factory.Policies().Delete(ctx, userPolicy.ID))
	_, err = factory.Policies().GetForUser(ctx, alice.ID, "read")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
