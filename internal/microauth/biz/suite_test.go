package biz_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/internal/model"
)

var testSessionSecret = []byte("test-session-secret")

func newTestFactory(t *testing.T) store.Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory := store.NewFactoryWithDB(db)
	require.NoError(t, factory.AutoMigrate())
	return factory
}

func seedUser(t *testing.T, factory store.Factory, username, password string) *model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{Username: username, Password: string(hashed)}
	require.NoError(t, factory.Users().Create(context.Background(), user))
	return user
}

func seedAccessKey(t *testing.T, factory store.Factory, user *model.User, keyID, secret string) *model.AccessKey {
	t.Helper()
	key := &model.AccessKey{AccessKeyID: keyID, Secret: secret, UserID: user.ID}
	require.NoError(t, factory.AccessKeys().Create(context.Background(), key))
	return key
}

func seedUserPolicy(t *testing.T, factory store.Factory, user *model.User, name, document string) *model.Policy {
	t.Helper()
	p := &model.Policy{Name: name, UserID: &user.ID, Document: document}
	require.NoError(t, factory.Policies().Create(context.Background(), p))
	return p
}

func seedGroup(t *testing.T, factory store.Factory, name string, members ...*model.User) *model.Group {
	t.Helper()
	group := &model.Group{Name: name}
	require.NoError(t, factory.Groups().Create(context.Background(), group))
	for _, m := range members {
		require.NoError(t, factory.Groups().AddUser(context.Background(), group.ID, m.ID))
	}
	return group
}

func seedGroupPolicy(t *testing.T, factory store.Factory, group *model.Group, name, document string) *model.Policy {
	t.Helper()
	p := &model.Policy{Name: name, GroupID: &group.ID, Document: document}
	require.NoError(t, factory.Policies().Create(context.Background(), p))
	return p
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
