package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/flexwatch/internal/clock"
	"github.com/smallbiznis/flexwatch/internal/policy/domain"
	"github.com/smallbiznis/flexwatch/internal/policy/repository"
)

func setup(t *testing.T, options string) (*Service, domain.Repository) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.Rule{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	path := ""
	if options != "" {
		path = filepath.Join(t.TempDir(), "vendor.opt")
		require.NoError(t, os.WriteFile(path, []byte(options), 0o644))
	}

	repo := repository.New(gdb, zap.NewNop())
	svc := New(Params{
		Log:   zap.NewNop(),
		Clock: clock.NewSystem(),
		Node:  node,
		Repo:  repo,
	}, path)
	return svc, repo
}

func TestReloadExpandsGroupsToRules(t *testing.T) {
	svc, repo := setup(t, `
GROUP acme_eda acme-abcd acme-efgh
MAX 10 simulator GROUP acme_eda
MAX 2 viewer USER globex-wxyz
`)

	result, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Rules)
	assert.Equal(t, int64(1), result.PolicyVersion)

	rules, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 3)

	byUser := make(map[string]domain.Rule)
	for _, r := range rules {
		byUser[r.User] = r
	}
	assert.Equal(t, "acme", byUser["acme-abcd"].Company)
	assert.Equal(t, 10, byUser["acme-abcd"].PolicyMax)
	assert.Equal(t, "globex", byUser["globex-wxyz"].Company)
	assert.Equal(t, 2, byUser["globex-wxyz"].PolicyMax)
}

func TestReloadBumpsVersionEachTime(t *testing.T) {
	svc, _ := setup(t, `
GROUP acme_eda acme-abcd
MAX 5 simulator GROUP acme_eda
`)

	_, err := svc.Reload(context.Background())
	require.NoError(t, err)
	result, err := svc.Reload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.PolicyVersion)
	assert.Equal(t, int64(2), svc.Version())
}

func TestReloadWithoutOptionsFile(t *testing.T) {
	svc, _ := setup(t, "")

	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoOptionsFile)
}

func TestReloadEmptyPolicy(t *testing.T) {
	svc, _ := setup(t, "# nothing but comments\n")

	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyPolicy)
}

func TestReloadUnknownGroupIsSkipped(t *testing.T) {
	svc, repo := setup(t, `
GROUP acme_eda acme-abcd
MAX 10 simulator GROUP missing_group
MAX 5 viewer GROUP acme_eda
`)

	result, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rules)

	rules, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "viewer", rules[0].Feature)
}
