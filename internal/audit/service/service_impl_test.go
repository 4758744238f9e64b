package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReadsActorAndRequestFromContext(t *testing.T) {
	env := testutil.NewEnv(t)
	tenantID := snowflake.ID(42)

	ctx := obscontext.WithActor(context.Background(), "user", "7")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	require.NoError(t, env.Audit.Record(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionUserDelete,
		TargetType: "user",
		TargetID:   "9",
		Metadata:   map[string]any{"role": "member", "": "dropped"},
	}))

	resp, err := env.Audit.List(context.Background(), auditdomain.ListRequest{TenantID: tenantID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "9", *entry.TargetID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "member", entry.Metadata["role"])
	assert.NotContains(t, entry.Metadata, "")
	assert.True(t, entry.CreatedAt.Equal(testutil.Epoch))
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.Audit.Record(context.Background(), auditdomain.Entry{
		TenantID: 1,
		Action:   auditdomain.ActionTenantRecount,
	}))
	err := env.Audit.Record(context.Background(), auditdomain.Entry{TenantID: 1, Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	resp, err := env.Audit.List(context.Background(), auditdomain.ListRequest{TenantID: 1})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
}

func TestListPagesNewestFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, env.Audit.Record(ctx, auditdomain.Entry{TenantID: 1, Action: auditdomain.ActionUserCreate}))
		env.Clock.Advance(time.Minute)
	}
	require.NoError(t, env.Audit.Record(ctx, auditdomain.Entry{TenantID: 2, Action: auditdomain.ActionUserCreate}))

	var seen []time.Time
	token := ""
	for pages := 0; pages < 10; pages++ {
		resp, err := env.Audit.List(ctx, auditdomain.ListRequest{TenantID: 1, PageSize: 2, PageToken: token})
		require.NoError(t, err)
		for _, entry := range resp.AuditLogs {
			seen = append(seen, entry.CreatedAt)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].After(seen[i]))
	}
}

func TestListFiltersAndValidates(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Audit.Record(ctx, auditdomain.Entry{TenantID: 1, Action: auditdomain.ActionUserCreate}))
	require.NoError(t, env.Audit.Record(ctx, auditdomain.Entry{TenantID: 1, Action: auditdomain.ActionUserDelete}))

	resp, err := env.Audit.List(ctx, auditdomain.ListRequest{TenantID: 1, Action: auditdomain.ActionUserDelete})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActionUserDelete, resp.AuditLogs[0].Action)

	_, err = env.Audit.List(ctx, auditdomain.ListRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	_, err = env.Audit.List(ctx, auditdomain.ListRequest{TenantID: 1, PageToken: "bm90LWEtY3Vyc29y"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
