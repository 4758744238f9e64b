package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/registry/domain"
	"github.com/smallbiznis/controlplane/internal/registry/service"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testutil.Env, *catalogdomain.Tenant) {
	t.Helper()

	env := testutil.NewEnv(t)
	req := testutil.BasicPlan()
	req.MaxCompanies = 3
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, req))
	return env, tenant
}

func usage(t *testing.T, env *testutil.Env, tenantID snowflake.ID) quotadomain.QuotaUsage {
	t.Helper()

	view, err := env.Ledger.Usage(context.Background(), tenantID)
	require.NoError(t, err)
	return view.Usage
}

func TestCreateCompany(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	company, err := env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Filial Norte Ltda", TaxID: "123"})
	require.NoError(t, err)
	assert.Equal(t, "filial-norte-ltda", company.Code)
	assert.False(t, company.IsPrimary)

	_, err = env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Filial  Norte LTDA"})
	assert.ErrorIs(t, err, domain.ErrCompanyExists)

	_, err = env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestPrimaryCompanyCannotBeDeleted(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	var primaryID snowflake.ID
	require.NoError(t, env.DB.Raw(`SELECT id FROM companies WHERE tenant_id = ? AND is_primary = ?`, tenant.ID, true).Scan(&primaryID).Error)
	require.NotZero(t, primaryID)

	assert.ErrorIs(t, env.Registry.DeleteCompany(ctx, tenant, primaryID), domain.ErrPrimaryCompany)
	assert.ErrorIs(t, env.Registry.DeleteCompany(ctx, tenant, 1), domain.ErrCompanyNotFound)
}

func TestDeleteCompanyReleasesBranches(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindCompanies, 1))
	company, err := env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Second"})
	require.NoError(t, err)
	for _, name := range []string{"North", "South"} {
		require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindBranches, 1))
		_, err := env.Registry.CreateBranch(ctx, tenant, domain.CreateBranchRequest{CompanyID: company.ID, Name: name})
		require.NoError(t, err)
	}
	doc, err := env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{CompanyID: &company.ID, Name: "contract.pdf", SizeMB: 5})
	require.NoError(t, err)

	before := usage(t, env, tenant.ID)
	assert.EqualValues(t, 1, before.CompaniesCount)
	assert.EqualValues(t, 2, before.BranchesCount)
	assert.EqualValues(t, 5, before.StorageMB)

	require.NoError(t, env.Registry.DeleteCompany(ctx, tenant, company.ID))

	after := usage(t, env, tenant.ID)
	assert.Zero(t, after.CompaniesCount)
	assert.Zero(t, after.BranchesCount)
	assert.EqualValues(t, 5, after.StorageMB)

	var companyID *snowflake.ID
	require.NoError(t, env.DB.Raw(`SELECT company_id FROM documents WHERE id = ?`, doc.ID).Scan(&companyID).Error)
	assert.Nil(t, companyID)
}

func TestCreateBranchNeedsCompany(t *testing.T) {
	env, tenant := setup(t)

	_, err := env.Registry.CreateBranch(context.Background(), tenant, domain.CreateBranchRequest{CompanyID: 99, Name: "Orphan"})
	assert.ErrorIs(t, err, domain.ErrCompanyNotFound)
	assert.True(t, service.IsNotFound(err))
}

func TestDeleteBranch(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindCompanies, 1))
	company, err := env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Second"})
	require.NoError(t, err)
	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindBranches, 1))
	branch, err := env.Registry.CreateBranch(ctx, tenant, domain.CreateBranchRequest{CompanyID: company.ID, Name: "North"})
	require.NoError(t, err)

	require.NoError(t, env.Registry.DeleteBranch(ctx, tenant, branch.ID))
	assert.Zero(t, usage(t, env, tenant.ID).BranchesCount)

	assert.ErrorIs(t, env.Registry.DeleteBranch(ctx, tenant, branch.ID), domain.ErrBranchNotFound)
}

func TestDocumentStorageIsReserved(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	doc, err := env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{Name: "big.bin", SizeMB: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 1000, usage(t, env, tenant.ID).StorageMB)

	_, err = env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{Name: "too-big.bin", SizeMB: 100})
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	var rows int64
	require.NoError(t, env.DB.Raw(`SELECT COUNT(*) FROM documents WHERE tenant_id = ?`, tenant.ID).Scan(&rows).Error)
	assert.EqualValues(t, 1, rows)

	require.NoError(t, env.Registry.DeleteDocument(ctx, tenant, doc.ID))
	assert.Zero(t, usage(t, env, tenant.ID).StorageMB)

	assert.ErrorIs(t, env.Registry.DeleteDocument(ctx, tenant, doc.ID), domain.ErrDocumentNotFound)

	_, err = env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{Name: "neg", SizeMB: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidSize)
}

func TestRecountRepairsDrift(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	company, err := env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Unreserved"})
	require.NoError(t, err)
	_, err = env.Registry.CreateBranch(ctx, tenant, domain.CreateBranchRequest{CompanyID: company.ID, Name: "North"})
	require.NoError(t, err)
	_, err = env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{Name: "a.pdf", SizeMB: 3})
	require.NoError(t, err)
	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindUsers, 2))

	counts, err := env.Registry.Recount(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, quotadomain.Counts{Users: 0, Companies: 1, Branches: 1, StorageMB: 3}, counts)

	got := usage(t, env, tenant.ID)
	assert.Zero(t, got.UsersCount)
	assert.EqualValues(t, 1, got.CompaniesCount)
	assert.EqualValues(t, 1, got.BranchesCount)
	assert.EqualValues(t, 3, got.StorageMB)
}

func TestWritesFailOnceNamespaceIsDropped(t *testing.T) {
	env, tenant := setup(t)
	ctx := context.Background()

	company, err := env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "Before Drop"})
	require.NoError(t, err)
	require.NoError(t, env.Provisioner.Drop(ctx, tenant.SchemaName))

	_, err = env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "After Drop"})
	assert.ErrorIs(t, err, domain.ErrNamespaceNotReady)
	_, err = env.Registry.CreateDocument(ctx, tenant, domain.CreateDocumentRequest{Name: "late.pdf", SizeMB: 5})
	assert.ErrorIs(t, err, domain.ErrNamespaceNotReady)
	_, err = env.Registry.CreateBranch(ctx, tenant, domain.CreateBranchRequest{CompanyID: company.ID, Name: "North"})
	assert.Error(t, err)

	var rows int64
	require.NoError(t, env.DB.Raw(`SELECT COUNT(*) FROM companies WHERE tenant_id = ?`, tenant.ID).Scan(&rows).Error)
	assert.Zero(t, rows)
	require.NoError(t, env.DB.Raw(`SELECT COUNT(*) FROM documents WHERE tenant_id = ?`, tenant.ID).Scan(&rows).Error)
	assert.Zero(t, rows)
	assert.Zero(t, usage(t, env, tenant.ID).StorageMB)

	require.NoError(t, env.Provisioner.Provision(ctx, tenant.SchemaName))
	_, err = env.Registry.CreateCompany(ctx, tenant, domain.CreateCompanyRequest{Name: "After Drop"})
	assert.NoError(t, err)
}
