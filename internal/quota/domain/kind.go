package domain

// Kind names a countable resource capped by the plan.
type Kind string

const (
	KindUsers     Kind = "users"
	KindCompanies Kind = "companies"
	KindBranches  Kind = "branches"
	KindStorage   Kind = "storage"
)

// MBPerGB converts the plan storage cap into ledger units.
const MBPerGB = 1024

var Kinds = []Kind{KindUsers, KindCompanies, KindBranches, KindStorage}

type columns struct {
	usage string
	limit string
}

var kindColumns = map[Kind]columns{
	KindUsers:     {usage: "users_count", limit: "p.max_users"},
	KindCompanies: {usage: "companies_count", limit: "p.max_companies"},
	KindBranches:  {usage: "branches_count", limit: "p.max_branches"},
	KindStorage:   {usage: "storage_mb", limit: "p.max_storage_gb * 1024"},
}

// Columns returns the usage column and the plan limit expression for kind.
// The values are constants and safe to splice into SQL.
func (k Kind) Columns() (usage string, limit string, ok bool) {
	c, ok := kindColumns[k]
	return c.usage, c.limit, ok
}

func (k Kind) Valid() bool {
	_, ok := kindColumns[k]
	return ok
}

func ParseKind(value string) (Kind, bool) {
	k := Kind(value)
	if value == "storage_mb" {
		k = KindStorage
	}
	return k, k.Valid()
}
