package database

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/scope"
)

func createObject(t *testing.T, dbCtx *Context, dn, dnNorm, parentNorm string) int64 {
	t.Helper()
	id, err := NewObjectRepository(dbCtx).Create(context.Background(), NewObject{
		DN:       dn,
		DNNorm:   dnNorm,
		ParentDN: parentNorm,
		GUID:     "guid:" + dnNorm,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return id
}

func TestObjectRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewObjectRepository(dbCtx)

	id := createObject(t, dbCtx, "CN=A,DC=local", "cn=a,dc=local", "dc=local")

	found, err := repo.FindByDN(ctx, "cn=a,dc=local")
	if err != nil {
		t.Fatalf("FindByDN error: %v", err)
	}
	if found == nil || found.ID != id || found.DN != "CN=A,DC=local" {
		t.Fatalf("unexpected record: %#v", found)
	}
	if found.CreatedAt.IsZero() || found.DeletedAt != nil {
		t.Fatalf("unexpected timestamps: %#v", found)
	}

	byGUID, err := repo.FindByGUID(ctx, "guid:cn=a,dc=local")
	if err != nil || byGUID == nil || byGUID.ID != id {
		t.Fatalf("FindByGUID = %#v, %v", byGUID, err)
	}

	moved, err := repo.UpdateDN(ctx, id, "CN=B,DC=local", "cn=b,dc=local", "dc=local", time.Now().UTC())
	if err != nil || !moved {
		t.Fatalf("UpdateDN = %v, %v", moved, err)
	}
	if missing, _ := repo.FindByDN(ctx, "cn=a,dc=local"); missing != nil {
		t.Fatalf("expected old DN to be gone")
	}

	deleted, err := repo.SoftDelete(ctx, id, time.Now().UTC())
	if err != nil || !deleted {
		t.Fatalf("SoftDelete = %v, %v", deleted, err)
	}
	if again, _ := repo.SoftDelete(ctx, id, time.Now().UTC()); again {
		t.Fatalf("expected second SoftDelete to report false")
	}

	if live, _ := repo.FindByDN(ctx, "cn=b,dc=local"); live != nil {
		t.Fatalf("expected tombstone to be unreachable by DN")
	}
	tombstones, err := repo.ListDeleted(ctx, "cn=b,dc=local")
	if err != nil || len(tombstones) != 1 || tombstones[0].DeletedAt == nil {
		t.Fatalf("ListDeleted = %#v, %v", tombstones, err)
	}

	exists, err := repo.GUIDExists(ctx, "guid:cn=a,dc=local")
	if err != nil || !exists {
		t.Fatalf("expected tombstone GUID to be reserved, got %v, %v", exists, err)
	}

	// The live DN index ignores tombstones.
	createObject(t, dbCtx, "CN=B,DC=local", "cn=b,dc=local", "dc=local")
}

func TestObjectRepositoryDescendants(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewObjectRepository(dbCtx)

	createObject(t, dbCtx, "ou=a_b,dc=local", "ou=a_b,dc=local", "dc=local")
	createObject(t, dbCtx, "cn=x,ou=a_b,dc=local", "cn=x,ou=a_b,dc=local", "ou=a_b,dc=local")
	createObject(t, dbCtx, "cn=y,cn=x,ou=a_b,dc=local", "cn=y,cn=x,ou=a_b,dc=local", "cn=x,ou=a_b,dc=local")
	createObject(t, dbCtx, "cn=z,ou=axb,dc=local", "cn=z,ou=axb,dc=local", "ou=axb,dc=local")

	got, err := repo.ListDescendants(ctx, "ou=a_b,dc=local")
	if err != nil {
		t.Fatalf("ListDescendants error: %v", err)
	}
	var dns []string
	for _, r := range got {
		dns = append(dns, r.DNNorm)
	}
	want := []string{"cn=x,ou=a_b,dc=local", "cn=y,cn=x,ou=a_b,dc=local"}
	if !reflect.DeepEqual(dns, want) {
		t.Fatalf("expected %v, got %v", want, dns)
	}
}

func TestAttributeRepositoryValues(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewAttributeRepository(dbCtx, nil)
	id := createObject(t, dbCtx, "cn=a,dc=local", "cn=a,dc=local", "dc=local")

	if err := repo.Replace(ctx, id, "Mail", []string{"b@x", "a@x"}); err != nil {
		t.Fatalf("Replace error: %v", err)
	}
	added, err := repo.AddMissing(ctx, id, "mail", []string{"A@X", "c@x", "c@x"})
	if err != nil {
		t.Fatalf("AddMissing error: %v", err)
	}
	if !reflect.DeepEqual(added, []string{"c@x"}) {
		t.Fatalf("expected only c@x to be added, got %v", added)
	}

	values, err := repo.Values(ctx, id, "MAIL")
	if err != nil {
		t.Fatalf("Values error: %v", err)
	}
	if !reflect.DeepEqual(values, []string{"b@x", "a@x", "c@x"}) {
		t.Fatalf("unexpected values: %v", values)
	}

	if err := repo.Add(ctx, id, "mail", []string{"a@x", "A@X"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	values, err = repo.Values(ctx, id, "mail")
	if err != nil {
		t.Fatalf("Values error: %v", err)
	}
	if !reflect.DeepEqual(values, []string{"b@x", "a@x", "c@x", "a@x", "A@X"}) {
		t.Fatalf("Add should keep repeated values, got %v", values)
	}

	removed, err := repo.RemoveValues(ctx, id, "mail", []string{"B@X", "missing"})
	if err != nil || removed != 1 {
		t.Fatalf("RemoveValues = %d, %v", removed, err)
	}
	if _, err := repo.RemoveValues(ctx, id, "mail", []string{"a@x", "c@x"}); err != nil {
		t.Fatalf("RemoveValues error: %v", err)
	}
	assertCount(t, dbCtx.DB, "attributes", 0)

	if existed, err := repo.RemoveAll(ctx, id, "mail"); err != nil || existed {
		t.Fatalf("RemoveAll on absent attribute = %v, %v", existed, err)
	}
}

func TestAttributeRepositoryLoadMany(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewAttributeRepository(dbCtx, nil)
	a := createObject(t, dbCtx, "cn=a,dc=local", "cn=a,dc=local", "dc=local")
	b := createObject(t, dbCtx, "cn=b,dc=local", "cn=b,dc=local", "dc=local")

	mustReplace(t, repo, a, "cn", "a")
	mustReplace(t, repo, a, "description", "first", "second")
	mustReplace(t, repo, b, "cn", "b")

	all, err := repo.LoadMany(ctx, []int64{a, b}, nil)
	if err != nil {
		t.Fatalf("LoadMany error: %v", err)
	}
	wantA := []AttributeRecord{
		{Name: "cn", Values: []string{"a"}},
		{Name: "description", Values: []string{"first", "second"}},
	}
	if !reflect.DeepEqual(all[a], wantA) {
		t.Fatalf("unexpected attributes for a: %#v", all[a])
	}
	if len(all[b]) != 1 {
		t.Fatalf("unexpected attributes for b: %#v", all[b])
	}

	selected, err := repo.LoadMany(ctx, []int64{a}, []string{"DESCRIPTION"})
	if err != nil {
		t.Fatalf("LoadMany error: %v", err)
	}
	if len(selected[a]) != 1 || selected[a][0].Name != "description" {
		t.Fatalf("unexpected selection: %#v", selected[a])
	}

	empty, err := repo.LoadMany(ctx, nil, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("LoadMany(nil) = %v, %v", empty, err)
	}
}

func TestAttributeRepositoryReferences(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewAttributeRepository(dbCtx, nil)
	u1 := createObject(t, dbCtx, "cn=u1,dc=local", "cn=u1,dc=local", "dc=local")
	u2 := createObject(t, dbCtx, "cn=u2,dc=local", "cn=u2,dc=local", "dc=local")

	mustReplace(t, repo, u1, "member", "cn=g,dc=local", "cn=h,dc=local")
	mustReplace(t, repo, u2, "member", "CN=G,DC=local")

	refs, err := repo.FindReferences(ctx, "member", "cn=g,dc=local")
	if err != nil {
		t.Fatalf("FindReferences error: %v", err)
	}
	if len(refs) != 2 || refs[0].ObjectID != u1 || refs[1].ObjectID != u2 {
		t.Fatalf("unexpected references: %#v", refs)
	}

	if err := repo.RewriteValue(ctx, refs[0].ValueID, "member", "cn=renamed,dc=local"); err != nil {
		t.Fatalf("RewriteValue error: %v", err)
	}
	values, _ := repo.Values(ctx, u1, "member")
	if !reflect.DeepEqual(values, []string{"cn=renamed,dc=local", "cn=h,dc=local"}) {
		t.Fatalf("rewrite should keep position, got %v", values)
	}
}

func TestSearchQueryScopesAndFilters(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	attrs := NewAttributeRepository(dbCtx, nil)

	root := createObject(t, dbCtx, "dc=local", "dc=local", "")
	people := createObject(t, dbCtx, "ou=people,dc=local", "ou=people,dc=local", "dc=local")
	alice := createObject(t, dbCtx, "cn=alice,ou=people,dc=local", "cn=alice,ou=people,dc=local", "ou=people,dc=local")
	bob := createObject(t, dbCtx, "cn=bob,ou=people,dc=local", "cn=bob,ou=people,dc=local", "ou=people,dc=local")

	mustReplace(t, attrs, root, "objectClass", "domain")
	mustReplace(t, attrs, people, "objectClass", "organizationalUnit")
	mustReplace(t, attrs, alice, "objectClass", "person")
	mustReplace(t, attrs, alice, "uidNumber", "9")
	mustReplace(t, attrs, bob, "objectClass", "person")
	mustReplace(t, attrs, bob, "uidNumber", "10")

	run := func(c scope.Constraint, f *filter.Filter, params SearchParams) []int64 {
		t.Helper()
		where, err := filter.Compile(f, FilterStorage{}, filter.Options{})
		if err != nil {
			t.Fatalf("Compile error: %v", err)
		}
		params.Scope = c
		params.Where = where
		records, err := NewSearchQuery(dbCtx).Run(ctx, params)
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		return ids
	}

	cases := []struct {
		name   string
		scope  scope.Constraint
		filter *filter.Filter
		params SearchParams
		want   []int64
	}{
		{"read", scope.Constraint{Type: scope.ScopeRead, Base: "ou=people,dc=local"}, nil, SearchParams{}, []int64{people}},
		{"listing", scope.Constraint{Type: scope.ScopeListing, Base: "ou=people,dc=local"}, nil, SearchParams{}, []int64{alice, bob}},
		{"search", scope.Constraint{Type: scope.ScopeSearch, Base: "ou=people,dc=local"}, nil, SearchParams{}, []int64{people, alice, bob}},
		{"root search", scope.Constraint{Type: scope.ScopeSearch}, filter.Equals("objectclass", "PERSON"), SearchParams{}, []int64{alice, bob}},
		{"numeric compare", scope.Constraint{Type: scope.ScopeSearch}, filter.GreaterOrEqual("uidNumber", "10"), SearchParams{}, []int64{bob}},
		{"absence", scope.Constraint{Type: scope.ScopeSearch}, filter.Absent("uidNumber"), SearchParams{}, []int64{root, people}},
		{"limit", scope.Constraint{Type: scope.ScopeSearch}, nil, SearchParams{Limit: 2}, []int64{root, people}},
		{"order numeric desc", scope.Constraint{Type: scope.ScopeSearch}, filter.Present("uidNumber"), SearchParams{OrderBy: "uidnumber", Descending: true}, []int64{bob, alice}},
		{"order numeric asc", scope.Constraint{Type: scope.ScopeSearch}, filter.Present("uidNumber"), SearchParams{OrderBy: "uidnumber"}, []int64{alice, bob}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := run(tc.scope, tc.filter, tc.params)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if _, err := NewObjectRepository(dbCtx).SoftDelete(ctx, bob, time.Now().UTC()); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}
	if got := run(scope.Constraint{Type: scope.ScopeListing, Base: "ou=people,dc=local"}, nil, SearchParams{}); !reflect.DeepEqual(got, []int64{alice}) {
		t.Fatalf("tombstones must not match, got %v", got)
	}
}

func mustReplace(t *testing.T, repo *AttributeRepository, objectID int64, name string, values ...string) {
	t.Helper()
	if err := repo.Replace(context.Background(), objectID, name, values); err != nil {
		t.Fatalf("Replace(%s) error: %v", name, err)
	}
}
