package remote

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/service"
)

type testEnv struct {
	store      *config.Store
	tokens     *service.TokenService
	dispatcher *Dispatcher
	token      *model.AccessToken
}

// setupWithTestToken registers a "test" model whose removeById alias is
// denied to everyone, and issues one token.
func setupWithTestToken(t *testing.T, app model.AppSettings, settings model.ModelSettings) *testEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	settings.ACLs = append(settings.ACLs, model.ACLRule{
		Property:      "removeById",
		AccessType:    model.AccessAll,
		Permission:    model.PermissionDeny,
		PrincipalType: model.PrincipalRole,
		PrincipalID:   model.RoleEveryone,
	})

	registry := NewRegistry()
	if err := registry.Register(ExposeStandardMethods(NewModel("test", settings), NewMemoryRepository())); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tokens := service.NewTokenService(store)
	if err := registry.Register(NewAccessTokenModel(tokens, model.ModelSettings{}, 0)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tok, err := tokens.Create(context.Background(), service.TokenAttrs{})
	if err != nil {
		t.Fatalf("Create token: %v", err)
	}

	return &testEnv{
		store:      store,
		tokens:     tokens,
		dispatcher: NewDispatcher(registry, NewGate(app, store, nil)),
		token:      tok,
	}
}

func (e *testEnv) withToken(ctx context.Context) context.Context {
	return auth.NewContext(ctx, &auth.Context{Token: e.token, Principal: &model.Principal{}})
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthorizationError", err)
	}
	return authErr.Status
}

func TestDeniedCallStatus(t *testing.T) {
	tests := []struct {
		name     string
		app      model.AppSettings
		settings model.ModelSettings
		want     int
	}{
		{"default status", model.AppSettings{}, model.ModelSettings{}, 401},
		{"app setting status", model.AppSettings{ACLErrorStatus: model.Ptr(403)}, model.ModelSettings{}, 403},
		{"model setting status", model.AppSettings{}, model.ModelSettings{ACLErrorStatus: model.Ptr(404)}, 404},
		{"model overrides app", model.AppSettings{ACLErrorStatus: model.Ptr(403)}, model.ModelSettings{ACLErrorStatus: model.Ptr(404)}, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupWithTestToken(t, tt.app, tt.settings)
			_, err := env.dispatcher.Invoke(env.withToken(context.Background()), Call{
				Method: "test.deleteById",
				Args:   Args{"id": 123},
			})
			if got := statusOf(t, err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDeniedWithoutToken(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{})
	_, err := env.dispatcher.Invoke(context.Background(), Call{Method: "test.deleteById", Args: Args{"id": 123}})
	if got := statusOf(t, err); got != 401 {
		t.Errorf("status = %d, want 401", got)
	}
}

func TestMissingRequiredToken(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{
		AuthRequired: []model.AccessType{model.AccessWrite},
	})
	ctx := context.Background()

	_, err := env.dispatcher.Invoke(ctx, Call{Method: "test.create", Args: Args{"data": map[string]interface{}{"a": 1}}})
	if got := statusOf(t, err); got != 401 {
		t.Errorf("status = %d, want 401", got)
	}

	// Reads are not gated by auth_required.
	if _, err := env.dispatcher.Invoke(ctx, Call{Method: "test.count"}); err != nil {
		t.Errorf("count without token: %v", err)
	}

	// The same write succeeds once a token is attached.
	if _, err := env.dispatcher.Invoke(env.withToken(ctx), Call{Method: "test.create"}); err != nil {
		t.Errorf("create with token: %v", err)
	}
}

func TestAllowedCallsPassThrough(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{})
	ctx := env.withToken(context.Background())

	created, err := env.dispatcher.Invoke(ctx, Call{Method: "test.create", Args: Args{"data": map[string]interface{}{"name": "w1"}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id, _ := created.(Record)["id"].(string)
	if id == "" {
		t.Fatalf("create returned %+v, want an id", created)
	}

	got, err := env.dispatcher.Invoke(ctx, Call{Method: "test.findById", Args: Args{"id": id}})
	if err != nil {
		t.Fatalf("findById: %v", err)
	}
	if got.(Record)["name"] != "w1" {
		t.Errorf("findById = %+v", got)
	}

	// Method errors are returned unchanged.
	_, err = env.dispatcher.Invoke(ctx, Call{Method: "test.findById", Args: Args{"id": "missing"}})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("findById(missing) error = %v, want ErrRecordNotFound", err)
	}

	updated, err := env.dispatcher.Invoke(ctx, Call{Method: "test.updateAttributes", Args: Args{"id": id, "data": map[string]interface{}{"name": "w2"}}})
	if err != nil {
		t.Fatalf("updateAttributes: %v", err)
	}
	if updated.(Record)["name"] != "w2" {
		t.Errorf("updateAttributes = %+v", updated)
	}
}

func TestDeniedMethodNeverRuns(t *testing.T) {
	calls := 0
	m := NewModel("guarded", model.ModelSettings{
		ACLs: []model.ACLRule{{Property: "run", AccessType: model.AccessAll, Permission: model.PermissionDeny, PrincipalType: model.PrincipalRole, PrincipalID: model.RoleEveryone}},
	}).Expose(Method{
		Name: "run",
		Handler: func(context.Context, Args) (interface{}, error) {
			calls++
			return nil, nil
		},
	})
	registry := NewRegistry()
	if err := registry.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(registry, NewGate(model.AppSettings{}, nil, nil))

	if _, err := d.Invoke(context.Background(), Call{Method: "guarded.run"}); err == nil {
		t.Fatal("expected denial")
	}
	if calls != 0 {
		t.Errorf("handler ran %d times, want 0", calls)
	}
}

func TestStoreRulesApply(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{})
	ctx := context.Background()

	if _, err := env.dispatcher.Invoke(ctx, Call{Method: "test.find"}); err != nil {
		t.Fatalf("find before rule: %v", err)
	}
	if err := env.store.CreateACLRule(ctx, &model.ACLRule{
		Model:         "test",
		AccessType:    model.AccessRead,
		Permission:    model.PermissionDeny,
		PrincipalType: model.PrincipalRole,
		PrincipalID:   model.RoleUnauthenticated,
	}); err != nil {
		t.Fatalf("CreateACLRule: %v", err)
	}

	_, err := env.dispatcher.Invoke(ctx, Call{Method: "test.find"})
	if got := statusOf(t, err); got != 401 {
		t.Errorf("status = %d, want 401", got)
	}
	if _, err := env.dispatcher.Invoke(env.withToken(ctx), Call{Method: "test.find"}); err != nil {
		t.Errorf("find with token: %v", err)
	}
}

type brokenRules struct{}

func (brokenRules) ListACLRules(context.Context, string) ([]model.ACLRule, error) {
	return nil, errors.New("db down")
}

func TestRuleSourceFailureIsNotAuthorizationError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ExposeStandardMethods(NewModel("test", model.ModelSettings{}), NewMemoryRepository()))
	d := NewDispatcher(registry, NewGate(model.AppSettings{}, brokenRules{}, nil))

	_, err := d.Invoke(context.Background(), Call{Method: "test.find"})
	if err == nil {
		t.Fatal("expected error")
	}
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		t.Errorf("error = %v, want a non-authorization error", err)
	}
}

func TestAccessTokenModel(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{})
	ctx := context.Background()

	// Anonymous and plain tokens are denied.
	_, err := env.dispatcher.Invoke(env.withToken(ctx), Call{Method: "AccessToken.create"})
	if got := statusOf(t, err); got != 401 {
		t.Errorf("status = %d, want 401", got)
	}

	admin := auth.NewContext(ctx, &auth.Context{
		Token:     env.token,
		Principal: &model.Principal{UserID: "root", Roles: []string{"admin"}},
	})
	res, err := env.dispatcher.Invoke(admin, Call{
		Method: "AccessToken.create",
		Args:   Args{"data": map[string]interface{}{"user_id": "alice", "ttl": float64(60)}},
	})
	if err != nil {
		t.Fatalf("create as admin: %v", err)
	}
	tok := res.(*model.AccessToken)
	if tok.UserID != "alice" || tok.TTL == nil || *tok.TTL != 60 {
		t.Errorf("created token = %+v", tok)
	}

	if _, err := env.dispatcher.Invoke(admin, Call{Method: "AccessToken.findById", Args: Args{"id": tok.ID}}); err != nil {
		t.Errorf("findById: %v", err)
	}
	del, err := env.dispatcher.Invoke(admin, Call{Method: "AccessToken.destroyById", Args: Args{"id": tok.ID}})
	if err != nil {
		t.Fatalf("destroyById: %v", err)
	}
	if del.(CountResult).Count != 1 {
		t.Errorf("destroyById = %+v, want count 1", del)
	}
	_, err = env.dispatcher.Invoke(admin, Call{Method: "AccessToken.findById", Args: Args{"id": tok.ID}})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("findById after revoke error = %v, want ErrRecordNotFound", err)
	}

	_, err = env.dispatcher.Invoke(admin, Call{Method: "AccessToken.create", Args: Args{"data": map[string]interface{}{"ttl": float64(-1)}}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("create with negative ttl error = %v, want ErrInvalidArgument", err)
	}
}

func TestAccessTokenCreateRejectsBadTTL(t *testing.T) {
	env := setupWithTestToken(t, model.AppSettings{}, model.ModelSettings{})
	admin := auth.NewContext(context.Background(), &auth.Context{
		Token:     env.token,
		Principal: &model.Principal{UserID: "root", Roles: []string{"admin"}},
	})

	tests := []struct {
		name string
		ttl  interface{}
	}{
		{"fraction", float64(10.9)},
		{"beyond int64", float64(1e19)},
		{"not a number", math.NaN()},
		{"infinite", math.Inf(1)},
		{"string", "60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.dispatcher.Invoke(admin, Call{
				Method: "AccessToken.create",
				Args:   Args{"data": map[string]interface{}{"ttl": tt.ttl}},
			})
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("create with ttl %v error = %v, want ErrInvalidArgument", tt.ttl, err)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in        string
		model, fn string
		wantErr   bool
	}{
		{"test.deleteById", "test", "deleteById", false},
		{"ns.test.find", "ns.test", "find", false},
		{"nodot", "", "", true},
		{".find", "", "", true},
		{"test.", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, fn, err := ParseMethod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMethod error = %v, wantErr %v", err, tt.wantErr)
			}
			if m != tt.model || fn != tt.fn {
				t.Errorf("ParseMethod = %q, %q; want %q, %q", m, fn, tt.model, tt.fn)
			}
		})
	}
}

func TestRegistryLookups(t *testing.T) {
	registry := NewRegistry()
	m := ExposeStandardMethods(NewModel("widget", model.ModelSettings{}), NewMemoryRepository())
	if err := registry.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(NewModel("widget", model.ModelSettings{})); !errors.Is(err, ErrDuplicateModel) {
		t.Errorf("duplicate Register error = %v, want ErrDuplicateModel", err)
	}
	if _, err := registry.Model("gadget"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Model(gadget) error = %v, want ErrModelNotFound", err)
	}

	meth, err := m.Method("removeById")
	if err != nil {
		t.Fatalf("Method(removeById): %v", err)
	}
	if meth.Name != "deleteById" {
		t.Errorf("alias resolved to %q, want deleteById", meth.Name)
	}
	if _, err := m.Method("explode"); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("Method(explode) error = %v, want ErrMethodNotFound", err)
	}
	if len(m.Methods()) != 7 {
		t.Errorf("got %d methods, want 7", len(m.Methods()))
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	a := repo.Create(Record{"color": "red"})
	repo.Create(Record{"color": "blue"})
	repo.Create(Record{"color": "red"})

	if n := repo.Count(nil); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if n := repo.Count(Record{"color": "red"}); n != 2 {
		t.Errorf("Count(red) = %d, want 2", n)
	}
	reds := repo.Find(Record{"color": "red"})
	if len(reds) != 2 || reds[0]["id"] != a["id"] {
		t.Errorf("Find(red) = %+v", reds)
	}

	// Returned records are copies.
	reds[0]["color"] = "green"
	if got, _ := repo.FindByID(a["id"].(string)); got["color"] != "red" {
		t.Error("mutating a returned record changed the store")
	}

	if _, err := repo.UpdateByID(a["id"].(string), Record{"id": "hijack", "size": 3}); err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if !repo.Exists(a["id"].(string)) || repo.Exists("hijack") {
		t.Error("update must not change the id")
	}
	if n := repo.DeleteByID(a["id"].(string)); n != 1 {
		t.Errorf("DeleteByID = %d, want 1", n)
	}
	if n := repo.DeleteByID(a["id"].(string)); n != 0 {
		t.Errorf("second DeleteByID = %d, want 0", n)
	}
}

func TestFindPaging(t *testing.T) {
	registry := NewRegistry()
	repo := NewMemoryRepository()
	for i := 0; i < 5; i++ {
		repo.Create(Record{"n": float64(i)})
	}
	registry.Register(ExposeStandardMethods(NewModel("item", model.ModelSettings{}), repo))
	d := NewDispatcher(registry, NewGate(model.AppSettings{}, nil, nil))

	tests := []struct {
		name          string
		offset, limit int
		want          []float64
	}{
		{"all", 0, 0, []float64{0, 1, 2, 3, 4}},
		{"limit", 0, 2, []float64{0, 1}},
		{"offset", 3, 0, []float64{3, 4}},
		{"offset and limit", 1, 2, []float64{1, 2}},
		{"offset past end", 10, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Invoke(context.Background(), Call{
				Method: "item.find",
				Args:   Args{"offset": tt.offset, "limit": tt.limit},
			})
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			records := res.([]Record)
			if len(records) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.want))
			}
			for i, r := range records {
				if r["n"] != tt.want[i] {
					t.Errorf("records[%d].n = %v, want %v", i, r["n"], tt.want[i])
				}
			}
		})
	}
}
