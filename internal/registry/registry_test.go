package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzardx/davinci/pkg/schema"
)

func prop(id string, m schema.Method) schema.Property {
	return schema.Property{ID: id, Method: m, Severity: schema.SeverityCritical}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var de *schema.DavinciError
	require.True(t, errors.As(err, &de), "expected DavinciError, got %v", err)
	return de.Code
}

func TestRegister_AndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("orders", prop("p1", schema.MethodReachability)))
	require.NoError(t, r.Register("orders", prop("p2", schema.MethodTiming)))
	require.NoError(t, r.Register("billing", prop("p1", schema.MethodReachability)))

	got := r.Lookup("orders")
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)
	assert.Equal(t, "orders", got[0].Scope)

	assert.Empty(t, r.Lookup("nowhere"))
	assert.Equal(t, 3, r.Len())
}

func TestRegister_EmptyScopeIsGlobal(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("", prop("p", schema.MethodCompleteness)))
	assert.Len(t, r.Lookup(schema.ScopeGlobal), 1)
}

func TestRegister_DuplicateInSameScope(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("orders", prop("p1", schema.MethodReachability)))
	err := r.Register("orders", prop("p1", schema.MethodTiming))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDuplicatePropertyID, errCode(t, err))
	assert.Equal(t, 1, r.Len())
}

func TestRegister_ScopeAliasesShareIDs(t *testing.T) {
	paths := map[string]string{"pay": "root/pay"}
	r := New(WithScopeResolver(func(scope string) string {
		if p, ok := paths[scope]; ok {
			return p
		}
		return scope
	}))

	require.NoError(t, r.Register("pay", prop("p", schema.MethodReachability)))
	err := r.Register("root/pay", prop("p", schema.MethodTiming))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDuplicatePropertyID, errCode(t, err))

	got := r.Lookup("root/pay")
	require.Len(t, got, 1)
	assert.Equal(t, "root/pay", got[0].Scope)
	assert.Empty(t, r.Lookup("pay"))
}

func TestRegister_WithoutResolverScopesAreLiteral(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("pay", prop("p", schema.MethodReachability)))
	require.NoError(t, r.Register("root/pay", prop("p", schema.MethodReachability)))
	assert.Equal(t, 2, r.Len())
}

func TestRegister_Validation(t *testing.T) {
	r := New()
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, r.Register("x", prop("", schema.MethodTiming))))
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, r.Register("x", prop("p", "guesswork"))))

	bad := prop("p", schema.MethodTiming)
	bad.Severity = "catastrophic"
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, r.Register("x", bad)))
}

func TestRegister_DefaultSeverity(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("x", schema.Property{ID: "p", Method: schema.MethodTiming}))
	assert.Equal(t, schema.SeverityHigh, r.Lookup("x")[0].Severity)
}

func TestSeal(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("x", prop("a", schema.MethodTiming)))
	r.Seal()
	assert.True(t, r.Sealed())

	err := r.Register("x", prop("b", schema.MethodTiming))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRegistrySealed, errCode(t, err))
	assert.Equal(t, 1, r.Len())
}

func TestAll_InsertionOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("b", prop("1", schema.MethodTiming)))
	require.NoError(t, r.Register("a", prop("2", schema.MethodTiming)))
	require.NoError(t, r.Register("b", prop("3", schema.MethodTiming)))

	var ids []string
	for _, e := range r.All() {
		ids = append(ids, e.Scope+":"+e.Property.ID)
	}
	assert.Equal(t, []string{"b:1", "a:2", "b:3"}, ids)
}

func TestRegisterDecls(t *testing.T) {
	r := New()
	err := r.RegisterDecls([]schema.PropertyDecl{
		{ID: "g", Method: schema.MethodCompleteness},
		{ID: "c", Scope: "orders", Method: schema.MethodReachability, Severity: schema.SeverityLow},
		{ID: "g", Method: schema.MethodTiming},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDuplicatePropertyID, errCode(t, err))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, schema.ScopeGlobal, all[0].Scope)
	assert.Equal(t, schema.SeverityLow, all[1].Property.Severity)
}

func TestRegister_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register("x", prop("same", schema.MethodTiming))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}
