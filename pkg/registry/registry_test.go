package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CoversEveryEndpoint(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	paths := []string{
		"/user/data", "/resume", "/education", "/experience", "/skill", "/portfolio",
		"/blog", "/certificate", "/team", "/service", "/setting",
		"/admin/user", "/admin/resume", "/admin/education", "/admin/experience",
		"/admin/skill", "/admin/portfolio", "/admin/blog", "/admin/certification",
		"/admin/team", "/admin/service", "/admin/setting", "/admin/contact-us",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, ok := reg.Lookup(p)
			assert.True(t, ok)
		})
	}

	assert.Equal(t, "admin@example.com", reg.Login.Email)
}

func TestLookup_OrderAndQuery(t *testing.T) {
	reg, err := Parse([]byte(`{"endpoints":[
		{"suffix":"/user/data","data":"public"},
		{"suffix":"/user","data":"admin"}
	]}`))
	require.NoError(t, err)

	got, ok := reg.Lookup("/user/data?lang=fr")
	require.True(t, ok)
	assert.Equal(t, "public", got)

	got, ok = reg.Lookup("/admin/user")
	require.True(t, ok)
	assert.Equal(t, "admin", got)

	_, ok = reg.Lookup("/unknown")
	assert.False(t, ok)
}

func TestFindInCollection(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	project, ok := reg.FindInCollection("/portfolio", "projects", "2")
	require.True(t, ok)
	assert.Equal(t, "Fleet tracker", project["title"])

	_, ok = reg.FindInCollection("/portfolio", "projects", "99")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","endpoints":[{"suffix":"/team","data":[]}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParse_RejectsRelativeSuffix(t *testing.T) {
	_, err := Parse([]byte(`{"endpoints":[{"suffix":"team","data":[]}]}`))
	assert.Error(t, err)
}

func TestPutAndRemove(t *testing.T) {
	reg := &MockRegistry{}

	added, err := reg.Put("/team", []interface{}{})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = reg.Put("/team", []interface{}{map[string]interface{}{"id": float64(1)}})
	require.NoError(t, err)
	assert.False(t, added)
	require.Len(t, reg.Endpoints, 1)
	assert.NotEmpty(t, reg.LastUpdated)

	_, err = reg.Put("team", nil)
	assert.Error(t, err)

	require.NoError(t, reg.Remove("/team"))
	assert.Empty(t, reg.Endpoints)
	assert.Error(t, reg.Remove("/team"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		registry  *MockRegistry
		wantError string
	}{
		{
			name:      "empty",
			registry:  &MockRegistry{},
			wantError: "no endpoints",
		},
		{
			name: "duplicate",
			registry: &MockRegistry{Endpoints: []MockEndpoint{
				{Suffix: "/team"}, {Suffix: "/team"},
			}},
			wantError: "duplicate",
		},
		{
			name: "shadowed",
			registry: &MockRegistry{Endpoints: []MockEndpoint{
				{Suffix: "/user"}, {Suffix: "/admin/user"},
			}},
			wantError: "shadowed",
		},
		{
			name: "half login",
			registry: &MockRegistry{
				Login:     MockLogin{Email: "a@example.com"},
				Endpoints: []MockEndpoint{{Suffix: "/team"}},
			},
			wantError: "login",
		},
		{
			name: "longer suffix first is fine",
			registry: &MockRegistry{Endpoints: []MockEndpoint{
				{Suffix: "/user/data"}, {Suffix: "/user"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.registry.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestDefault_Validates(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.NoError(t, reg.Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	require.NoError(t, reg.Save(path))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Endpoints, len(reg.Endpoints))
	assert.Equal(t, reg.Login.Email, loaded.Login.Email)
}
