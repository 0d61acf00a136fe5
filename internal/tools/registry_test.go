package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	def := Definition{Name: "find_products", Resolver: Resolver{Path: "/products/search"}}
	_, err := NewRegistry(def, def)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestNewRegistry_RejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(Definition{})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestDefaultRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()

	for _, def := range Catalog() {
		got, ok := reg.Lookup(def.Name)
		require.True(t, ok, def.Name)
		assert.Equal(t, def.Name, got.Name)
	}
	_, ok := reg.Lookup("delete_everything")
	assert.False(t, ok)
}

func TestRegistry_SpecsSortedWithSchema(t *testing.T) {
	specs := DefaultRegistry().Specs()
	require.Len(t, specs, len(Catalog()))

	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Name, specs[i].Name)
	}
	assert.Equal(t, "check_order_status", specs[0].Name)
	assert.Equal(t, "object", specs[0].Parameters["type"])
	assert.Equal(t, []string{"order_id"}, specs[0].Parameters["required"])
}

func TestDefinition_ValidationSchemaDropsRequired(t *testing.T) {
	def, ok := DefaultRegistry().Lookup("find_products")
	require.True(t, ok)

	assert.Contains(t, def.Schema(), "required")
	assert.NotContains(t, def.validationSchema(), "required")
}

func TestResolver_URL(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		args     map[string]any
		want     string
	}{
		{
			name:     "query mapping",
			resolver: Resolver{Path: "/products/search", Query: map[string]string{"query": "q", "max_price": "max_price"}},
			args:     map[string]any{"query": "iPhone 15", "max_price": 25000000.0},
			want:     "http://store.test/api/products/search?max_price=25000000&q=iPhone+15",
		},
		{
			name:     "absent arguments omitted",
			resolver: Resolver{Path: "/products/search", Query: map[string]string{"query": "q", "category": "category"}},
			args:     map[string]any{},
			want:     "http://store.test/api/products/search",
		},
		{
			name:     "action discriminator",
			resolver: Resolver{Path: "/store", Action: "order_status", Query: map[string]string{"order_id": "order_id"}},
			args:     map[string]any{"order_id": "TN-1001"},
			want:     "http://store.test/api/store?action=order_status&order_id=TN-1001",
		},
		{
			name:     "path parameter escaped",
			resolver: Resolver{Path: "/products/{product_id}"},
			args:     map[string]any{"product_id": "ip 15/pro"},
			want:     "http://store.test/api/products/ip%2015%2Fpro",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resolver.URL("http://store.test/api/", tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
