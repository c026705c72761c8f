package catalog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = `{"restaurants":[
	{"name":"Corner Chaat"},
	{"name":"Maddur Tiffins (Near Mysore)","email":"owner@maddur.in"},
	{"name":"Swadh Restaurant","email":"OWNER@maddur.in"}
]}`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Decode(strings.NewReader(testDoc))
	require.NoError(t, err)
	return c
}

func TestResolve(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	tests := []struct {
		id      string
		want    string
		wantErr error
	}{
		{id: "maddur-tiffins", want: "Maddur Tiffins (Near Mysore)"},
		{id: "Swadh Restaurant", want: "Swadh Restaurant"},
		{id: "swadhrestaurant", wantErr: ErrUnknownRestaurant},
		{id: "r1", wantErr: ErrUnknownRestaurant},
		{id: "", wantErr: ErrUnknownRestaurant},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := c.Resolve(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultRestaurant(t *testing.T) {
	r, ok := testCatalog(t).DefaultRestaurant()

	require.True(t, ok)
	assert.Equal(t, "maddur-tiffins", r.Slug())
}

func TestDefaultRestaurant_NoEmails(t *testing.T) {
	_, ok := New([]Restaurant{{Name: "x"}}).DefaultRestaurant()

	assert.False(t, ok)
}

func TestOwnedBy(t *testing.T) {
	c := testCatalog(t)

	assert.Equal(t, []string{"maddur-tiffins", "swadh-restaurant"}, c.OwnedBy("Owner@Maddur.in"))
	assert.Empty(t, c.OwnedBy(""))
	assert.False(t, c.IsOwnerEmail("nobody@example.com"))
}

func TestLoad_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testDoc))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "restaurants.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Restaurants(), 3)
}

func TestLoad_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restaurants.json")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Restaurants(), 3)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "open catalog")
}
