package livesync

import (
	"testing"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionHelpers(t *testing.T) {
	base := []models.Category{{ID: "b"}, {ID: "a"}}

	t.Run("UpsertFrontDoesNotAlias", func(t *testing.T) {
		out := upsertFront(base, models.Category{ID: "c"})
		assert.Equal(t, []string{"c", "b", "a"}, categoryIDs(out))
		assert.Equal(t, []string{"b", "a"}, categoryIDs(base))

		out = upsertFront(base, models.Category{ID: "a", Name: "again"})
		assert.Equal(t, []string{"b", "a"}, categoryIDs(out))
		assert.Equal(t, "again", out[1].Name)
		assert.Empty(t, base[1].Name)
	})

	t.Run("Replace", func(t *testing.T) {
		out, ok := replace(base, models.Category{ID: "b", Name: "x"})
		require.True(t, ok)
		assert.Equal(t, "x", out[0].Name)

		out, ok = replace(base, models.Category{ID: "zzz"})
		assert.False(t, ok)
		assert.Equal(t, base, out)
	})

	t.Run("Remove", func(t *testing.T) {
		out, ok := remove(base, "b")
		require.True(t, ok)
		assert.Equal(t, []string{"a"}, categoryIDs(out))
		assert.Len(t, base, 2)

		_, ok = remove([]models.Category{}, "b")
		assert.False(t, ok)
	})

	t.Run("DecodeAppliesDefaults", func(t *testing.T) {
		item, err := decodeRecord[models.CatalogItem]([]byte(`{"id":"i1","title":"Ring"}`))
		require.NoError(t, err)
		assert.True(t, item.AllowBooking)
		assert.False(t, item.Reserved)

		_, err = decodeRecord[models.CatalogItem](nil)
		assert.Error(t, err)

		id, err := decodeID([]byte(`{"id":"x"}`))
		require.NoError(t, err)
		assert.Equal(t, "x", id)

		_, err = decodeID([]byte(`{}`))
		assert.Error(t, err)
	})
}
