package sqlite_test

import (
	"context"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/sqlite"
	"github.com/stretchr/testify/require"
)

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("creates schema on first open", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB(":memory:")
		err := db.Open()
		require.NoError(t, err)
		defer db.Close()

		// Verify tables exist by querying them
		ctx := context.Background()

		for _, table := range []string{"patterns", "tasks", "records"} {
			var count int
			err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
			require.NoError(t, err, table)
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB("/nonexistent/path/db.sqlite")
		err := db.Open()
		require.Error(t, err)
	})

	t.Run("enables WAL mode for file-based databases", func(t *testing.T) {
		t.Parallel()

		dbPath := t.TempDir() + "/test.db"
		db := sqlite.NewDB(dbPath)
		err := db.Open()
		require.NoError(t, err)
		defer db.Close()

		ctx := context.Background()
		var journalMode string
		err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		require.Equal(t, "wal", journalMode)
	})
}

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })
	return db
}

func productSpec() *autoprobe.NodeSpec {
	css := func(s string) *autoprobe.Selector {
		return &autoprobe.Selector{Type: autoprobe.SelectorCSS, Text: s}
	}
	return &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{
			{
				Name:     "items",
				Type:     autoprobe.NodeList,
				Selector: css("ul.products"),
				Children: []*autoprobe.NodeSpec{
					{
						Name:     "item",
						Type:     autoprobe.NodeListItem,
						Selector: css("li"),
						Children: []*autoprobe.NodeSpec{
							{Name: "title", Type: autoprobe.NodeField, Selector: css(".title"), ExtractionType: autoprobe.ExtractText},
							{Name: "price", Type: autoprobe.NodeField, Selector: css(".price"), ExtractionType: autoprobe.ExtractText},
						},
					},
				},
			},
		},
	}
}

func createPattern(t testing.TB, db *sqlite.DB) *autoprobe.PatternTree {
	t.Helper()
	tree := autoprobe.NewPatternTree("products", productSpec())
	require.NoError(t, sqlite.NewPatternService(db).CreatePattern(context.Background(), tree))
	return tree
}
