package migration

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	sql := `-- header
CREATE INDEX a ON t (x);

-- second
CREATE INDEX b ON t (y);
`
	assert.Equal(t, []string{"CREATE INDEX a ON t (x)", "CREATE INDEX b ON t (y)"}, statements(sql))
}

func TestStatements_DollarQuoted(t *testing.T) {
	sql := "-- guard\nDO $$\nBEGIN\n  PERFORM 1;\nEND\n$$;\n"
	got := statements(sql)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "PERFORM 1;")
	assert.NotContains(t, got[0], "guard")
}

func TestEmbedded_Ordered(t *testing.T) {
	names, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_history_indexes.sql", names[0])

	for _, name := range names {
		content, err := fs.ReadFile(Embedded(), name)
		require.NoError(t, err)
		assert.NotEmpty(t, statements(string(content)), name)
	}
}
