package recipients

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain list",
			input: "alice@example.com\nbob@example.org\n",
			want:  []string{"alice@example.com", "bob@example.org"},
		},
		{
			name:  "comments ignored",
			input: "# team list\nalice@example.com\n#bob@example.org\ncarol@example.com # on leave\n",
			want:  []string{"alice@example.com"},
		},
		{
			name:  "lines without at sign ignored",
			input: "alice@example.com\nnot-an-address\n\n   \n",
			want:  []string{"alice@example.com"},
		},
		{
			name:  "whitespace trimmed",
			input: "  alice@example.com  \r\n\tbob@example.org\n",
			want:  []string{"alice@example.com", "bob@example.org"},
		},
		{
			name:  "duplicates removed",
			input: "alice@example.com\nbob@example.org\nalice@example.com\n",
			want:  []string{"alice@example.com", "bob@example.org"},
		},
		{
			name:  "no syntax validation beyond at sign",
			input: "@\nweird@@address\n",
			want:  []string{"@", "weird@@address"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("reads addresses", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "list.txt")
		require.NoError(t, os.WriteFile(path, []byte("alice@example.com\n"), 0o644))

		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice@example.com"}, got)
	})

	t.Run("no usable addresses", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(path, []byte("# nobody yet\n"), 0o644))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrNoRecipients)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(dir, "missing.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
