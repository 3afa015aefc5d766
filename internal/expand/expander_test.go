package expand

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "flexbackup-manager/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	for _, d := range []string{"A/alice", "A/bob", "A/lost+found", "B", "C/carol"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "A", "README"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "D"), []byte("x"), 0644))
	return root
}

func TestExpander_Expand(t *testing.T) {
	root := setupRoot(t)
	exp := NewExpander(root, map[string]bool{"A": true, "B": false, "C": false, "D": false, "E": true}, nil)

	tests := []struct {
		name     string
		set      string
		want     []string
		wantType apperrors.ErrorType
	}{
		{
			name: "expanded set lists subdirectories",
			set:  "A",
			want: []string{filepath.Join(root, "A", "alice"), filepath.Join(root, "A", "bob")},
		},
		{
			name: "unexpanded set is the directory itself",
			set:  "C",
			want: []string{filepath.Join(root, "C")},
		},
		{
			name: "unexpanded leaf directory",
			set:  "B",
			want: []string{filepath.Join(root, "B")},
		},
		{
			name:     "unknown set",
			set:      "Z",
			wantType: apperrors.ErrorTypeConfiguration,
		},
		{
			name:     "missing directory",
			set:      "E",
			wantType: apperrors.ErrorTypeFilesystem,
		},
		{
			name:     "regular file",
			set:      "D",
			wantType: apperrors.ErrorTypeFilesystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exp.Expand(tt.set)
			if tt.wantType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantType, apperrors.GetErrorType(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpander_EmptyExpandedSet(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "B"), 0755))

	got, err := NewExpander(root, map[string]bool{"B": true}, nil).Expand("B")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpander_CustomIgnoreList(t *testing.T) {
	root := setupRoot(t)
	exp := NewExpander(root, map[string]bool{"A": true}, []string{"bob"})

	got, err := exp.Expand("A")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "A", "alice"), filepath.Join(root, "A", "lost+found")}, got)
}
