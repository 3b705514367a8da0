package mount

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Resolve(t *testing.T) {
	root, err := New(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain file", input: "report.txt", want: "report.txt"},
		{name: "nested file", input: "docs/a.txt", want: "docs/a.txt"},
		{name: "dot segments stay inside", input: "docs/../b.txt", want: "b.txt"},
		{name: "parent escape", input: "../etc/passwd", wantErr: ErrPathEscapesRoot},
		{name: "nested parent escape", input: "docs/../../x", wantErr: ErrPathEscapesRoot},
		{name: "absolute path", input: "/etc/passwd", wantErr: ErrPathEscapesRoot},
		{name: "empty name", input: "", wantErr: ErrInvalidName},
		{name: "root itself", input: ".", wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := root.Resolve(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root.Dir(), filepath.FromSlash(tt.want)), got)

			name, err := root.Name(got)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}
