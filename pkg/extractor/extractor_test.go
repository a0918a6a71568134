package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRegistry_Extract(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		want    string
		wantErr error
	}{
		{
			name: "plain text is trimmed",
			path: func(t *testing.T) string { return writeFile(t, "notes.txt", "  hello plain text world \n") },
			want: "hello plain text world",
		},
		{
			name: "extension is case insensitive",
			path: func(t *testing.T) string { return writeFile(t, "NOTES.TXT", "upper case extension") },
			want: "upper case extension",
		},
		{
			name:    "unsupported extension",
			path:    func(t *testing.T) string { return writeFile(t, "image.png", "binary") },
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.txt") },
			wantErr: ErrNotFound,
		},
		{
			name:    "too little text",
			path:    func(t *testing.T) string { return writeFile(t, "tiny.txt", "hello") },
			wantErr: ErrExtraction,
		},
		{
			name:    "corrupt pdf",
			path:    func(t *testing.T) string { return writeFile(t, "broken.pdf", "not really a pdf file") },
			wantErr: ErrExtraction,
		},
		{
			name:    "corrupt docx",
			path:    func(t *testing.T) string { return writeFile(t, "broken.docx", "not a zip archive at all") },
			wantErr: ErrExtraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Extract(ctx, tt.path(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Markdown(t *testing.T) {
	md := "# Title\n\nFirst paragraph with *emphasis* and `code`.\n\n- item one\n- item two\n\n```\nfmt.Println(1)\n```\n"
	got, err := NewRegistry().Extract(context.Background(), writeFile(t, "doc.md", md))
	require.NoError(t, err)

	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "First paragraph with emphasis and code.")
	assert.Contains(t, got, "item one")
	assert.Contains(t, got, "fmt.Println(1)")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "```")
	assert.NotContains(t, got, "\n\n\n")
}

func TestRegistry_AllowedExtensions(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"docx", "md", "pdf", "txt", "xlsx"}, reg.AllowedExtensions())
	assert.True(t, reg.Supported("PDF"))
	assert.True(t, reg.Supported(".md"))
	assert.False(t, reg.Supported("exe"))
}

func TestRegistry_CustomFormat(t *testing.T) {
	reg := NewRegistry()
	reg.Register("csv", func(_ context.Context, path string) (string, error) {
		return "custom csv extraction output", nil
	})

	got, err := reg.Extract(context.Background(), writeFile(t, "data.csv", "a,b"))
	require.NoError(t, err)
	assert.Equal(t, "custom csv extraction output", got)
}

func TestStripXMLTags(t *testing.T) {
	raw := `<w:body><w:p><w:r><w:t>Tom &amp; Jerry</w:t></w:r></w:p><w:p><w:r><w:t>Second</w:t><w:tab/><w:t>cell</w:t></w:r></w:p></w:body>`
	assert.Equal(t, "Tom & Jerry\n\nSecond\tcell\n\n", stripXMLTags(raw))
}
