package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRasterImage(t *testing.T) {
	assert.True(t, IsRasterImage("a.JPG"))
	assert.True(t, IsRasterImage("b.jpeg"))
	assert.True(t, IsRasterImage("c.png"))
	assert.False(t, IsRasterImage("d.gif"))
	assert.False(t, IsRasterImage("notes.txt"))
	assert.False(t, IsRasterImage("noext"))
}

func TestListRasterImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"img10.jpg", "img2.jpg", "IMG1.png", ".hidden.jpg", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755))

	names, err := ListRasterImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"IMG1.png", "img2.jpg", "img10.jpg"}, names)

	_, err = ListRasterImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
