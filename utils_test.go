package main

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauipipe/visionresizer/sizer"
)

func Test_GetImageSize(t *testing.T) {
	config := new(Configuration)
	config.Placeholders = []Placeholder{{Name: "test", Size: sizer.Size{Width: 100, Height: 102}}}

	size, err := GetImageSize("1000,23", config)
	require.NoError(t, err)
	assert.Equal(t, sizer.Size{Width: 1000, Height: 23}, size)

	_, err = GetImageSize("web", config)
	assert.Error(t, err, "missing placeholder should not parse")

	size, err = GetImageSize("test", config)
	require.NoError(t, err)
	assert.Equal(t, sizer.Size{Width: 100, Height: 102}, size)
}

func Test_GetExtension(t *testing.T) {
	tests := map[string]string{
		"http://cdn.example.com/image/a.png":        "png",
		"http://cdn.example.com/image/a.PNG?x=1":    "png",
		"http://cdn.example.com/image/a.gif":        "gif",
		"http://cdn.example.com/image/a.jpg":        "jpeg",
		"http://cdn.example.com/image/no-extension": "jpeg",
		"http://cdn.example.com/image.v2/a":         "jpeg",
	}

	for url, want := range tests {
		assert.Equal(t, want, GetExtension(url), url)
	}
}

func Test_FormatError(t *testing.T) {
	rec := httptest.NewRecorder()
	FormatError(rec, errors.New(`bad "size"`), 400)

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error": "bad \"size\""}`, rec.Body.String())
}

func Test_DirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0o644))

	size, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)

	size, err = DirSize(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, size)
}
