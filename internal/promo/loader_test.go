package promo

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestCodeFile creates a gzipped test promo-code file.
func createTestCodeFile(t *testing.T, filename string, codes []string) string {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, code := range codes {
		_, err := gzipWriter.Write([]byte(code + "\n"))
		require.NoError(t, err)
	}

	return filePath
}

func TestFileLoader_Load_Success(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	testCodes := []string{
		"TESTCODE1",
		"TESTCODE2",
		"TESTCODE3",
		"VALIDPROMO",
		"DISCOUNT10",
	}

	filePath := createTestCodeFile(t, "test_codes.gz", testCodes)

	ctx := context.Background()
	set, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, 5, set.Size())

	for _, code := range testCodes {
		assert.True(t, set.Contains(code), "Expected code %s to be present", code)
	}
}

func TestFileLoader_Load_WithEmptyLines(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	testCodes := []string{
		"CODE1",
		"",
		"CODE2",
		"   ",
		"CODE3",
	}

	filePath := createTestCodeFile(t, "codes_with_empty.gz", testCodes)

	ctx := context.Background()
	set, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	assert.Equal(t, 3, set.Size())
	assert.True(t, set.Contains("CODE1"))
	assert.True(t, set.Contains("CODE2"))
	assert.True(t, set.Contains("CODE3"))
	assert.False(t, set.Contains(""))
}

func TestFileLoader_Load_FileNotFound(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	set, err := loader.Load(context.Background(), "/nonexistent/path/codes.gz")

	require.Error(t, err)
	assert.Nil(t, set)
}

func TestFileLoader_Load_NotGzip(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "plain.gz")
	require.NoError(t, os.WriteFile(filePath, []byte("PLAINCODE\n"), 0o644))

	set, err := loader.Load(context.Background(), filePath)

	require.Error(t, err)
	assert.Nil(t, set)
}
