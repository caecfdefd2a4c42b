package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListEligibleFiles_ExtensionCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "COB001.RET", "retorno")
	b := writeFile(t, dir, "cob002.ret", "retorno")
	writeFile(t, dir, "notas.txt", "nope")
	writeFile(t, dir, "RETENTION", "no extension match")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.RET"), 0o755))

	s := NewScanner(".RET", nil)
	files, err := s.ListEligibleFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, files)
}

func TestListEligibleFiles_CreatesMissingFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "remessas")

	s := NewScanner(".RET", nil)
	files, err := s.ListEligibleFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, files)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListEligibleFiles_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.RET", "x")

	s := NewScanner(".RET", nil)
	_, err := s.ListEligibleFiles(path)
	assert.Error(t, err)
}

func TestListEligibleFiles_UnreadableFolder(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	s := NewScanner(".RET", nil)
	files, err := s.ListEligibleFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFingerprint_ContentAddressed(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.RET", "same bytes")
	b := writeFile(t, dir, "b.RET", "same bytes")
	c := writeFile(t, dir, "c.RET", "different bytes")

	da, err := Fingerprint(a)
	require.NoError(t, err)
	db, err := Fingerprint(b)
	require.NoError(t, err)
	dc, err := Fingerprint(c)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.NotEqual(t, da, dc)
	assert.Len(t, da, 32)
}

func TestFingerprint_MissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "missing.RET"))
	assert.Error(t, err)
}
