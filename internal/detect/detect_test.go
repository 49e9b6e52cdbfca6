package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestAdmitRejectsBlockedExtension(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "notes.txt", make([]byte, MinSize))
	ok, reason := Admit(p)
	require.False(t, ok)
	require.Contains(t, reason, "blocked extension")
}

func TestAdmitRejectsUndersizedFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "app.bin", []byte("tiny"))
	ok, _ := Admit(p)
	require.False(t, ok)
}

func TestAdmitAcceptsExtensionlessFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "app", make([]byte, MinSize))
	ok, _ := Admit(p)
	require.True(t, ok)
}

func TestAdmitAcceptsELFMagic(t *testing.T) {
	dir := t.TempDir()
	content := append([]byte{0x7F, 'E', 'L', 'F'}, make([]byte, MinSize)...)
	p := writeFile(t, dir, "app.bin", content)
	ok, _ := Admit(p)
	require.True(t, ok)
}

func TestAdmitAcceptsMachOMagic(t *testing.T) {
	dir := t.TempDir()
	content := append([]byte{0xCF, 0xFA, 0xED, 0xFE}, make([]byte, MinSize)...)
	p := writeFile(t, dir, "app.dylib", content)
	ok, _ := Admit(p)
	require.True(t, ok)
}

func TestAdmitRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	ok, reason := Admit(dir)
	require.False(t, ok)
	require.Contains(t, reason, "directory")
}

func TestAdmitRejectsMissingFile(t *testing.T) {
	ok, _ := Admit(filepath.Join(t.TempDir(), "nope.bin"))
	require.False(t, ok)
}
