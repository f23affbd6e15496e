package debuglink

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

func TestParseLink(t *testing.T) {
	name := "main.debug"
	data := append([]byte(name), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	data = append(data, 0xef, 0xbe, 0xad, 0xde) // LE 0xdeadbeef

	link, err := ParseLink(data, bytesview.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, "main.debug", link.Name)
	assert.Equal(t, uint32(0xdeadbeef), link.CRC)
}

// TestResolveScenarioS2 is spec.md §8 S2: main file /t/main carries a
// .gnu_debuglink -> "main.debug" with CRC 0xDEADBEEF. Search path
// ":.debug:/usr/lib/debug". /t/main.debug has a mismatching CRC;
// /t/.debug/main.debug matches. Expect the .debug subdirectory hit.
func TestResolveScenarioS2(t *testing.T) {
	root := t.TempDir()
	mainPath := filepath.Join(root, "main")
	require.NoError(t, os.WriteFile(mainPath, []byte("main binary"), 0o644))

	wrongCRCContent := []byte("wrong debug contents")
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.debug"), wrongCRCContent, 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".debug"), 0o755))
	rightContent := []byte("the correct debug contents")
	right := filepath.Join(root, ".debug", "main.debug")
	require.NoError(t, os.WriteFile(right, rightContent, 0o644))

	link := Link{Name: "main.debug", CRC: crc32.ChecksumIEEE(rightContent)}

	got, err := Resolve(mainPath, link, link.Name, true, ":.debug:/usr/lib/debug")
	require.NoError(t, err)
	assert.Equal(t, right, got)
}

func TestResolveNotFound(t *testing.T) {
	root := t.TempDir()
	mainPath := filepath.Join(root, "main")
	require.NoError(t, os.WriteFile(mainPath, []byte("main"), 0o644))

	_, err := Resolve(mainPath, Link{Name: "missing.debug", CRC: 0}, "missing.debug", true, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDisabledCRCCheck(t *testing.T) {
	root := t.TempDir()
	mainPath := filepath.Join(root, "main")
	require.NoError(t, os.WriteFile(mainPath, []byte("main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.debug"), []byte("anything"), 0o644))

	got, err := Resolve(mainPath, Link{Name: "main.debug", CRC: 0x12345678}, "main.debug", false, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "main.debug"), got)
}

func TestCRC32FileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 64<<10)
	for i := range content {
		content[i] = byte(i)
	}
	path := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := CRC32File(f)
	require.NoError(t, err)
	want, _ := CRC32Bytes(content)
	assert.Equal(t, want, got)
}

func TestBuildIDPath(t *testing.T) {
	id := []byte{0xab, 0xcd, 0xef, 0x01, 0x23}
	p, err := BuildIDPath("/usr/lib/debug", id, ".debug")
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/debug/.build-id/ab/cdef0123.debug", p)
}

func TestSynthesizeName(t *testing.T) {
	assert.Equal(t, "main.debug", SynthesizeName("/t/main"))
}
