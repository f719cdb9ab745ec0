package diff

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novaupdate/internal/domain"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractManifestFromArchive(t *testing.T) {
	data := buildZip(t, map[string]string{
		"bin/app":         "binary payload",
		"config/app.yaml": "port: 8080",
	})

	m, err := ExtractManifest(data, "pkg.zip")
	require.NoError(t, err)
	require.Len(t, m, 2)

	entry, ok := m["bin/app"]
	require.True(t, ok)
	assert.Equal(t, int64(len("binary payload")), entry.Size)
	assert.Equal(t, []byte("binary payload"), entry.Data)
	assert.NotEmpty(t, entry.Checksum)
}

func TestExtractManifestNonArchive(t *testing.T) {
	data := []byte("plain installer bytes")

	m, err := ExtractManifest(data, "installer.bin")
	require.NoError(t, err)
	require.Len(t, m, 1)

	entry, ok := m["installer.bin"]
	require.True(t, ok)
	assert.Equal(t, data, entry.Data)
}

func TestDiffManifestsClassification(t *testing.T) {
	old, err := ExtractManifest(buildZip(t, map[string]string{
		"kept.txt":    "same",
		"changed.txt": "before",
		"gone.txt":    "obsolete",
	}), "old.zip")
	require.NoError(t, err)

	new, err := ExtractManifest(buildZip(t, map[string]string{
		"kept.txt":    "same",
		"changed.txt": "after",
		"fresh.txt":   "brand new",
	}), "new.zip")
	require.NoError(t, err)

	changes := DiffManifests(old, new)
	require.Len(t, changes, 4)

	byPath := make(map[string]domain.FileChange, len(changes))
	for _, c := range changes {
		byPath[c.Path] = c
	}

	assert.Equal(t, domain.ChangeUnchanged, byPath["kept.txt"].ChangeType)
	assert.Equal(t, domain.ChangeModified, byPath["changed.txt"].ChangeType)
	assert.Equal(t, domain.ChangeAdded, byPath["fresh.txt"].ChangeType)
	assert.Equal(t, domain.ChangeRemoved, byPath["gone.txt"].ChangeType)

	// Результат отсортирован по пути
	for i := 1; i < len(changes); i++ {
		assert.Less(t, changes[i-1].Path, changes[i].Path)
	}
}

func TestDiffManifestsChecksumsFilled(t *testing.T) {
	old, err := ExtractManifest([]byte("v1"), "app")
	require.NoError(t, err)
	new, err := ExtractManifest([]byte("v2"), "app")
	require.NoError(t, err)

	changes := DiffManifests(old, new)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeModified, changes[0].ChangeType)
	assert.NotEmpty(t, changes[0].OldChecksum)
	assert.NotEmpty(t, changes[0].NewChecksum)
	assert.NotEqual(t, changes[0].OldChecksum, changes[0].NewChecksum)
}
