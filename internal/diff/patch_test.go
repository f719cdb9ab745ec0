package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novaupdate/internal/domain"
)

func TestBuildPatchDocument(t *testing.T) {
	old, err := ExtractManifest(buildZip(t, map[string]string{
		"bin/app":  "version one binary",
		"data.txt": "static",
	}), "old.zip")
	require.NoError(t, err)

	new, err := ExtractManifest(buildZip(t, map[string]string{
		"bin/app":   "version two binary",
		"data.txt":  "static",
		"extra.txt": "new payload",
	}), "new.zip")
	require.NoError(t, err)

	doc, err := BuildPatchDocument("1.0.0", "1.1.0", old, new, 8)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", doc.FromVersion)
	assert.Equal(t, "1.1.0", doc.ToVersion)
	assert.Contains(t, doc.FilePatches, "bin/app")
	assert.Equal(t, []byte("new payload"), doc.AddedFiles["extra.txt"])
	assert.NotContains(t, doc.FilePatches, "data.txt")

	// Патч измененного файла восстанавливает новое содержимое
	restored, err := ApplyPatch(old["bin/app"].Data, doc.FilePatches["bin/app"])
	require.NoError(t, err)
	assert.Equal(t, new["bin/app"].Data, restored)
}

func TestPatchDocumentEncodeDecode(t *testing.T) {
	old, err := ExtractManifest([]byte("first release"), "app")
	require.NoError(t, err)
	new, err := ExtractManifest([]byte("second release"), "app")
	require.NoError(t, err)

	doc, err := BuildPatchDocument("1.0.0", "2.0.0", old, new, 4)
	require.NoError(t, err)

	encoded, err := doc.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := DecodePatchDocument(encoded)
	require.NoError(t, err)
	assert.Equal(t, doc.FromVersion, decoded.FromVersion)
	assert.Equal(t, doc.ToVersion, decoded.ToVersion)
	assert.Equal(t, len(doc.Changes), len(decoded.Changes))

	restored, err := ApplyPatch(old["app"].Data, decoded.FilePatches["app"])
	require.NoError(t, err)
	assert.Equal(t, []byte("second release"), restored)
}

func TestPatchDocumentEncodeDeterministic(t *testing.T) {
	old, err := ExtractManifest([]byte("alpha"), "app")
	require.NoError(t, err)
	new, err := ExtractManifest([]byte("bravo"), "app")
	require.NoError(t, err)

	doc, err := BuildPatchDocument("1.0.0", "1.0.1", old, new, 4)
	require.NoError(t, err)

	first, err := doc.Encode()
	require.NoError(t, err)
	second, err := doc.Encode()
	require.NoError(t, err)

	// Повторная генерация той же пары дает байтово идентичный артефакт
	assert.Equal(t, first, second)
}

func TestDecodePatchDocumentRejectsGarbage(t *testing.T) {
	_, err := DecodePatchDocument([]byte("not gzip at all"))
	assert.Error(t, err)
}

func TestChangeCountsOnlyMeaningful(t *testing.T) {
	old, err := ExtractManifest(buildZip(t, map[string]string{"a": "1", "b": "2"}), "old.zip")
	require.NoError(t, err)
	new, err := ExtractManifest(buildZip(t, map[string]string{"a": "1", "b": "2"}), "new.zip")
	require.NoError(t, err)

	doc, err := BuildPatchDocument("1.0.0", "1.0.1", old, new, 4)
	require.NoError(t, err)

	for _, c := range doc.Changes {
		assert.Equal(t, domain.ChangeUnchanged, c.ChangeType)
	}
	assert.Empty(t, doc.FilePatches)
	assert.Empty(t, doc.AddedFiles)
}
