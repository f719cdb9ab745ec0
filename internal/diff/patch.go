package diff

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"novaupdate/internal/domain"
)

// patchFormatVersion увеличивается при несовместимых изменениях формата
const patchFormatVersion = 1

// PatchDocument — полный дельта-артефакт: классификация файлов пакета и
// упорядоченные патч-инструкции для измененных файлов. Сериализуется в
// JSON и сжимается gzip перед выгрузкой в хранилище.
type PatchDocument struct {
	FormatVersion int                      `json:"format_version"`
	FromVersion   string                   `json:"from_version"`
	ToVersion     string                   `json:"to_version"`
	Changes       []domain.FileChange      `json:"changes"`
	FilePatches   map[string][]Instruction `json:"file_patches,omitempty"`
	AddedFiles    map[string][]byte        `json:"added_files,omitempty"`
}

// BuildPatchDocument строит дельта-документ для пары манифестов
func BuildPatchDocument(fromVersion, toVersion string, old, new Manifest, blockSize int) (*PatchDocument, error) {
	doc := &PatchDocument{
		FormatVersion: patchFormatVersion,
		FromVersion:   fromVersion,
		ToVersion:     toVersion,
		Changes:       DiffManifests(old, new),
		FilePatches:   make(map[string][]Instruction),
		AddedFiles:    make(map[string][]byte),
	}

	for _, change := range doc.Changes {
		switch change.ChangeType {
		case domain.ChangeModified:
			instructions, err := BuildPatch(old[change.Path].Data, new[change.Path].Data, blockSize)
			if err != nil {
				return nil, fmt.Errorf("failed to build patch for %s: %w", change.Path, err)
			}
			doc.FilePatches[change.Path] = instructions
		case domain.ChangeAdded:
			doc.AddedFiles[change.Path] = new[change.Path].Data
		}
	}

	return doc, nil
}

// Encode сериализует документ в сжатый байтовый артефакт
func (d *PatchDocument) Encode() ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(d); err != nil {
		gz.Close()
		return nil, fmt.Errorf("failed to encode patch document: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress patch document: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePatchDocument разбирает сжатый дельта-артефакт
func DecodePatchDocument(data []byte) (*PatchDocument, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed patch: %w", err)
	}
	defer gz.Close()

	var doc PatchDocument
	if err := json.NewDecoder(gz).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode patch document: %w", err)
	}
	if doc.FormatVersion != patchFormatVersion {
		return nil, fmt.Errorf("unsupported patch format version %d", doc.FormatVersion)
	}
	return &doc, nil
}
