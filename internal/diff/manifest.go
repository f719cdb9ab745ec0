package diff

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"

	"novaupdate/internal/domain"
)

// FileEntry — один файл внутри пакета версии
type FileEntry struct {
	Path     string
	Checksum string
	Size     int64
	Data     []byte
}

// Manifest — содержимое пакета версии, проиндексированное по пути
type Manifest map[string]FileEntry

// ExtractManifest разбирает пакет версии. Пакеты распространяются как
// zip-архивы; если артефакт не является архивом, он рассматривается как
// единственный файл пакета под именем fallbackName.
func ExtractManifest(data []byte, fallbackName string) (Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Не архив — пакет из одного файла
		m := Manifest{
			fallbackName: {
				Path:     fallbackName,
				Checksum: checksum(data),
				Size:     int64(len(data)),
				Data:     data,
			},
		}
		return m, nil
	}

	m := make(Manifest, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		m[f.Name] = FileEntry{
			Path:     f.Name,
			Checksum: checksum(content),
			Size:     int64(len(content)),
			Data:     content,
		}
	}
	return m, nil
}

// DiffManifests классифицирует каждый файл новой версии относительно старой:
// added, removed, modified или unchanged. Результат отсортирован по пути,
// чтобы дельта была детерминированной.
func DiffManifests(old, new Manifest) []domain.FileChange {
	changes := make([]domain.FileChange, 0, len(new)+len(old))

	for path, ne := range new {
		oe, existed := old[path]
		switch {
		case !existed:
			changes = append(changes, domain.FileChange{
				Path:        path,
				ChangeType:  domain.ChangeAdded,
				NewChecksum: ne.Checksum,
				SizeBytes:   ne.Size,
			})
		case oe.Checksum != ne.Checksum:
			changes = append(changes, domain.FileChange{
				Path:        path,
				ChangeType:  domain.ChangeModified,
				OldChecksum: oe.Checksum,
				NewChecksum: ne.Checksum,
				SizeBytes:   ne.Size,
			})
		default:
			changes = append(changes, domain.FileChange{
				Path:        path,
				ChangeType:  domain.ChangeUnchanged,
				OldChecksum: oe.Checksum,
				NewChecksum: ne.Checksum,
				SizeBytes:   ne.Size,
			})
		}
	}

	for path, oe := range old {
		if _, kept := new[path]; !kept {
			changes = append(changes, domain.FileChange{
				Path:        path,
				ChangeType:  domain.ChangeRemoved,
				OldChecksum: oe.Checksum,
				SizeBytes:   oe.Size,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
