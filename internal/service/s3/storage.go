// storage.go
package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Object определяет интерфейс для объектов хранилища
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object реализует интерфейс Object
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с хранилищем артефактов.
// Движок обновлений видит хранилище как непрозрачный байтовый стор по ключу.
type Storage interface {
	UploadBytes(key string, data []byte) error
	GetObject(ctx context.Context, key string) (Object, error)
	GetObjectRange(ctx context.Context, key string, start, end int64) (Object, error)
	DeleteObject(key string) error
}

// Checksum вычисляет SHA-256 дайджест содержимого.
// Та же функция используется при публикации версии и при генерации дельты,
// поэтому контрольная сумма в каталоге всегда совпадает с суммой байтов артефакта.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader вычисляет SHA-256 дайджест потока
func ChecksumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
