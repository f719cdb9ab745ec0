package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Операции патч-инструкций
const (
	OpCopy   = "copy"
	OpInsert = "insert"
)

// Instruction — одна инструкция побайтового патча. Copy ссылается на
// блок исходного файла, Insert несет новые байты.
type Instruction struct {
	Op     string `json:"op"`
	Offset int64  `json:"offset,omitempty"`
	Length int64  `json:"length,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// BuildPatch строит патч, превращающий old в new, сопоставлением блоков:
// старый файл индексируется по контрольным суммам блоков фиксированного
// размера, новый сканируется в поисках совпадающих блоков. Несовпавшие
// байты попадают в инструкции Insert целиком.
func BuildPatch(old, new []byte, blockSize int) ([]Instruction, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	// Индекс блоков старого файла: контрольная сумма -> смещения
	index := make(map[string][]int64)
	for off := 0; off+blockSize <= len(old); off += blockSize {
		sum := checksum(old[off : off+blockSize])
		index[sum] = append(index[sum], int64(off))
	}

	var instructions []Instruction
	var pending []byte

	flush := func() {
		if len(pending) > 0 {
			data := make([]byte, len(pending))
			copy(data, pending)
			instructions = append(instructions, Instruction{Op: OpInsert, Data: data})
			pending = pending[:0]
		}
	}

	pos := 0
	for pos < len(new) {
		if pos+blockSize <= len(new) {
			sum := checksum(new[pos : pos+blockSize])
			if offsets, ok := index[sum]; ok {
				// Совпадение по сумме: сверяем байты, чтобы исключить коллизию
				if off := verifyMatch(old, new[pos:pos+blockSize], offsets); off >= 0 {
					flush()
					instructions = appendCopy(instructions, off, int64(blockSize))
					pos += blockSize
					continue
				}
			}
		}
		pending = append(pending, new[pos])
		pos++
	}
	flush()

	return instructions, nil
}

// appendCopy добавляет Copy, сливая ее с предыдущей при смежных диапазонах
func appendCopy(instructions []Instruction, offset, length int64) []Instruction {
	if n := len(instructions); n > 0 {
		last := &instructions[n-1]
		if last.Op == OpCopy && last.Offset+last.Length == offset {
			last.Length += length
			return instructions
		}
	}
	return append(instructions, Instruction{Op: OpCopy, Offset: offset, Length: length})
}

func verifyMatch(old, block []byte, offsets []int64) int64 {
	for _, off := range offsets {
		end := off + int64(len(block))
		if end <= int64(len(old)) && bytesEqual(old[off:end], block) {
			return off
		}
	}
	return -1
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyPatch применяет патч к старому содержимому.
// Используется при проверке сгенерированной дельты и в тестах.
func ApplyPatch(old []byte, instructions []Instruction) ([]byte, error) {
	var out []byte
	for i, ins := range instructions {
		switch ins.Op {
		case OpCopy:
			if ins.Offset < 0 || ins.Offset+ins.Length > int64(len(old)) {
				return nil, fmt.Errorf("instruction %d: copy range [%d, %d) outside source of %d bytes",
					i, ins.Offset, ins.Offset+ins.Length, len(old))
			}
			out = append(out, old[ins.Offset:ins.Offset+ins.Length]...)
		case OpInsert:
			out = append(out, ins.Data...)
		default:
			return nil, fmt.Errorf("instruction %d: unknown op %q", i, ins.Op)
		}
	}
	return out, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
