// Package domain holds the core types of the chunkmesh network:
// file descriptors, peer identities, and download job state.
// Domain types are pure — no infrastructure dependency.
package domain

import "fmt"

// FileDescriptor names a file in the network. It is immutable once
// created: the hash is the identity, the name is display-only.
type FileDescriptor struct {
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	Hash        string   `json:"hash"`
	ChunkCount  int      `json:"chunk_count"`
	ChunkHashes []string `json:"chunk_hashes"`
}

// Validate checks the descriptor's internal consistency: the chunk hash
// list must be present and match the declared chunk count.
func (d *FileDescriptor) Validate() error {
	if d.Hash == "" {
		return ErrInvalidMetadata
	}
	if d.ChunkCount <= 0 || len(d.ChunkHashes) != d.ChunkCount {
		return ErrInvalidMetadata
	}
	return nil
}

// ChunkCountFor returns ⌈size / chunkSize⌉.
func ChunkCountFor(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// ChunkSpan returns the byte offset and length of chunk i within a file
// of the given size. Every chunk has length chunkSize except possibly
// the last.
func ChunkSpan(i int, size int64, chunkSize int) (offset int64, length int) {
	offset = int64(i) * int64(chunkSize)
	length = chunkSize
	if remain := size - offset; remain < int64(chunkSize) {
		length = int(remain)
	}
	return offset, length
}

// HumanSize formats a byte count for display.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
