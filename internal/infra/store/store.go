// Package store manages a peer's local view of files: which chunks it
// owns, where a shared file's bytes live, and how to serve chunk bytes
// on demand.
//
// A single mutex guards the in-memory maps and the metadata file. Chunk
// file I/O happens outside the lock: filenames are unique per
// (hash, index) and writes are idempotent, so concurrent workers never
// collide on disk.
package store

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
)

// Store tracks file descriptors, the chunk presence bitmap, and seed
// source pointers for one peer.
type Store struct {
	mu sync.Mutex

	baseDir      string
	downloadsDir string
	completedDir string
	metaPath     string

	files   map[string]domain.FileDescriptor // hash → descriptor
	chunks  map[string]map[int]struct{}      // hash → owned chunk indices
	sources map[string]string                // hash → absolute path of original file
}

// metaRecord is the on-disk shape of the metadata file.
type metaRecord struct {
	FileMetadata  map[string]domain.FileDescriptor `json:"file_metadata"`
	ChunkTracker  map[string][]int                 `json:"chunk_tracker"`
	FileLocations map[string]string                `json:"file_locations"`
}

// Open creates or reopens the storage rooted at baseDir
// (conventionally peer_storage_<id>). The downloads and completed
// directories are created; existing metadata is loaded, and an
// unparseable metadata file is replaced with a fresh empty record.
func Open(baseDir string) (*Store, error) {
	s := &Store{
		baseDir:      baseDir,
		downloadsDir: filepath.Join(baseDir, "downloads"),
		completedDir: filepath.Join(baseDir, "completed"),
		metaPath:     filepath.Join(baseDir, "storage_meta.json"),
		files:        make(map[string]domain.FileDescriptor),
		chunks:       make(map[string]map[int]struct{}),
		sources:      make(map[string]string),
	}

	for _, dir := range []string{s.downloadsDir, s.completedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	s.load()
	return s, nil
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[store] read metadata: %v — starting fresh", err)
		}
		return
	}

	var rec metaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Printf("[store] corrupt metadata file: %v — starting fresh", err)
		return
	}

	for h, d := range rec.FileMetadata {
		s.files[h] = d
	}
	for h, indices := range rec.ChunkTracker {
		set := make(map[int]struct{}, len(indices))
		for _, i := range indices {
			set[i] = struct{}{}
		}
		s.chunks[h] = set
	}
	for h, p := range rec.FileLocations {
		s.sources[h] = p
	}
}

// saveLocked serializes the full metadata record via write-to-temp and
// rename. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	rec := metaRecord{
		FileMetadata:  s.files,
		ChunkTracker:  make(map[string][]int, len(s.chunks)),
		FileLocations: s.sources,
	}
	for h, set := range s.chunks {
		indices := make([]int, 0, len(set))
		for i := range set {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		rec.ChunkTracker[h] = indices
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp := s.metaPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, s.metaPath); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// ─── Directories ────────────────────────────────────────────────────────────

// BaseDir returns the storage root.
func (s *Store) BaseDir() string { return s.baseDir }

// DownloadsDir returns the directory holding individual chunk files.
func (s *Store) DownloadsDir() string { return s.downloadsDir }

// CompletedDir returns the directory holding reassembled files.
func (s *Store) CompletedDir() string { return s.completedDir }

// ChunkPath returns the on-disk path of a downloaded chunk file.
func (s *Store) ChunkPath(hash string, index int) string {
	return filepath.Join(s.downloadsDir, fmt.Sprintf("%s.%d", hash, index))
}

// ─── Sharing ────────────────────────────────────────────────────────────────

// AddShare streams the file once, computing its whole-file digest and
// per-chunk digests, and registers it as fully owned. The file is not
// copied: a seed source pointer records where chunk bytes are read
// from on demand.
func (s *Store) AddShare(path string, chunkSize int) (domain.FileDescriptor, error) {
	if chunkSize <= 0 {
		return domain.FileDescriptor{}, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	desc, err := describeFile(abs, chunkSize)
	if err != nil {
		return domain.FileDescriptor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Identical re-shares collapse onto the existing entry.
	s.files[desc.Hash] = desc
	s.sources[desc.Hash] = abs
	full := make(map[int]struct{}, desc.ChunkCount)
	for i := 0; i < desc.ChunkCount; i++ {
		full[i] = struct{}{}
	}
	s.chunks[desc.Hash] = full

	if err := s.saveLocked(); err != nil {
		return domain.FileDescriptor{}, err
	}

	log.Printf("[store] sharing %q (%s, %d chunks) from %s",
		desc.Name, desc.Hash[:10], desc.ChunkCount, abs)
	return desc, nil
}

// describeFile builds a descriptor in a single pass: every block feeds
// the whole-file hash and produces one chunk hash.
func describeFile(path string, chunkSize int) (domain.FileDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("stat %s: %w", path, err)
	}

	desc := domain.FileDescriptor{
		Name: filepath.Base(path),
		Size: info.Size(),
	}

	fileHash := sha256.New()
	r := bufio.NewReaderSize(f, 32*1024)
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := buf[:n]
			fileHash.Write(block)
			sum := sha256.Sum256(block)
			desc.ChunkHashes = append(desc.ChunkHashes, hex.EncodeToString(sum[:]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return domain.FileDescriptor{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	desc.Hash = hex.EncodeToString(fileHash.Sum(nil))
	desc.ChunkCount = len(desc.ChunkHashes)
	return desc, nil
}

// ─── Downloading ────────────────────────────────────────────────────────────

// AddDownload registers a file we intend to download, with an empty
// chunk bitmap. If the hash is already tracked — including as a share —
// the existing entry wins and nothing changes.
func (s *Store) AddDownload(desc domain.FileDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[desc.Hash]; ok {
		return nil
	}
	s.files[desc.Hash] = desc
	s.chunks[desc.Hash] = make(map[int]struct{})
	return s.saveLocked()
}

// StoreChunk writes the chunk file and then marks the index owned. The
// bitmap is only updated after the write succeeds, so a failed write
// leaves the presence set untouched.
func (s *Store) StoreChunk(hash string, index int, data []byte) error {
	s.mu.Lock()
	_, tracked := s.files[hash]
	s.mu.Unlock()
	if !tracked {
		return domain.ErrFileNotTracked
	}

	if err := os.WriteFile(s.ChunkPath(hash, index), data, 0644); err != nil {
		return fmt.Errorf("write chunk %s.%d: %w", hash[:10], index, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[hash][index] = struct{}{}
	return s.saveLocked()
}

// ─── Reading ────────────────────────────────────────────────────────────────

// ReadChunk returns the bytes of one owned chunk, or nil if the index
// is not in the presence bitmap. For shared files the bytes come from
// the original file at the chunk's offset; for downloaded files from
// the chunk file on disk.
func (s *Store) ReadChunk(hash string, index, chunkSize int) ([]byte, error) {
	s.mu.Lock()
	if !s.hasChunkLocked(hash, index) {
		s.mu.Unlock()
		return nil, nil
	}
	source := s.sources[hash]
	s.mu.Unlock()

	if source != "" {
		return readChunkAt(source, index, chunkSize)
	}

	data, err := os.ReadFile(s.ChunkPath(hash, index))
	if err != nil {
		return nil, fmt.Errorf("read chunk %s.%d: %w", hash[:10], index, err)
	}
	return data, nil
}

// readChunkAt reads one chunk's span from a whole file. The final
// chunk may be short.
func readChunkAt(path string, index, chunkSize int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	n, err := f.ReadAt(buf, int64(index)*int64(chunkSize))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read source %s: %w", path, err)
	}
	return buf[:n], nil
}

func (s *Store) hasChunkLocked(hash string, index int) bool {
	set, ok := s.chunks[hash]
	if !ok {
		return false
	}
	_, ok = set[index]
	return ok
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Descriptor returns the tracked descriptor for a hash.
func (s *Store) Descriptor(hash string) (domain.FileDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.files[hash]
	return d, ok
}

// SourcePath returns the seed source pointer for a hash, if any.
func (s *Store) SourcePath(hash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sources[hash]
	return p, ok
}

// SharedFiles returns every tracked descriptor, sorted by name for
// stable listings.
func (s *Store) SharedFiles() []domain.FileDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.FileDescriptor, 0, len(s.files))
	for _, d := range s.files {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Missing returns the chunk indices not yet owned for a file, in
// ascending order. An untracked hash yields nothing.
func (s *Store) Missing(hash string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.files[hash]
	if !ok {
		return nil
	}
	owned := s.chunks[hash]
	var missing []int
	for i := 0; i < desc.ChunkCount; i++ {
		if _, ok := owned[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// IsComplete reports whether every chunk of a tracked file is owned.
func (s *Store) IsComplete(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.files[hash]
	if !ok {
		return false
	}
	return len(s.chunks[hash]) == desc.ChunkCount
}

// HasPhysicalChunks reports whether the first and last chunk files of a
// downloaded file exist on disk — the heuristic used before
// reassembly.
func (s *Store) HasPhysicalChunks(hash string, chunkCount int) bool {
	if chunkCount <= 0 {
		return false
	}
	first := s.ChunkPath(hash, 0)
	last := s.ChunkPath(hash, chunkCount-1)
	if _, err := os.Stat(first); err != nil {
		return false
	}
	_, err := os.Stat(last)
	return err == nil
}
