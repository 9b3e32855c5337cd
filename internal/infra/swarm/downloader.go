// Package swarm fetches a file from the network chunk by chunk: it
// asks the tracker who holds the file, orders the candidates by local
// reputation, and runs parallel workers that fail over between peers
// per chunk, verifying every chunk before it is stored.
package swarm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/metrics"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/reputation"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/store"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
	"github.com/chunkmesh-network/chunkmesh/internal/integrity"
)

// Tracker is the downloader's view of the tracker connection, owned by
// the supervisor.
type Tracker interface {
	// QueryFile asks who holds a file.
	QueryFile(hash string) (wire.QueryFileReply, error)
	// Announce re-registers the local shared-files list, so a finished
	// download is advertised to the swarm.
	Announce() error
}

// Config tunes one downloader.
type Config struct {
	SelfID       string
	Workers      int
	ChunkSize    int
	ChunkTimeout time.Duration
}

// Downloader runs download jobs against a chunk store and reputation
// store shared with the rest of the peer.
type Downloader struct {
	store   *store.Store
	rep     *reputation.Store
	tracker Tracker
	cfg     Config
}

// New creates a downloader. Zero config fields take defaults:
// 4 workers, 15 s chunk timeout.
func New(st *store.Store, rep *reputation.Store, tr Tracker, cfg Config) *Downloader {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 15 * time.Second
	}
	return &Downloader{store: st, rep: rep, tracker: tr, cfg: cfg}
}

// Run executes one download job to a terminal status. dest, when
// non-empty, is where the finished file is copied; it may be a
// directory or a full path.
func (d *Downloader) Run(job *Job, dest string) {
	metrics.DownloadsActive.Inc()
	defer func() {
		metrics.DownloadsActive.Dec()
		metrics.DownloadsFinished.WithLabelValues(string(job.Status())).Inc()
	}()

	hash := job.Hash()
	log.Printf("[swarm] starting download of %s", shortHash(hash))

	reply, err := d.tracker.QueryFile(hash)
	if err != nil {
		log.Printf("[swarm] tracker query failed: %v", err)
		job.finish(domain.StatusError, "")
		return
	}
	if !reply.OK() {
		log.Printf("[swarm] tracker query refused: %s", reply.Message)
		job.finish(domain.StatusError, "")
		return
	}

	desc := domain.FileDescriptor{
		Name:        reply.FileName,
		Size:        reply.FileSize,
		Hash:        hash,
		ChunkCount:  reply.ChunkCount,
		ChunkHashes: reply.ChunkHashes,
	}
	if err := desc.Validate(); err != nil {
		log.Printf("[swarm] invalid metadata for %s", shortHash(hash))
		job.finish(domain.StatusError, "")
		return
	}

	if err := d.store.AddDownload(desc); err != nil {
		log.Printf("[swarm] register download: %v", err)
		job.finish(domain.StatusError, "")
		return
	}
	// The store's descriptor wins if the hash was already tracked.
	if tracked, ok := d.store.Descriptor(hash); ok {
		desc = tracked
	}
	job.setMeta(desc.Name, desc.Size, desc.ChunkCount)

	// Short-circuits, first match wins.
	if d.store.IsComplete(hash) {
		if src, ok := d.store.SourcePath(hash); ok && fileExists(src) {
			log.Printf("[swarm] %s already seeded from %s", shortHash(hash), src)
			job.setCompleted(desc.ChunkCount)
			d.finalize(job, src, dest)
			return
		}
	}
	completedPath := filepath.Join(d.store.CompletedDir(), desc.Name)
	if fileExists(completedPath) {
		log.Printf("[swarm] %s already reassembled", shortHash(hash))
		job.setCompleted(desc.ChunkCount)
		d.finalize(job, completedPath, dest)
		return
	}
	if d.store.IsComplete(hash) && d.store.HasPhysicalChunks(hash, desc.ChunkCount) {
		job.setCompleted(desc.ChunkCount)
		d.reassembleAndFinalize(job, desc, dest)
		return
	}

	work := d.store.Missing(hash)
	if len(work) == 0 {
		work = make([]int, desc.ChunkCount)
		for i := range work {
			work[i] = i
		}
	}
	job.setCompleted(desc.ChunkCount - len(work))

	peers := d.orderPeers(reply.Peers)
	log.Printf("[swarm] %s: %d chunks to fetch from %d peers", shortHash(hash), len(work), len(peers))

	queue := make(chan int, len(work))
	for _, idx := range work {
		queue <- idx
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range queue {
				if !d.fetchChunk(job, desc, peers, idx) {
					log.Printf("[swarm] worker %d: chunk %d exhausted all peers", workerID, idx)
				}
			}
		}(w)
	}
	wg.Wait()

	if !d.store.IsComplete(hash) {
		log.Printf("[swarm] %s stalled: %d chunks missing", shortHash(hash), len(d.store.Missing(hash)))
		job.finish(domain.StatusStalled, "")
		return
	}
	if !d.store.HasPhysicalChunks(hash, desc.ChunkCount) {
		job.finish(domain.StatusMissingChunks, "")
		return
	}
	d.reassembleAndFinalize(job, desc, dest)
}

// orderPeers drops the local peer and sorts the rest by reputation,
// best first.
func (d *Downloader) orderPeers(candidates []domain.PeerInfo) []domain.PeerInfo {
	byID := make(map[string]domain.PeerInfo, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if p.ID == d.cfg.SelfID {
			continue
		}
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	ordered := make([]domain.PeerInfo, 0, len(ids))
	for _, ps := range d.rep.Order(ids) {
		ordered = append(ordered, byID[ps.PeerID])
	}
	return ordered
}

// fetchChunk tries each peer in turn for one chunk. The peer list is
// rotated by the chunk index so different chunks prefer different
// first-choice peers while keeping reputation order from the rotation
// point onward.
func (d *Downloader) fetchChunk(job *Job, desc domain.FileDescriptor, peers []domain.PeerInfo, idx int) bool {
	if len(peers) == 0 {
		return false
	}

	start := idx % len(peers)
	for n := 0; n < len(peers); n++ {
		peer := peers[(start+n)%len(peers)]

		began := time.Now()
		data, err := d.requestChunk(peer.Addr(), desc.Hash, idx)
		if err != nil {
			if errors.Is(err, domain.ErrChunkRefused) {
				d.rep.Record(peer.ID, reputation.RefusedUpload)
				metrics.ChunksFetched.WithLabelValues("refused").Inc()
			} else {
				d.rep.Record(peer.ID, reputation.ConnectionTimeout)
				metrics.ChunksFetched.WithLabelValues("failed").Inc()
			}
			log.Printf("[swarm] chunk %d from %s: %v", idx, peer.ID, err)
			continue
		}

		if !integrity.Verify(data, desc.ChunkHashes[idx]) {
			d.rep.Record(peer.ID, reputation.CorruptedData)
			metrics.ChunksFetched.WithLabelValues("corrupt").Inc()
			log.Printf("[swarm] chunk %d from %s is corrupt", idx, peer.ID)
			continue
		}

		if err := d.store.StoreChunk(desc.Hash, idx, data); err != nil {
			log.Printf("[swarm] store chunk %d: %v", idx, err)
			return false
		}
		d.rep.Record(peer.ID, reputation.SuccessfulDownload)
		d.rep.Record(peer.ID, reputation.VerifiedIntegrity)
		metrics.ChunksFetched.WithLabelValues("verified").Inc()
		metrics.ChunkFetchLatency.Observe(time.Since(began).Seconds())
		job.markChunkDone()
		return true
	}
	return false
}

// requestChunk performs one request_chunk exchange against a peer's
// chunk server. Transport and protocol failures return wrapped errors;
// a refusal returns ErrChunkRefused.
func (d *Downloader) requestChunk(addr, hash string, idx int) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, d.cfg.ChunkTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(d.cfg.ChunkTimeout))

	req, err := wire.NewRequest(wire.CmdRequestChunk, wire.ChunkRequestPayload{
		FileHash:   hash,
		ChunkIndex: idx,
	})
	if err != nil {
		return nil, err
	}
	if err := wire.WriteMessage(conn, req); err != nil {
		return nil, err
	}

	var hdr wire.ChunkReplyHeader
	trailing, err := wire.ReadChunkHeader(conn, &hdr)
	if err != nil {
		return nil, err
	}
	if hdr.Status != wire.StatusSuccess {
		return nil, fmt.Errorf("%w: %s", domain.ErrChunkRefused, hdr.Message)
	}
	if hdr.ChunkSize <= 0 {
		return nil, fmt.Errorf("success header with no chunk_size")
	}
	if d.cfg.ChunkSize > 0 && hdr.ChunkSize > d.cfg.ChunkSize {
		return nil, fmt.Errorf("declared chunk size %d exceeds limit %d", hdr.ChunkSize, d.cfg.ChunkSize)
	}

	return wire.ReadPayload(conn, trailing, hdr.ChunkSize)
}

// ─── Reassembly ─────────────────────────────────────────────────────────────

// reassembleAndFinalize concatenates the chunk files, checks the
// whole-file digest against the content address, and finalizes.
func (d *Downloader) reassembleAndFinalize(job *Job, desc domain.FileDescriptor, dest string) {
	outPath := filepath.Join(d.store.CompletedDir(), desc.Name)
	if err := d.reassemble(desc, outPath); err != nil {
		log.Printf("[swarm] reassemble %s: %v", shortHash(desc.Hash), err)
		job.finish(domain.StatusReassemblyFailed, "")
		return
	}
	if !integrity.VerifyFile(outPath, desc.Hash) {
		log.Printf("[swarm] reassembled %s fails its digest", shortHash(desc.Hash))
		job.finish(domain.StatusReassemblyFailed, "")
		return
	}
	log.Printf("[swarm] %s reassembled and verified", shortHash(desc.Hash))
	d.finalize(job, outPath, dest)
}

func (d *Downloader) reassemble(desc domain.FileDescriptor, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	for i := 0; i < desc.ChunkCount; i++ {
		chunk, err := os.Open(d.store.ChunkPath(desc.Hash, i))
		if err != nil {
			return fmt.Errorf("missing chunk %d: %w", i, err)
		}
		_, err = io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			return fmt.Errorf("append chunk %d: %w", i, err)
		}
	}
	return out.Sync()
}

// finalize copies the finished file to the caller's destination when
// one was given, re-announces to the tracker, and closes the job.
func (d *Downloader) finalize(job *Job, path, dest string) {
	finalPath := path
	if dest != "" {
		target := dest
		if info, err := os.Stat(dest); err == nil && info.IsDir() {
			target = filepath.Join(dest, filepath.Base(path))
		}
		if err := copyFile(path, target); err != nil {
			log.Printf("[swarm] copy to destination %s: %v", dest, err)
		} else {
			finalPath = target
		}
	}

	if err := d.tracker.Announce(); err != nil {
		log.Printf("[swarm] re-announce after completion: %v", err)
	}
	job.finish(domain.StatusComplete, finalPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
