// Package tracker implements the rendezvous point of the network: an
// in-memory file index plus a registry of connected peers, served over
// the JSON wire protocol. A peer stays in the index only while its
// control connection is open; the connection closing is the
// deregistration signal.
package tracker

import (
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/metrics"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// fileEntry is one indexed file: its descriptor and the set of peers
// currently advertising it.
type fileEntry struct {
	desc  domain.FileDescriptor
	peers map[string]struct{}
}

// Index is the tracker's shared state. Two mutexes protect the file
// index and the peer registry; when both are needed, peerMu is
// acquired inside indexMu, never the other way around.
type Index struct {
	indexMu sync.Mutex
	files   map[string]*fileEntry

	peerMu sync.Mutex
	peers  map[string]domain.PeerInfo
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		files: make(map[string]*fileEntry),
		peers: make(map[string]domain.PeerInfo),
	}
}

// Register records a peer's address and the files it announces. The
// peer's IP is the source address of its connection — any IP the peer
// itself might claim is ignored; only the advertised port is trusted.
// Repeated registration is a refresh: existing index entries keep
// their descriptor and gain the peer id at most once.
func (ix *Index) Register(p wire.RegisterPayload, clientIP string) {
	ix.peerMu.Lock()
	ix.peers[p.PeerID] = domain.PeerInfo{ID: p.PeerID, IP: clientIP, Port: p.Port}
	metrics.TrackerPeersRegistered.Set(float64(len(ix.peers)))
	ix.peerMu.Unlock()

	ix.indexMu.Lock()
	defer ix.indexMu.Unlock()
	for _, desc := range p.Files {
		entry, ok := ix.files[desc.Hash]
		if !ok {
			entry = &fileEntry{desc: desc, peers: make(map[string]struct{})}
			ix.files[desc.Hash] = entry
		}
		// The first announced descriptor is authoritative; a peer
		// announcing the same hash with different chunk hashes is still
		// added as a holder.
		entry.peers[p.PeerID] = struct{}{}
	}
	metrics.TrackerFilesIndexed.Set(float64(len(ix.files)))
	log.Printf("[tracker] registered %s at %s:%d (%d files)", p.PeerID, clientIP, p.Port, len(p.Files))
}

// QueryFile answers who holds a file. The peer set is snapshotted
// under the file-index lock, released, then each id is resolved under
// the peer-registry lock; ids without a live registration are dropped.
func (ix *Index) QueryFile(hash string) wire.QueryFileReply {
	ix.indexMu.Lock()
	entry, ok := ix.files[hash]
	if !ok {
		ix.indexMu.Unlock()
		return wire.QueryFileReply{Status: wire.StatusError, Message: "File not found"}
	}
	desc := entry.desc
	ids := make([]string, 0, len(entry.peers))
	for id := range entry.peers {
		ids = append(ids, id)
	}
	ix.indexMu.Unlock()
	sort.Strings(ids)

	ix.peerMu.Lock()
	peers := make([]domain.PeerInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := ix.peers[id]; ok {
			peers = append(peers, info)
		}
	}
	ix.peerMu.Unlock()

	if len(peers) == 0 {
		return wire.QueryFileReply{Status: wire.StatusError, Message: "File found, but no active peers available"}
	}
	return wire.QueryFileReply{
		Status:      wire.StatusSuccess,
		FileName:    desc.Name,
		FileSize:    desc.Size,
		ChunkCount:  desc.ChunkCount,
		ChunkHashes: desc.ChunkHashes,
		Peers:       peers,
	}
}

// Search returns per-file summaries for every indexed file whose name
// contains the query, case-insensitively.
func (ix *Index) Search(query string) []wire.SearchResult {
	q := strings.ToLower(query)

	ix.indexMu.Lock()
	defer ix.indexMu.Unlock()

	var results []wire.SearchResult
	for hash, entry := range ix.files {
		if !strings.Contains(strings.ToLower(entry.desc.Name), q) {
			continue
		}
		results = append(results, wire.SearchResult{
			Hash:    hash,
			Name:    entry.desc.Name,
			Size:    entry.desc.Size,
			Seeders: len(entry.peers),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Deregister removes a peer from the registry and from every file
// entry, pruning entries whose peer set becomes empty.
func (ix *Index) Deregister(peerID string) {
	ix.peerMu.Lock()
	delete(ix.peers, peerID)
	metrics.TrackerPeersRegistered.Set(float64(len(ix.peers)))
	ix.peerMu.Unlock()

	ix.indexMu.Lock()
	defer ix.indexMu.Unlock()
	for hash, entry := range ix.files {
		delete(entry.peers, peerID)
		if len(entry.peers) == 0 {
			delete(ix.files, hash)
			log.Printf("[tracker] pruned %s (no peers)", hash[:min(10, len(hash))])
		}
	}
	metrics.TrackerFilesIndexed.Set(float64(len(ix.files)))
	log.Printf("[tracker] deregistered %s", peerID)
}

// Registered reports whether a peer id currently has a live
// registration.
func (ix *Index) Registered(peerID string) bool {
	ix.peerMu.Lock()
	defer ix.peerMu.Unlock()
	_, ok := ix.peers[peerID]
	return ok
}

// FileCount returns the number of indexed files.
func (ix *Index) FileCount() int {
	ix.indexMu.Lock()
	defer ix.indexMu.Unlock()
	return len(ix.files)
}
