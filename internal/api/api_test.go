package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/health"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/reputation"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// stubPeer records control calls and serves canned observations.
type stubPeer struct {
	files      []domain.FileDescriptor
	active     map[string]domain.JobState
	history    []domain.JobState
	results    []wire.SearchResult
	entries    []reputation.Entry
	shared     []string
	downloads  [][2]string
	shareErr   error
	downloadEr error
}

func (p *stubPeer) ID() string   { return "peer_stub" }
func (p *stubPeer) Port() int    { return 7777 }
func (p *stubPeer) MyFiles() []domain.FileDescriptor { return p.files }
func (p *stubPeer) Downloads() (map[string]domain.JobState, []domain.JobState) {
	return p.active, p.history
}
func (p *stubPeer) Search(q string) ([]wire.SearchResult, error) { return p.results, nil }
func (p *stubPeer) Reputations() []reputation.Entry              { return p.entries }
func (p *stubPeer) Share(path string) (domain.FileDescriptor, error) {
	p.shared = append(p.shared, path)
	return domain.FileDescriptor{Name: filepath.Base(path), Hash: "cafe"}, p.shareErr
}
func (p *stubPeer) Download(hash, dest string) error {
	p.downloads = append(p.downloads, [2]string{hash, dest})
	return p.downloadEr
}
func (p *stubPeer) Health() []health.Status {
	return []health.Status{{Name: "storage_dir", Healthy: true}}
}

func newTestServer(t *testing.T, peer *stubPeer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(peer).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubPeer{})

	var body struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	resp := getJSON(t, srv.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		t.Errorf("health = %d %+v", resp.StatusCode, body)
	}
	if len(body.Checks) != 1 {
		t.Errorf("checks = %+v, want the stub's one check", body.Checks)
	}
}

func TestMyFiles(t *testing.T) {
	peer := &stubPeer{files: []domain.FileDescriptor{{Name: "a.bin", Hash: "aa", ChunkCount: 1, ChunkHashes: []string{"x"}}}}
	srv := newTestServer(t, peer)

	var files []domain.FileDescriptor
	getJSON(t, srv.URL+"/api/my_files", &files)
	if len(files) != 1 || files[0].Name != "a.bin" {
		t.Errorf("my_files = %+v", files)
	}
}

func TestDownloads(t *testing.T) {
	peer := &stubPeer{
		active:  map[string]domain.JobState{"h1": {Hash: "h1", Status: domain.StatusDownloading, Progress: 50}},
		history: []domain.JobState{{Hash: "h0", Status: domain.StatusComplete, Progress: 100}},
	}
	srv := newTestServer(t, peer)

	var body struct {
		Active  map[string]domain.JobState `json:"active"`
		History []domain.JobState          `json:"history"`
	}
	getJSON(t, srv.URL+"/api/downloads", &body)
	if body.Active["h1"].Progress != 50 {
		t.Errorf("active = %+v", body.Active)
	}
	if len(body.History) != 1 || body.History[0].Status != domain.StatusComplete {
		t.Errorf("history = %+v", body.History)
	}
}

func TestSearch(t *testing.T) {
	peer := &stubPeer{results: []wire.SearchResult{{Hash: "h1", Name: "movie.mkv", Seeders: 2}}}
	srv := newTestServer(t, peer)

	var results []wire.SearchResult
	getJSON(t, srv.URL+"/api/search?q=movie", &results)
	if len(results) != 1 || results[0].Seeders != 2 {
		t.Errorf("search = %+v", results)
	}

	// An empty query short-circuits to an empty list.
	getJSON(t, srv.URL+"/api/search", &results)
	if len(results) != 0 {
		t.Errorf("empty query = %+v, want []", results)
	}
}

func TestReputations(t *testing.T) {
	peer := &stubPeer{entries: []reputation.Entry{{PeerID: "peer_a", Score: 8.6, Interactions: 1}}}
	srv := newTestServer(t, peer)

	var entries []reputation.Entry
	getJSON(t, srv.URL+"/api/reputations", &entries)
	if len(entries) != 1 || entries[0].Score != 8.6 {
		t.Errorf("reputations = %+v", entries)
	}
}

func TestShare(t *testing.T) {
	peer := &stubPeer{}
	srv := newTestServer(t, peer)

	path := filepath.Join(t.TempDir(), "upload.bin")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	body := `{"path":` + quoteJSON(path) + `}`
	resp, err := http.Post(srv.URL+"/api/share", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST share: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share status = %d", resp.StatusCode)
	}
	if len(peer.shared) != 1 || peer.shared[0] != path {
		t.Errorf("shared = %v, want %s", peer.shared, path)
	}
}

func TestShare_BadPath(t *testing.T) {
	srv := newTestServer(t, &stubPeer{})

	resp, err := http.Post(srv.URL+"/api/share", "application/json",
		strings.NewReader(`{"path":"/no/such/file"}`))
	if err != nil {
		t.Fatalf("POST share: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("share with bad path = %d, want 400", resp.StatusCode)
	}
}

func TestDownload(t *testing.T) {
	peer := &stubPeer{}
	srv := newTestServer(t, peer)

	resp, err := http.Post(srv.URL+"/api/download", "application/json",
		strings.NewReader(`{"hash":"cafe","destination_path":"/tmp/out"}`))
	if err != nil {
		t.Fatalf("POST download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if len(peer.downloads) != 1 || peer.downloads[0] != [2]string{"cafe", "/tmp/out"} {
		t.Errorf("downloads = %v", peer.downloads)
	}
}

func TestDownload_MissingHash(t *testing.T) {
	srv := newTestServer(t, &stubPeer{})

	resp, err := http.Post(srv.URL+"/api/download", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("download without hash = %d, want 400", resp.StatusCode)
	}
}

// quoteJSON quotes a string for embedding in a JSON body (paths may
// contain backslashes on some platforms).
func quoteJSON(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}
