package tracker

import (
	"net"
	"testing"
	"time"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

func descFixture(hash, name string) domain.FileDescriptor {
	return domain.FileDescriptor{
		Name:        name,
		Size:        2048,
		Hash:        hash,
		ChunkCount:  2,
		ChunkHashes: []string{"aa", "bb"},
	}
}

func registerPayload(peerID string, port int, descs ...domain.FileDescriptor) wire.RegisterPayload {
	return wire.RegisterPayload{PeerID: peerID, Port: port, Files: descs}
}

// ─── Index Tests ────────────────────────────────────────────────────────────

func TestIndex_RegisterAndQuery(t *testing.T) {
	ix := NewIndex()
	ix.Register(registerPayload("peer_a", 7001, descFixture("h1", "movie.mkv")), "10.0.0.1")

	reply := ix.QueryFile("h1")
	if !reply.OK() {
		t.Fatalf("QueryFile() = %+v, want success", reply)
	}
	if reply.FileName != "movie.mkv" || reply.ChunkCount != 2 {
		t.Errorf("reply = %+v, descriptor fields wrong", reply)
	}
	if len(reply.Peers) != 1 {
		t.Fatalf("peers = %v, want one", reply.Peers)
	}
	p := reply.Peers[0]
	if p.ID != "peer_a" || p.IP != "10.0.0.1" || p.Port != 7001 {
		t.Errorf("peer = %+v, want peer_a@10.0.0.1:7001", p)
	}
}

func TestIndex_SourceIPAuthority(t *testing.T) {
	// The registry records the connection's source IP regardless of
	// anything the peer could claim; only the port comes from the payload.
	ix := NewIndex()
	ix.Register(registerPayload("peer_a", 9000, descFixture("h1", "f")), "192.168.7.7")

	reply := ix.QueryFile("h1")
	if reply.Peers[0].IP != "192.168.7.7" {
		t.Errorf("IP = %s, want the observed source address", reply.Peers[0].IP)
	}
}

func TestIndex_ReregisterIdempotent(t *testing.T) {
	ix := NewIndex()
	d := descFixture("h1", "f")
	ix.Register(registerPayload("peer_a", 7001, d), "10.0.0.1")
	ix.Register(registerPayload("peer_a", 7001, d), "10.0.0.1")

	reply := ix.QueryFile("h1")
	if len(reply.Peers) != 1 {
		t.Errorf("peers after double register = %v, want exactly one", reply.Peers)
	}
}

func TestIndex_ConflictingDescriptorKeepsExisting(t *testing.T) {
	ix := NewIndex()
	ix.Register(registerPayload("peer_a", 7001, descFixture("h1", "orig")), "10.0.0.1")

	conflicting := descFixture("h1", "spoofed")
	conflicting.ChunkHashes = []string{"xx", "yy"}
	ix.Register(registerPayload("peer_b", 7002, conflicting), "10.0.0.2")

	reply := ix.QueryFile("h1")
	if reply.FileName != "orig" {
		t.Errorf("FileName = %q, existing entry should be authoritative", reply.FileName)
	}
	if reply.ChunkHashes[0] != "aa" {
		t.Errorf("ChunkHashes = %v, existing entry should be authoritative", reply.ChunkHashes)
	}
	if len(reply.Peers) != 2 {
		t.Errorf("peers = %v, the conflicting peer is still added as a holder", reply.Peers)
	}
}

func TestIndex_QueryUnknownFile(t *testing.T) {
	ix := NewIndex()
	reply := ix.QueryFile("missing")
	if reply.OK() || reply.Message != "File not found" {
		t.Errorf("reply = %+v, want File not found", reply)
	}
}

func TestIndex_Deregister(t *testing.T) {
	ix := NewIndex()
	ix.Register(registerPayload("peer_a", 7001, descFixture("h1", "f"), descFixture("h2", "g")), "10.0.0.1")
	ix.Register(registerPayload("peer_b", 7002, descFixture("h1", "f")), "10.0.0.2")

	ix.Deregister("peer_a")

	// h2 had only peer_a: pruned. h1 keeps peer_b.
	if reply := ix.QueryFile("h2"); reply.OK() {
		t.Error("h2 should be pruned once its last peer deregisters")
	}
	reply := ix.QueryFile("h1")
	if !reply.OK() || len(reply.Peers) != 1 || reply.Peers[0].ID != "peer_b" {
		t.Errorf("h1 reply = %+v, want only peer_b", reply)
	}
	if ix.Registered("peer_a") {
		t.Error("peer_a should be gone from the registry")
	}
}

func TestIndex_Search(t *testing.T) {
	ix := NewIndex()
	ix.Register(registerPayload("peer_a", 7001,
		descFixture("h1", "Holiday-Photos.zip"),
		descFixture("h2", "notes.txt")), "10.0.0.1")
	ix.Register(registerPayload("peer_b", 7002, descFixture("h1", "Holiday-Photos.zip")), "10.0.0.2")

	results := ix.Search("holiday")
	if len(results) != 1 {
		t.Fatalf("Search(holiday) = %v, want one result", results)
	}
	if results[0].Hash != "h1" || results[0].Seeders != 2 {
		t.Errorf("result = %+v, want h1 with 2 seeders", results[0])
	}

	if got := ix.Search("zzz"); len(got) != 0 {
		t.Errorf("Search(zzz) = %v, want none", got)
	}
}

// ─── Server Tests ───────────────────────────────────────────────────────────

// dialTracker opens a client connection and returns a send/receive pair.
func dialTracker(t *testing.T, addr string) (net.Conn, *wire.Conn) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial tracker: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, wire.NewConn(conn)
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(NewIndex(), 4096)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	go srv.Serve()
	t.Cleanup(srv.Close)
	return srv, srv.Addr().String()
}

func send(t *testing.T, c *wire.Conn, command string, payload any) {
	t.Helper()
	req, err := wire.NewRequest(command, payload)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	if err := c.Send(req); err != nil {
		t.Fatalf("send %s: %v", command, err)
	}
}

func TestServer_RegisterQueryRoundTrip(t *testing.T) {
	_, addr := startServer(t)

	_, seeder := dialTracker(t, addr)
	send(t, seeder, wire.CmdRegister, wire.RegisterPayload{
		PeerID: "peer_seed",
		Port:   7100,
		Files:  []domain.FileDescriptor{descFixture("h1", "movie.mkv")},
	})
	var regReply wire.Reply
	if err := seeder.Receive(&regReply); err != nil {
		t.Fatalf("receive register reply: %v", err)
	}
	if !regReply.OK() {
		t.Fatalf("register reply = %+v", regReply)
	}

	_, leecher := dialTracker(t, addr)
	send(t, leecher, wire.CmdQueryFile, wire.QueryFilePayload{FileHash: "h1"})
	var qReply wire.QueryFileReply
	if err := leecher.Receive(&qReply); err != nil {
		t.Fatalf("receive query reply: %v", err)
	}
	if !qReply.OK() || len(qReply.Peers) != 1 {
		t.Fatalf("query reply = %+v, want one peer", qReply)
	}
	if qReply.Peers[0].IP != "127.0.0.1" || qReply.Peers[0].Port != 7100 {
		t.Errorf("peer = %+v, want observed loopback IP and advertised port", qReply.Peers[0])
	}
}

func TestServer_DisconnectDeregisters(t *testing.T) {
	srv, addr := startServer(t)

	raw, seeder := dialTracker(t, addr)
	send(t, seeder, wire.CmdRegister, wire.RegisterPayload{
		PeerID: "peer_gone",
		Port:   7100,
		Files:  []domain.FileDescriptor{descFixture("h1", "f")},
	})
	var reply wire.Reply
	if err := seeder.Receive(&reply); err != nil {
		t.Fatalf("receive register reply: %v", err)
	}

	raw.Close()

	// Deregistration runs when the handler notices the close.
	deadline := time.Now().Add(2 * time.Second)
	for srv.idx.Registered("peer_gone") {
		if time.Now().After(deadline) {
			t.Fatal("peer still registered after its connection closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.idx.QueryFile("h1"); got.OK() {
		t.Errorf("QueryFile after disconnect = %+v, want error", got)
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	_, addr := startServer(t)

	_, c := dialTracker(t, addr)
	send(t, c, "dance", struct{}{})
	var reply wire.Reply
	if err := c.Receive(&reply); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if reply.OK() || reply.Message != "Unknown command" {
		t.Errorf("reply = %+v, want Unknown command", reply)
	}
}

func TestServer_Search(t *testing.T) {
	_, addr := startServer(t)

	_, seeder := dialTracker(t, addr)
	send(t, seeder, wire.CmdRegister, wire.RegisterPayload{
		PeerID: "peer_seed",
		Port:   7100,
		Files:  []domain.FileDescriptor{descFixture("h1", "report.pdf")},
	})
	var regReply wire.Reply
	if err := seeder.Receive(&regReply); err != nil {
		t.Fatalf("receive register reply: %v", err)
	}

	send(t, seeder, wire.CmdSearch, wire.SearchPayload{Query: "REPORT"})
	var sReply wire.SearchReply
	if err := seeder.Receive(&sReply); err != nil {
		t.Fatalf("receive search reply: %v", err)
	}
	if len(sReply.Results) != 1 || sReply.Results[0].Name != "report.pdf" {
		t.Errorf("search results = %+v, want report.pdf", sReply.Results)
	}
}
