package domain

import (
	"fmt"
	"net"
	"strconv"
)

// PeerInfo is a peer as seen through the tracker: its stable identity
// plus the address where its chunk server listens. The IP is the source
// address the tracker observed, never one the peer claimed.
type PeerInfo struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Addr returns the peer's chunk server address in host:port form.
func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

func (p PeerInfo) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Addr())
}
