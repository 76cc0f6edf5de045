// Package udpchan implements the per-peer UDP datagram demultiplexer
// (spec.md §4.7): one inbound/outbound cipher pair per (remote_addr,
// remote_port), replaceable through Peer.SetCipher.
package udpchan

import (
	"fmt"
	"net"
	"sync"

	"github.com/wraithcore/ac5gate/internal/cipher"
)

// peerKey identifies one UDP peer by address and port, the demux key
// spec.md §4.7 names explicitly.
type peerKey struct {
	addr string
	port int
}

func keyFor(addr *net.UDPAddr) peerKey {
	return peerKey{addr: addr.IP.String(), port: addr.Port}
}

// Peer holds one remote's cipher pair. The Channel's lock guards only the
// peer map; the pair itself is not guarded by any lock, and ReadFrom and
// SendTo read it without synchronization.
type Peer struct {
	Addr *net.UDPAddr
	pair cipher.Pair
}

// SetCipher replaces this peer's cipher pair with a plain field write; it
// is not atomic with respect to concurrent ReadFrom or SendTo calls.
func (p *Peer) SetCipher(pair cipher.Pair) {
	p.pair = pair
}

// Channel wraps a net.PacketConn (typically *net.UDPConn) and demuxes
// inbound datagrams to per-peer Peer records, applying each peer's
// installed cipher on receive and send.
type Channel struct {
	conn net.PacketConn

	mu    sync.Mutex
	peers map[peerKey]*Peer
}

// New wraps conn for per-peer demuxing. New peers start with a no-op
// cipher pair; callers install the real one (e.g. once FSDP session setup
// negotiates a key) via Peer.SetCipher.
func New(conn net.PacketConn) *Channel {
	return &Channel{conn: conn, peers: make(map[peerKey]*Peer)}
}

// PeerFor returns the Peer record for addr, creating one with a no-op
// cipher pair on first sight.
func (c *Channel) PeerFor(addr *net.UDPAddr) *Peer {
	key := keyFor(addr)
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[key]
	if !ok {
		p = &Peer{Addr: addr, pair: cipher.NoopPair()}
		c.peers[key] = p
	}
	return p
}

// Forget drops a peer's record, e.g. once its FSDP session reaches
// Closed.
func (c *Channel) Forget(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, keyFor(addr))
}

// ReadFrom reads one datagram, decrypts it under the sending peer's
// installed cipher, and returns the plaintext payload alongside the Peer
// record and its address.
func (c *Channel) ReadFrom(buf []byte) (plaintext []byte, peer *Peer, addr *net.UDPAddr, err error) {
	n, rawAddr, err := c.conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("udpchan: reading datagram: %w", err)
	}
	udpAddr, ok := rawAddr.(*net.UDPAddr)
	if !ok {
		return nil, nil, nil, fmt.Errorf("udpchan: unexpected address type %T", rawAddr)
	}

	peer = c.PeerFor(udpAddr)
	plaintext, err = peer.pair.Decrypt.Decrypt(buf[:n])
	if err != nil {
		return nil, peer, udpAddr, fmt.Errorf("udpchan: decrypting datagram from %s: %w", udpAddr, err)
	}
	return plaintext, peer, udpAddr, nil
}

// SendTo encrypts payload under peer's installed cipher and writes it to
// peer's address.
func (c *Channel) SendTo(peer *Peer, payload []byte) error {
	ciphertext, err := peer.pair.Encrypt.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("udpchan: encrypting datagram to %s: %w", peer.Addr, err)
	}
	if _, err := c.conn.WriteTo(ciphertext, peer.Addr); err != nil {
		return fmt.Errorf("udpchan: writing datagram to %s: %w", peer.Addr, err)
	}
	return nil
}
