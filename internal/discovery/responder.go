package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"sync"
	"time"
)

type ResponderOptions struct {
	UDPPort     int
	ServicePort int
	AdvertiseIP string
	// Targets overrides the computed broadcast addresses.
	Targets []string
	Now     func() time.Time
}

// Responder answers discovery requests on the well-known UDP port and
// periodically announces the server to the local segment.
type Responder struct {
	opts ResponderOptions

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewResponder(opts ResponderOptions) *Responder {
	if opts.ServicePort == 0 {
		opts.ServicePort = DefaultServicePort
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Responder{opts: opts}
}

func (r *Responder) Listen() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: r.opts.UDPPort})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	log.Printf("discovery listening addr=%s", conn.LocalAddr())
	return nil
}

func (r *Responder) Addr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

func (r *Responder) udpPort() int {
	if addr := r.Addr(); addr != nil {
		return addr.Port
	}
	return r.opts.UDPPort
}

func (r *Responder) advertiseIP() string {
	if r.opts.AdvertiseIP != "" {
		return r.opts.AdvertiseIP
	}
	if ip, _, ok := LocalNetwork(); ok {
		return ip.String()
	}
	return "127.0.0.1"
}

func (r *Responder) Payload() Payload {
	return Payload{
		ServerInfo: ServerInfoText,
		Version:    Version,
		Server:     NewServer(r.advertiseIP(), r.opts.ServicePort, r.udpPort()),
	}
}

// Serve reads requests until ctx is cancelled or the socket is closed.
func (r *Responder) Serve(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("discovery responder not listening")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("discovery read: %v", err)
			continue
		}
		r.handle(conn, buf[:n], addr)
	}
}

func (r *Responder) handle(conn *net.UDPConn, body []byte, addr *net.UDPAddr) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return
	}
	if msg.Type != TypeDiscovery {
		return
	}
	reply, err := encode(TypeDiscovery, r.opts.Now().UnixMilli(), r.Payload())
	if err != nil {
		log.Printf("discovery encode reply: %v", err)
		return
	}
	if _, err := conn.WriteToUDP(reply, addr); err != nil {
		log.Printf("discovery reply to %s: %v", addr, err)
	}
}

// Announce sends a server_broadcast to every broadcast target.
func (r *Responder) Announce(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("discovery responder not listening")
	}
	body, err := encode(TypeServerBroadcast, r.opts.Now().UnixMilli(), r.Payload())
	if err != nil {
		return err
	}
	targets := r.opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets()
	}
	sent := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		ip := net.ParseIP(target)
		if ip == nil {
			continue
		}
		if _, err := conn.WriteToUDP(body, &net.UDPAddr{IP: ip, Port: r.udpPort()}); err != nil {
			log.Printf("discovery announce target=%s: %v", target, err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return errors.New("discovery announce reached no targets")
	}
	return nil
}

func (r *Responder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
