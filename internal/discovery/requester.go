package discovery

import (
	"context"
	"errors"
	"log"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"
)

var ErrTimeout = errors.New("no discovery server responded")

const (
	defaultRequestTimeout = 5 * time.Second
	defaultRetryInterval  = 3 * time.Second
)

type RequesterOptions struct {
	Port       int
	Timeout    time.Duration
	Interval   time.Duration
	ClientType string
	// Targets overrides the broadcast addresses the request is sent to.
	Targets []string
	Now     func() time.Time
}

type Requester struct {
	opts RequesterOptions
}

func NewRequester(opts RequesterOptions) *Requester {
	if opts.Port == 0 {
		opts.Port = DefaultUDPPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultRetryInterval
	}
	if opts.ClientType == "" {
		opts.ClientType = "client"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Requester{opts: opts}
}

// Discover sends one round of requests and waits for the first usable
// answer, returning ErrTimeout when none arrives in time.
func (q *Requester) Discover(ctx context.Context) (Payload, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return Payload{}, err
	}
	defer conn.Close()

	body, err := encode(TypeDiscovery, q.opts.Now().UnixMilli(), request{ClientInfo: ClientInfo{
		Type:      q.opts.ClientType,
		Version:   Version,
		Platform:  runtime.GOOS,
		RequestID: uuid.NewString(),
	}})
	if err != nil {
		return Payload{}, err
	}

	targets := q.opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets()
	}
	for _, target := range targets {
		ip := net.ParseIP(target)
		if ip == nil {
			continue
		}
		if _, err := conn.WriteToUDP(body, &net.UDPAddr{IP: ip, Port: q.opts.Port}); err != nil {
			log.Printf("discovery request target=%s: %v", target, err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(q.opts.Timeout)); err != nil {
		return Payload{}, err
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Payload{}, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Payload{}, ErrTimeout
			}
			return Payload{}, err
		}
		if payload, ok := parseAnnouncement(buf[:n]); ok {
			return payload, nil
		}
	}
}

// DiscoverLoop retries Discover until a server answers or ctx is done.
func (q *Requester) DiscoverLoop(ctx context.Context) (Payload, error) {
	for {
		payload, err := q.Discover(ctx)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return Payload{}, err
		}
		select {
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		case <-time.After(q.opts.Interval):
		}
	}
}
