package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"
)

func startResponder(t *testing.T) *Responder {
	t.Helper()
	responder := NewResponder(ResponderOptions{
		UDPPort:     0,
		ServicePort: 3001,
		AdvertiseIP: "127.0.0.1",
		Targets:     []string{"127.0.0.1"},
	})
	if err := responder.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = responder.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return responder
}

func TestDiscoverFindsResponder(t *testing.T) {
	responder := startResponder(t)
	requester := NewRequester(RequesterOptions{
		Port:       responder.Addr().Port,
		Timeout:    2 * time.Second,
		Targets:    []string{"127.0.0.1"},
		ClientType: "display",
	})

	payload, err := requester.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if payload.Server.IP != "127.0.0.1" || payload.Server.Port != 3001 {
		t.Fatalf("unexpected server: %+v", payload.Server)
	}
	if payload.Server.UDPPort != responder.Addr().Port {
		t.Fatalf("expected udp port %d, got %d", responder.Addr().Port, payload.Server.UDPPort)
	}
	if payload.Server.Endpoints.Health != "http://127.0.0.1:3001/health" {
		t.Fatalf("unexpected health endpoint: %s", payload.Server.Endpoints.Health)
	}
	if payload.ServerInfo != ServerInfoText || payload.Version != Version {
		t.Fatalf("unexpected payload header: %+v", payload)
	}
}

func TestDiscoverTimesOutWithoutResponder(t *testing.T) {
	silent, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	requester := NewRequester(RequesterOptions{
		Port:    silent.LocalAddr().(*net.UDPAddr).Port,
		Timeout: 100 * time.Millisecond,
		Targets: []string{"127.0.0.1"},
	})
	if _, err := requester.Discover(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDiscoverLoopStopsOnCancel(t *testing.T) {
	silent, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	requester := NewRequester(RequesterOptions{
		Port:     silent.LocalAddr().(*net.UDPAddr).Port,
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Targets:  []string{"127.0.0.1"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := requester.DiscoverLoop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestResponderIgnoresInvalidMessages(t *testing.T) {
	responder := startResponder(t)
	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer client.Close()

	target := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: responder.Addr().Port}
	for _, body := range []string{"not json", `{"type":"hello"}`} {
		if _, err := client.WriteToUDP([]byte(body), target); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := client.WriteToUDP([]byte(`{"type":"discovery","timestamp":1}`), target); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(buf[:n], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeDiscovery || msg.Timestamp == 0 {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	_ = client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := client.ReadFromUDP(buf); err == nil {
		t.Fatalf("expected exactly one reply")
	}
}

func TestAnnounceReachesTargets(t *testing.T) {
	responder := startResponder(t)
	if err := responder.Announce(context.Background()); err != nil {
		t.Fatalf("announce: %v", err)
	}
}

func TestBroadcastAddress(t *testing.T) {
	tests := []struct {
		ip   string
		mask net.IPMask
		want string
	}{
		{ip: "192.168.1.23", mask: net.CIDRMask(24, 32), want: "192.168.1.255"},
		{ip: "10.1.2.3", mask: net.CIDRMask(8, 32), want: "10.255.255.255"},
		{ip: "172.20.5.9", mask: net.CIDRMask(20, 32), want: "172.20.15.255"},
	}
	for _, tt := range tests {
		got := BroadcastAddress(net.ParseIP(tt.ip), tt.mask)
		if got.String() != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.ip, tt.want, got)
		}
	}
}

func TestBroadcastTargets(t *testing.T) {
	tests := []struct {
		name string
		ip   net.IP
		mask net.IPMask
		want []string
	}{
		{
			name: "class C dedupes computed address",
			ip:   net.ParseIP("192.168.1.40"),
			mask: net.CIDRMask(24, 32),
			want: []string{"255.255.255.255", "192.168.1.255", "192.168.0.255", "192.168.255.255"},
		},
		{
			name: "class A",
			ip:   net.ParseIP("10.0.0.5"),
			mask: net.CIDRMask(16, 32),
			want: []string{"255.255.255.255", "10.0.255.255", "10.255.255.255", "10.10.255.255"},
		},
		{
			name: "class B",
			ip:   net.ParseIP("172.16.4.4"),
			mask: net.CIDRMask(24, 32),
			want: []string{"255.255.255.255", "172.16.4.255", "172.31.255.255", "172.16.255.255", "172.20.255.255"},
		},
		{
			name: "fallback",
			want: []string{"255.255.255.255", "192.168.1.255", "192.168.0.255", "10.255.255.255", "172.31.255.255"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BroadcastTargets(tt.ip, tt.mask)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsPrivate(t *testing.T) {
	tests := map[string]bool{
		"10.0.0.1":    true,
		"172.16.0.1":  true,
		"172.31.9.9":  true,
		"172.32.0.1":  false,
		"192.168.0.1": true,
		"8.8.8.8":     false,
		"127.0.0.1":   false,
	}
	for ip, want := range tests {
		if got := IsPrivate(net.ParseIP(ip)); got != want {
			t.Fatalf("%s: expected %v, got %v", ip, want, got)
		}
	}
}
