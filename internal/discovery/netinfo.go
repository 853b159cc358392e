package discovery

import (
	"net"
)

const limitedBroadcast = "255.255.255.255"

var fallbackTargets = []string{
	limitedBroadcast,
	"192.168.1.255",
	"192.168.0.255",
	"10.255.255.255",
	"172.31.255.255",
}

var (
	classA = mustCIDR("10.0.0.0/8")
	classB = mustCIDR("172.16.0.0/12")
	classC = mustCIDR("192.168.0.0/16")
)

func mustCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	return network
}

// IsPrivate reports whether ip is an IPv4 address in 10/8, 172.16/12 or
// 192.168/16.
func IsPrivate(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return classA.Contains(v4) || classB.Contains(v4) || classC.Contains(v4)
}

// LocalNetwork returns the first private IPv4 address on an interface that
// is up and not loopback.
func LocalNetwork() (net.IP, net.IPMask, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, false
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil || !IsPrivate(v4) {
				continue
			}
			mask := ipNet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			return v4, mask, true
		}
	}
	return nil, nil, false
}

func BroadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	v4 := ip.To4()
	if v4 == nil || len(mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range v4 {
		out[i] = v4[i] | ^mask[i]
	}
	return out
}

// BroadcastTargets lists the addresses an announcement is sent to. A nil ip
// yields the fallback list.
func BroadcastTargets(ip net.IP, mask net.IPMask) []string {
	v4 := ip.To4()
	if v4 == nil {
		return append([]string(nil), fallbackTargets...)
	}
	targets := []string{limitedBroadcast}
	if broadcast := BroadcastAddress(v4, mask); broadcast != nil {
		targets = append(targets, broadcast.String())
	}
	switch {
	case classA.Contains(v4):
		targets = append(targets, "10.255.255.255", "10.0.255.255", "10.10.255.255")
	case classB.Contains(v4):
		targets = append(targets, "172.31.255.255", "172.16.255.255", "172.20.255.255")
	default:
		targets = append(targets, "192.168.1.255", "192.168.0.255", "192.168.255.255")
	}
	return dedupe(targets)
}

func DefaultTargets() []string {
	ip, mask, ok := LocalNetwork()
	if !ok {
		return BroadcastTargets(nil, nil)
	}
	return BroadcastTargets(ip, mask)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
