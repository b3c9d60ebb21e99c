// Package network resolves the Art-Net broadcast address from the host's
// interfaces.
package network

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// GlobalBroadcast is used when no interface qualifies.
const GlobalBroadcast = "255.255.255.255"

// AutoBroadcast asks ResolveBroadcast to pick an interface.
const AutoBroadcast = "auto"

// Interface kinds, in order of preference.
const (
	KindEthernet = "ethernet"
	KindWiFi     = "wifi"
	KindOther    = "other"
)

var kindRank = map[string]int{KindEthernet: 0, KindWiFi: 1, KindOther: 2}

// Candidate is an IPv4 network a lighting controller can broadcast on.
type Candidate struct {
	Interface string
	Address   string
	Broadcast string
	Kind      string
}

// Kind guesses the interface type from its name.
func Kind(ifaceName string) string {
	name := strings.ToLower(ifaceName)
	switch {
	case strings.HasPrefix(name, "wlan"), strings.HasPrefix(name, "wl"),
		strings.Contains(name, "wifi"), strings.Contains(name, "wireless"):
		return KindWiFi
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return KindEthernet
	default:
		return KindOther
	}
}

// broadcastOf computes the broadcast address of an IPv4 network.
func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || mask == nil {
		return nil
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	broadcast := make(net.IP, net.IPv4len)
	for i := range broadcast {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}

// candidatesOf lists the broadcast-capable IPv4 networks of one interface.
func candidatesOf(name string, addrs []net.Addr) []Candidate {
	var out []Candidate
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		broadcast := broadcastOf(ip4, ipNet.Mask)
		// Point-to-point links have no broadcast.
		if broadcast == nil || broadcast.Equal(ip4) {
			continue
		}
		out = append(out, Candidate{
			Interface: name,
			Address:   ip4.String(),
			Broadcast: broadcast.String(),
			Kind:      Kind(name),
		})
	}
	return out
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return kindRank[cands[i].Kind] < kindRank[cands[j].Kind]
	})
}

// Candidates returns the up, non-loopback IPv4 networks of this host,
// ethernet first, then wifi, then anything else.
func Candidates() ([]Candidate, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var cands []Candidate
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		cands = append(cands, candidatesOf(iface.Name, addrs)...)
	}
	sortCandidates(cands)
	return cands, nil
}

// ResolveBroadcast turns an ARTNET_BROADCAST setting into an address.
// The setting is an IPv4 address, an interface name, or "auto" (also the
// empty string) for the preferred interface, falling back to the global
// broadcast.
func ResolveBroadcast(setting string) (string, error) {
	return resolve(setting, Candidates)
}

func resolve(setting string, list func() ([]Candidate, error)) (string, error) {
	if ip := net.ParseIP(setting); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("Art-Net needs an IPv4 broadcast address, got %s", setting)
		}
		return setting, nil
	}

	cands, err := list()
	if err != nil {
		return "", err
	}
	if setting == "" || setting == AutoBroadcast {
		if len(cands) == 0 {
			return GlobalBroadcast, nil
		}
		return cands[0].Broadcast, nil
	}
	for _, c := range cands {
		if c.Interface == setting {
			return c.Broadcast, nil
		}
	}
	return "", fmt.Errorf("no IPv4 broadcast network on interface %q", setting)
}
