package discovery

import (
	"net"
	"net/netip"

	"lan-lobby/internal/telemetry"
)

// BroadcastInterface is one IPv4 interface we can broadcast on.
type BroadcastInterface struct {
	Name      string
	Local     netip.Addr
	Broadcast netip.Addr
	Port      uint16
}

// Target is the datagram destination for this interface.
func (b BroadcastInterface) Target() netip.AddrPort {
	return netip.AddrPortFrom(b.Broadcast, b.Port)
}

// NetInterface is the subset of net.Interface discovery looks at.
type NetInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// InterfaceLister enumerates the host's interfaces.
type InterfaceLister func() ([]NetInterface, error)

// SystemInterfaces lists the real host interfaces. Interfaces whose
// addresses cannot be read are returned without addresses.
func SystemInterfaces() ([]NetInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]NetInterface, 0, len(ifaces))
	for _, it := range ifaces {
		addrs, _ := it.Addrs()
		out = append(out, NetInterface{Name: it.Name, Flags: it.Flags, Addrs: addrs})
	}
	return out, nil
}

const operUp = net.FlagUp | net.FlagRunning

// DiscoverBroadcastInterfaces picks, for every interface that is up and
// running, its first IPv4 address and computes the directed broadcast
// address for it.
// The result is keyed by the local address. It never fails: enumeration
// errors and an empty result are logged and yield an empty map.
func DiscoverBroadcastInterfaces(list InterfaceLister, port int, log telemetry.Logger) map[string]BroadcastInterface {
	if log == nil {
		log = telemetry.Nop()
	}
	if list == nil {
		list = SystemInterfaces
	}

	out := make(map[string]BroadcastInterface)

	ifaces, err := list()
	if err != nil {
		log.Warnw("list network interfaces", "err", err)
		return out
	}

	for _, it := range ifaces {
		// administratively up is not enough; no carrier means no peers
		if it.Flags&operUp != operUp {
			continue
		}

		for _, a := range it.Addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP == nil {
				continue
			}
			bcast, ok := BroadcastAddress(ipnet.IP, ipnet.Mask)
			if !ok {
				continue
			}
			local, _ := netip.AddrFromSlice(ipnet.IP.To4())

			key := local.String()
			if _, dup := out[key]; !dup {
				out[key] = BroadcastInterface{
					Name:      it.Name,
					Local:     local,
					Broadcast: bcast,
					Port:      uint16(port),
				}
				log.Debugw("broadcast interface", "iface", it.Name, "local", local, "broadcast", bcast)
			}
			// first IPv4 address only
			break
		}
	}

	if len(out) == 0 {
		log.Warnw("no broadcast-capable interfaces found")
	}
	return out
}

// BroadcastAddress returns ip | ^mask for an IPv4 address and mask.
func BroadcastAddress(ip net.IP, mask net.IPMask) (netip.Addr, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return netip.Addr{}, false
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return netip.Addr{}, false
	}

	var b [4]byte
	for i := range b {
		b[i] = ip4[i] | ^mask[i]
	}
	return netip.AddrFrom4(b), true
}
