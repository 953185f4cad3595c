package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netmon/internal/models"
)

const (
	sweepRateLimit = 50 * time.Microsecond
	sweepIdleWait  = 500 * time.Millisecond
	sweepMaxHosts  = 1024
	sweepSnapLen   = 65536
)

// Sweep probes the interface's IPv4 subnet with ARP requests and
// collects the hosts that reply. Large subnets are capped at
// sweepMaxHosts probes.
func Sweep(ctx context.Context, ifaceName string) ([]models.Device, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", ifaceName, err)
	}

	localIP, localNet, err := ifaceIPv4(iface)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(ifaceName, sweepSnapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("open %s for sweep: %w", ifaceName, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("set arp filter: %w", err)
	}

	var (
		mu    sync.Mutex
		found = make(map[string]models.Device)
		done  = make(chan struct{})
	)

	// Collect replies while probes go out.
	go func() {
		src := gopacket.NewPacketSource(handle, layers.LayerTypeEthernet)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case pkt, ok := <-src.Packets():
				if !ok {
					return
				}
				arpLayer := pkt.Layer(layers.LayerTypeARP)
				if arpLayer == nil {
					continue
				}
				arp := arpLayer.(*layers.ARP)
				if arp.Operation != layers.ARPReply {
					continue
				}
				ip := net.IP(arp.SourceProtAddress)
				if !localNet.Contains(ip) || ip.Equal(localIP) {
					continue
				}
				mac := net.HardwareAddr(arp.SourceHwAddress)
				mu.Lock()
				found[ip.String()] = models.Device{IP: ip.String(), MAC: mac.String(), Interface: ifaceName}
				mu.Unlock()
			}
		}
	}()

	if err := sendProbes(ctx, handle, iface, localIP, localNet); err != nil {
		close(done)
		return nil, err
	}

	// Give stragglers a moment to answer.
	select {
	case <-ctx.Done():
	case <-time.After(sweepIdleWait):
	}
	close(done)

	mu.Lock()
	defer mu.Unlock()
	devices := make([]models.Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].IP < devices[j].IP })
	return devices, nil
}

func ifaceIPv4(iface *net.Interface) (net.IP, *net.IPNet, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, fmt.Errorf("interface addresses: %w", err)
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4, ipnet, nil
			}
		}
	}
	return nil, nil, errors.New("no IPv4 address on interface")
}

func sendProbes(ctx context.Context, handle *pcap.Handle, iface *net.Interface, localIP net.IP, localNet *net.IPNet) error {
	ticker := time.NewTicker(sweepRateLimit)
	defer ticker.Stop()

	network := localIP.Mask(localNet.Mask).To4()
	broadcast := make(net.IP, len(network))
	copy(broadcast, network)
	for i := range broadcast {
		broadcast[i] |= ^localNet.Mask[len(localNet.Mask)-len(broadcast)+i]
	}

	current := make(net.IP, len(network))
	copy(current, network)
	sent := 0
	for ; localNet.Contains(current) && sent < sweepMaxHosts; incIP(current) {
		if current.Equal(network) || current.Equal(broadcast) || current.Equal(localIP) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := sendARPRequest(handle, iface, localIP, current); err != nil {
			continue
		}
		sent++
	}
	return nil
}

func sendARPRequest(handle *pcap.Handle, iface *net.Interface, srcIP, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       iface.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(iface.HardwareAddr),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return handle.WritePacketData(buf.Bytes())
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
