package diag

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"netmon/internal/models"
)

const procNetARP = "/proc/net/arp"

// ARPCache reads the kernel ARP table and returns the complete
// (resolved) entries as devices.
func ARPCache() ([]models.Device, error) {
	f, err := os.Open(procNetARP)
	if err != nil {
		return nil, fmt.Errorf("read arp cache: %w", err)
	}
	defer f.Close()
	return parseARPCache(f), nil
}

// parseARPCache parses /proc/net/arp content. Incomplete entries
// (flags 0x0 or an all-zero MAC) are skipped.
func parseARPCache(r io.Reader) []models.Device {
	var devices []models.Device
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		if first {
			first = false // header row
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		ip, flags, mac, iface := fields[0], fields[2], fields[3], fields[5]
		if flags == "0x0" || mac == "00:00:00:00:00:00" {
			continue
		}
		devices = append(devices, models.Device{IP: ip, MAC: mac, Interface: iface})
	}
	return devices
}
