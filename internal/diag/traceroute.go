package diag

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
)

const tracerouteMaxHops = 15

// TraceResult carries the output of a traceroute invocation.
type TraceResult struct {
	IP    string   `json:"ip"`
	OK    bool     `json:"ok"`
	Lines []string `json:"lines"`
}

// Traceroute runs the platform traceroute binary against ip with a
// bounded hop count.
func Traceroute(ctx context.Context, ip string) (TraceResult, error) {
	if net.ParseIP(ip) == nil {
		return TraceResult{}, fmt.Errorf("invalid IP address %q", ip)
	}
	rc, lines := runCommand(ctx, tracerouteArgs(runtime.GOOS, ip))
	return TraceResult{IP: ip, OK: rc == 0, Lines: lines}, nil
}

func tracerouteArgs(goos, ip string) []string {
	hops := strconv.Itoa(tracerouteMaxHops)
	if goos == "windows" {
		return []string{"tracert", "-d", "-h", hops, ip}
	}
	return []string{"traceroute", "-n", "-m", hops, ip}
}
