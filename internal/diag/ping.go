// Package diag implements the discovery and diagnostics helpers
// exposed next to the capture API: ping, traceroute, ARP cache and
// ARP sweep device discovery.
package diag

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// PingResult carries the outcome of a system ping invocation.
type PingResult struct {
	IP         string   `json:"ip"`
	OK         bool     `json:"ok"`
	ReturnCode int      `json:"returncode"`
	Lines      []string `json:"lines"`
}

// Ping runs the platform ping binary against ip. count and timeoutMS
// are clamped to sane bounds. The raw output lines are returned for
// display; OK reflects the exit status.
func Ping(ctx context.Context, ip string, count, timeoutMS int) (PingResult, error) {
	if net.ParseIP(ip) == nil {
		return PingResult{}, fmt.Errorf("invalid IP address %q", ip)
	}
	count = clamp(count, 1, 20)
	timeoutMS = clamp(timeoutMS, 200, 5000)

	args := pingArgs(runtime.GOOS, ip, count, timeoutMS)
	rc, lines := runCommand(ctx, args)
	return PingResult{IP: ip, OK: rc == 0, ReturnCode: rc, Lines: lines}, nil
}

// pingArgs builds the platform-specific ping argv. Split out for
// testing.
func pingArgs(goos, ip string, count, timeoutMS int) []string {
	if goos == "windows" {
		return []string{"ping", "-n", strconv.Itoa(count), "-w", strconv.Itoa(timeoutMS), ip}
	}
	// Unix ping takes the per-reply timeout in whole seconds.
	sec := timeoutMS / 1000
	if sec < 1 {
		sec = 1
	}
	return []string{"ping", "-c", strconv.Itoa(count), "-W", strconv.Itoa(sec), ip}
}

func runCommand(ctx context.Context, args []string) (int, []string) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	rc := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			rc = ee.ExitCode()
		} else {
			rc = -1
		}
	}
	return rc, splitLines(string(out))
}

func splitLines(out string) []string {
	var lines []string
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
