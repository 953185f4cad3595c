package models

import "encoding/json"

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InterfaceInfo describes a network interface available for capture.
type InterfaceInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Addresses   []string `json:"addresses"`
}

// Device is an entry in the auxiliary device lists produced by the
// diagnostics helpers (ARP cache, sweep).
type Device struct {
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	Interface string `json:"iface,omitempty"`
}
