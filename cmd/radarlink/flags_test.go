package main

import (
	"testing"

	"github.com/banshee-data/radarlink/internal/config"
)

// TestFlagDefaults verifies the transport flags exist with the expected
// defaults: no transport preselected, baud rate deferred to the config.
func TestFlagDefaults(t *testing.T) {
	if serialPort == nil || *serialPort != "" {
		t.Errorf("expected serial default to be empty, got %v", serialPort)
	}
	if tcpAddr == nil || *tcpAddr != "" {
		t.Errorf("expected tcp default to be empty, got %v", tcpAddr)
	}
	if baudRate == nil || *baudRate != 0 {
		t.Errorf("expected baud default to be 0, got %v", baudRate)
	}
	if frameCount == nil || *frameCount != 0 {
		t.Errorf("expected n default to be 0, got %v", frameCount)
	}
}

func TestOpenTransportRequiresSelection(t *testing.T) {
	_, err := openTransport(config.Empty())
	if err == nil {
		t.Fatal("openTransport succeeded with no transport selected")
	}
}
