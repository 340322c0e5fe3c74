// Package discovery provides optional mDNS/Bonjour service
// advertisement for the Lantaarn server.
//
// When enabled, the server advertises itself on the local network using
// DNS-SD so lamp and sensor devices can find the device WebSocket
// endpoint without a configured address. Discovery only reveals
// presence; devices still have to complete the identity handshake.
package discovery

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for Lantaarn servers.
// Follows the standard Bonjour naming convention: _<service>._<protocol>
const ServiceType = "_lantaarn._tcp"

// ProtocolVersion identifies the device protocol version for
// compatibility checks during discovery.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the API server port to advertise.
	Port int

	// Name is a human-readable name for this server.
	// Defaults to the system hostname if empty.
	Name string

	// DevicePath is the WebSocket path devices should connect to.
	DevicePath string
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start begins advertising the service via mDNS.
//
// Start is safe to call multiple times; subsequent calls are no-ops
// if already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "lantaarn"
		} else {
			name = hostname
		}
	}

	// TXT records give devices what they need before connecting:
	// protocol version and the device WebSocket path.
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("name=%s", name),
	}
	if a.config.DevicePath != "" {
		txtRecords = append(txtRecords, fmt.Sprintf("path=%s", a.config.DevicePath))
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords,
		nil, // all network interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the mDNS advertisement and unregisters the service.
// Safe to call multiple times or on an advertiser that never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
