// ABOUTME: mDNS discovery of mesh coordinators on the local network
// ABOUTME: Coordinators advertise address and port, clients browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/wavemesh/wavemesh-go/internal/transport"
)

const serviceType = "_wavemesh._udp"

// Config holds discovery configuration.
type Config struct {
	// ServiceName is the instance name to advertise.
	ServiceName string
	// Port is the transport's UDP port.
	Port int
	// Addr is the coordinator's mesh address, carried in the TXT record so
	// clients can seed the transport before any datagram arrives.
	Addr transport.Addr
}

// CoordinatorInfo describes a discovered coordinator.
type CoordinatorInfo struct {
	Name string
	Host string
	Port int
	Addr transport.Addr
}

// Endpoint formats the coordinator's UDP endpoint.
func (c CoordinatorInfo) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Manager handles both sides of coordinator discovery.
type Manager struct {
	config       Config
	ctx          context.Context
	cancel       context.CancelFunc
	coordinators chan CoordinatorInfo
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		coordinators: make(chan CoordinatorInfo, 10),
	}
}

// Advertise publishes this coordinator via mDNS.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{fmt.Sprintf("mac=%s", m.config.Addr)},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising %s as %s on port %d", m.config.Addr, m.config.ServiceName, m.config.Port)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse starts searching for coordinators in the background.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				info, err := entryToInfo(entry)
				if err != nil {
					log.Printf("Ignoring mDNS entry %s: %v", entry.Name, err)
					continue
				}

				log.Printf("Discovered coordinator %s (%s) at %s", info.Name, info.Addr, info.Endpoint())

				select {
				case m.coordinators <- info:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// entryToInfo extracts coordinator details; the mesh address rides in the
// mac= TXT field.
func entryToInfo(entry *mdns.ServiceEntry) (CoordinatorInfo, error) {
	if entry.AddrV4 == nil {
		return CoordinatorInfo{}, fmt.Errorf("no IPv4 address")
	}

	var addr transport.Addr
	found := false
	for _, field := range entry.InfoFields {
		if mac, ok := strings.CutPrefix(field, "mac="); ok {
			parsed, err := transport.ParseAddr(mac)
			if err != nil {
				return CoordinatorInfo{}, fmt.Errorf("bad mac field %q: %w", mac, err)
			}
			addr = parsed
			found = true
			break
		}
	}
	if !found {
		return CoordinatorInfo{}, fmt.Errorf("no mac field in TXT record")
	}

	return CoordinatorInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Addr: addr,
	}, nil
}

// Coordinators returns the channel of discovered coordinators.
func (m *Manager) Coordinators() <-chan CoordinatorInfo {
	return m.coordinators
}

// Stop stops advertisement and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns the machine's non-loopback IPv4 addresses.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
