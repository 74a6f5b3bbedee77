// ABOUTME: Entry point for the coordinator role
// ABOUTME: Parses CLI flags, wires transports, runs the relay and status TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wavemesh/wavemesh-go/internal/discovery"
	"github.com/wavemesh/wavemesh-go/internal/mesh"
	"github.com/wavemesh/wavemesh-go/internal/phonelink"
	"github.com/wavemesh/wavemesh-go/internal/relay"
	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/ui"
	"github.com/wavemesh/wavemesh-go/internal/version"
)

var (
	name      = flag.String("name", "", "Coordinator name (default: hostname-wavemesh)")
	port      = flag.Int("port", 8931, "Phone link WebSocket port")
	meshBind  = flag.String("mesh-bind", ":0", "UDP bind address for the mesh transport")
	mac       = flag.String("mac", "", "Fixed mesh hardware address (default: random)")
	chunkSize = flag.Int("chunk-size", 200, "Phone notification chunk size in bytes")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logFile   = flag.String("log-file", "wavemesh-coordinator.log", "Log file path")
	noTUI     = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: the screen belongs to bubbletea, log only to file.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("%s coordinator %s starting", version.Product, version.Version)

	coordName := *name
	if coordName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		coordName = fmt.Sprintf("%s-wavemesh", hostname)
	}

	addr := transport.RandomAddr()
	if *mac != "" {
		addr, err = transport.ParseAddr(*mac)
		if err != nil {
			log.Fatalf("bad -mac: %v", err)
		}
	}

	meshT, err := transport.ListenUDP(addr, *meshBind)
	if err != nil {
		log.Fatalf("mesh transport: %v", err)
	}
	defer meshT.Close()
	log.Printf("Mesh transport: %s on UDP port %d", addr, meshT.Port())

	phone := phonelink.NewServer(phonelink.ServerConfig{
		Port:      *port,
		Name:      coordName,
		ChunkSize: *chunkSize,
	})
	if err := phone.Start(); err != nil {
		log.Fatalf("phone link: %v", err)
	}
	defer phone.Close()

	if !*noMDNS {
		disc := discovery.NewManager(discovery.Config{
			ServiceName: coordName,
			Port:        meshT.Port(),
			Addr:        addr,
		})
		if err := disc.Advertise(); err != nil {
			log.Printf("mDNS advertisement failed: %v", err)
		}
		defer disc.Stop()
	}

	co := relay.NewCoordinator(relay.CoordinatorConfig{
		DeviceName: coordName,
		Mesh:       meshT,
		Phone:      phone,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := co.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("coordinator stopped: %v", err)
		}
	}()

	var tuiProg *tea.Program
	if useTUI {
		tuiProg = ui.Run(coordName, addr.String(), *port)
		go statusUpdateLoop(ctx, tuiProg, co, phone)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if tuiProg != nil {
		done := make(chan struct{})
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			close(done)
		}()
		select {
		case <-done:
			log.Printf("TUI quit")
		case <-sigChan:
			tuiProg.Quit()
			<-done
		}
	} else {
		<-sigChan
	}

	log.Printf("Coordinator stopped")
}

// statusUpdateLoop pushes relay state into the TUI twice a second.
func statusUpdateLoop(ctx context.Context, prog *tea.Program, co *relay.Coordinator, phone *phonelink.Server) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := phone.Connected()
			stats := co.Stats().Snapshot()
			prog.Send(ui.StatusMsg{
				PhoneConnected: &connected,
				Devices:        deviceRows(co.Members()),
				Stats:          &stats,
			})
		}
	}
}

func deviceRows(devices []mesh.Device) []ui.DeviceRow {
	rows := make([]ui.DeviceRow, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, ui.DeviceRow{
			Name:     d.Name,
			DevType:  d.DevType,
			Mac:      d.Addr.String(),
			Active:   d.Active,
			LastSeen: int64(time.Since(d.LastSeen).Seconds()),
			Quality:  d.Quality,
		})
	}
	return rows
}
