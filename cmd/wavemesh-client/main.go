// ABOUTME: Entry point for the client role
// ABOUTME: Discovers a coordinator, joins the mesh, relays audio to its phone
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

	"github.com/wavemesh/wavemesh-go/internal/discovery"
	"github.com/wavemesh/wavemesh-go/internal/phonelink"
	"github.com/wavemesh/wavemesh-go/internal/relay"
	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/version"
)

var (
	name      = flag.String("name", "", "Client name (default: hostname-wavemesh-client)")
	port      = flag.Int("port", 8932, "Phone link WebSocket port")
	meshBind  = flag.String("mesh-bind", ":0", "UDP bind address for the mesh transport")
	mac       = flag.String("mac", "", "Fixed mesh hardware address (default: random)")
	chunkSize = flag.Int("chunk-size", 160, "Phone notification chunk size in bytes")
	coordMac  = flag.String("coordinator-mac", "", "Manual coordinator hardware address (skip mDNS)")
	coordAddr = flag.String("coordinator-addr", "", "Manual coordinator UDP endpoint host:port")
	logFile   = flag.String("log-file", "wavemesh-client.log", "Log file path")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	log.Printf("%s client %s starting", version.Product, version.Version)

	clientName := *name
	if clientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		clientName = fmt.Sprintf("%s-wavemesh-client", hostname)
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
		Name:      clientName,
		ChunkSize: *chunkSize,
	})
	if err := phone.Start(); err != nil {
		log.Fatalf("phone link: %v", err)
	}
	defer phone.Close()

	cl := relay.NewClient(relay.ClientConfig{
		DeviceName: clientName,
		Mesh:       meshT,
		Phone:      phone,
	})

	// Either a manually specified coordinator or mDNS discovery feeds join
	// candidates to the link.
	if *coordMac != "" {
		caddr, err := transport.ParseAddr(*coordMac)
		if err != nil {
			log.Fatalf("bad -coordinator-mac: %v", err)
		}
		if *coordAddr == "" {
			log.Fatalf("-coordinator-mac requires -coordinator-addr")
		}
		if err := meshT.Seed(caddr, *coordAddr); err != nil {
			log.Fatalf("seed coordinator endpoint: %v", err)
		}
		cl.AddCoordinator(caddr)
	} else {
		disc := discovery.NewManager(discovery.Config{ServiceName: clientName})
		if err := disc.Browse(); err != nil {
			log.Fatalf("mDNS browse: %v", err)
		}
		defer disc.Stop()
		go func() {
			for info := range disc.Coordinators() {
				if err := meshT.Seed(info.Addr, info.Endpoint()); err != nil {
					log.Printf("seed %s: %v", info.Addr, err)
					continue
				}
				cl.AddCoordinator(info.Addr)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := cl.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("client stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Printf("Client stopped")
}
