// cmd/flashcore-relay/main.go
// Relay binary: wraps a local serial transport and exposes it over
// net/rpc so a remote session orchestrator can drive it as a
// nettransport.Client, for setups where the flashing host isn't the
// machine physically wired to the device. Grounded on the teacher's
// cmd/driver/hasher-server (a thin main wiring one backend to one
// listener) and internal/transport/nettransport's existing Server/Serve.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"flashcore/internal/flashlog"
	"flashcore/internal/transport"
	"flashcore/internal/transport/nettransport"
	"flashcore/internal/transport/serialtransport"
)

func main() {
	port := flag.String("port", "", "serial port the device is attached to")
	listen := flag.String("listen", ":7070", "address to accept remote session connections on")
	flag.Parse()

	log := flashlog.New(os.Stderr, flashlog.LevelFromEnv(), "relay")

	if *port == "" {
		fmt.Fprintln(os.Stderr, "relay: -port is required")
		os.Exit(1)
	}

	local, err := serialtransport.Open(*port, transport.DefaultConfig())
	if err != nil {
		log.Errorf("open %s: %v", *port, err)
		os.Exit(1)
	}
	defer local.Close()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Errorf("listen %s: %v", *listen, err)
		os.Exit(1)
	}
	defer ln.Close()

	server := nettransport.NewServer(local, log)
	if err := nettransport.Serve(ln, server); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(1)
	}
}
