// internal/transport/nettransport/server.go
// Device-side half: wraps a local transport.Transport and exposes it as a
// net/rpc service, grounded on the teacher's server.go (HasherServer wraps
// a *device.Device and forwards each RPC to it) and cmd/driver/hasher-server.
package nettransport

import (
	"context"
	"net"
	"net/rpc"

	"flashcore/internal/flashlog"
	"flashcore/internal/transport"
)

// Server exposes a local transport.Transport over net/rpc so a remote
// session orchestrator can drive it as a nettransport.Client.
type Server struct {
	local transport.Transport
	log   *flashlog.Logger
}

// NewServer wraps local for RPC exposure.
func NewServer(local transport.Transport, log *flashlog.Logger) *Server {
	if log == nil {
		log = flashlog.Default("relay")
	}
	return &Server{local: local, log: log}
}

func (s *Server) ReadExact(args *ReadExactArgs, reply *ReadExactReply) error {
	data, err := s.local.ReadExact(context.Background(), args.N, args.Timeout)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

func (s *Server) ReadUntil(args *ReadUntilArgs, reply *ReadUntilReply) error {
	data, err := s.local.ReadUntil(context.Background(), args.Terminator, args.Max, args.Timeout)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

func (s *Server) WriteAll(args *WriteAllArgs, reply *WriteAllReply) error {
	return s.local.WriteAll(context.Background(), args.Data)
}

func (s *Server) Flush(args *VoidArgs, reply *VoidReply) error {
	return s.local.Flush()
}

func (s *Server) DrainInput(args *VoidArgs, reply *VoidReply) error {
	return s.local.DrainInput()
}

func (s *Server) CloseRemote(args *VoidArgs, reply *VoidReply) error {
	return s.local.Close()
}

// Serve registers s under ServiceName and accepts connections on ln until it
// is closed. Only one remote session may be attached to the underlying
// transport at a time (spec.md §3's "exactly one active session per
// transport"); neither Serve nor internal/session enforces that — callers
// own one Session per device, the same way they would for a local transport.
func Serve(ln net.Listener, s *Server) error {
	server := rpc.NewServer()
	if err := server.RegisterName(ServiceName, s); err != nil {
		return err
	}
	s.log.Infof("relay listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.ServeConn(conn)
	}
}
