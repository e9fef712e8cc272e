// internal/transport/nettransport/nettransport.go
// Network Transport backend for flashing racks where the USB/serial port is
// attached to a headless relay host and the session orchestrator runs
// elsewhere. Grounded on the teacher's internal/driver/host/bridge.go
// (ASICDevice: dial once, keep a persistent client, expose the same
// operations as the local backend) and internal/driver/device/server.go
// (the device-side RPC server wrapping a *Device) — carried over net/rpc
// instead of the teacher's gRPC, since the generated protobuf bindings for
// the teacher's actual service are not available in this environment (see
// DESIGN.md's dropped-dependency note).
package nettransport

import (
	"context"
	"fmt"
	"net/rpc"
	"time"

	"flashcore/internal/flasherr"
)

// ServiceName is the net/rpc service name the relay registers under.
const ServiceName = "RelayTransport"

// ReadExactArgs/Reply etc. mirror what would otherwise be protobuf request/
// response messages — plain gob-encodable structs, matching the fields the
// teacher's generated pb types carried (a byte payload plus a small number
// of scalar parameters).

type ReadExactArgs struct {
	N       int
	Timeout time.Duration
}
type ReadExactReply struct {
	Data []byte
}

type ReadUntilArgs struct {
	Terminator []byte
	Max        int
	Timeout    time.Duration
}
type ReadUntilReply struct {
	Data []byte
}

type WriteAllArgs struct {
	Data []byte
}
type WriteAllReply struct{}

type VoidArgs struct{}
type VoidReply struct{}

// Client is a Transport implementation that forwards every call to a
// RelayTransport service over net/rpc.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a flashcore-relay server at addr ("host:port").
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, flasherr.NewTransportError(flasherr.TransportDisconnected, fmt.Errorf("dial relay %s: %w", addr, err))
	}
	return &Client{rpc: c}, nil
}

func (c *Client) call(method string, args, reply any) error {
	if err := c.rpc.Call(ServiceName+"."+method, args, reply); err != nil {
		return flasherr.NewTransportError(flasherr.TransportDisconnected, err)
	}
	return nil
}

func (c *Client) ReadExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	var reply ReadExactReply
	if err := c.call("ReadExact", &ReadExactArgs{N: n, Timeout: timeout}, &reply); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

func (c *Client) ReadUntil(ctx context.Context, terminator []byte, max int, timeout time.Duration) ([]byte, error) {
	var reply ReadUntilReply
	if err := c.call("ReadUntil", &ReadUntilArgs{Terminator: terminator, Max: max, Timeout: timeout}, &reply); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

func (c *Client) WriteAll(ctx context.Context, p []byte) error {
	var reply WriteAllReply
	return c.call("WriteAll", &WriteAllArgs{Data: p}, &reply)
}

func (c *Client) Flush() error {
	var reply VoidReply
	return c.call("Flush", &VoidArgs{}, &reply)
}

func (c *Client) DrainInput() error {
	var reply VoidReply
	return c.call("DrainInput", &VoidArgs{}, &reply)
}

func (c *Client) Close() error {
	var reply VoidReply
	_ = c.call("CloseRemote", &VoidArgs{}, &reply)
	return c.rpc.Close()
}
