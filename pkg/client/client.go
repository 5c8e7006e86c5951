// Package client is the Go client for the rigd TCP line protocol, used
// by rigctl and by anything else that wants to drive a rig remotely.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/rigd/pkg/protocol"
	"github.com/dougsko/rigd/pkg/rig"
)

// Client holds a connection to a rigd listener. One request is in
// flight at a time; the daemon serializes everything anyway.
type Client struct {
	addr    string
	token   string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// New creates a client for the given listener address. The token is
// attached to every request; leave it empty when the daemon runs
// without auth.
func New(addr, token string) *Client {
	return &Client{
		addr:    addr,
		token:   token,
		timeout: 10 * time.Second,
	}
}

// Connect dials the daemon. Send also connects lazily, so calling this
// is only needed to fail fast.
func (c *Client) Connect() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Send submits one command and waits for the daemon's reply. A reply
// with success=false comes back as an error.
func (c *Client) Send(cmd rig.Command) (*rig.Snapshot, error) {
	env, err := protocol.FromCommand(cmd)
	if err != nil {
		return nil, err
	}
	env.Token = c.token

	resp, err := c.roundTrip(env)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s failed: %s", cmd.Op, resp.Error)
	}
	return resp.State, nil
}

func (c *Client) roundTrip(env protocol.Envelope) (*protocol.Response, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	line, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode error: %w", err)
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		c.Close()
		return nil, fmt.Errorf("send error: %w", err)
	}

	reply, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("read error: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &resp, nil
}

// GetState fetches the current snapshot.
func (c *Client) GetState() (*rig.Snapshot, error) {
	return c.Send(rig.GetSnapshot())
}

// SetFreq tunes the rig.
func (c *Client) SetFreq(hz uint64) (*rig.Snapshot, error) {
	return c.Send(rig.SetFreq(hz))
}

// SetMode switches the operating mode.
func (c *Client) SetMode(mode string) (*rig.Snapshot, error) {
	return c.Send(rig.SetMode(rig.Mode(mode)))
}

// SetPTT keys or unkeys the transmitter.
func (c *Client) SetPTT(on bool) (*rig.Snapshot, error) {
	return c.Send(rig.SetPTT(on))
}

// PowerOn powers the rig up.
func (c *Client) PowerOn() (*rig.Snapshot, error) {
	return c.Send(rig.PowerOn())
}

// PowerOff powers the rig down.
func (c *Client) PowerOff() (*rig.Snapshot, error) {
	return c.Send(rig.PowerOff())
}
