package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/rigd/pkg/logging"
	"github.com/dougsko/rigd/pkg/protocol"
)

const (
	clientIdleTimeout = 5 * time.Minute
	commandTimeout    = 30 * time.Second
	maxLineBytes      = 64 * 1024
)

// startListener opens the TCP line-protocol socket and accepts clients
// until the daemon stops.
func (d *Daemon) startListener() error {
	addr := fmt.Sprintf("%s:%d", d.config.Listener.BindAddress, d.config.Listener.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	d.listener = ln
	logging.Infof("listener", "listening on %s", addr)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-d.ctx.Done():
					return
				default:
				}
				logging.Warnf("listener", "accept error: %v", err)
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.serveConn(conn)
			}()
		}
	}()
	return nil
}

func (d *Daemon) stopListener() {
	if d.listener != nil {
		d.listener.Close()
	}
}

// serveConn handles one client: one JSON envelope per line in, one JSON
// response per line out. The token is checked on every request so a
// client cannot outlive a rotated secret.
func (d *Daemon) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	logging.Debugf("listener", "client connected: %s", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	encoder := json.NewEncoder(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(clientIdleTimeout))
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := d.dispatch(line)
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := encoder.Encode(resp); err != nil {
			logging.Debugf("listener", "write to %s failed: %v", remote, err)
			break
		}
	}

	logging.Debugf("listener", "client disconnected: %s", remote)
}

// dispatch runs one request line through auth, parsing and the rig.
func (d *Daemon) dispatch(line []byte) protocol.Response {
	env, err := protocol.ParseEnvelope(line)
	if err != nil {
		return protocol.Err(err)
	}

	if err := d.authn.Verify(env.Token); err != nil {
		return protocol.Err(fmt.Errorf("unauthorized: %w", err))
	}

	cmd, err := env.ToCommand()
	if err != nil {
		return protocol.Err(err)
	}

	ctx, cancel := context.WithTimeout(d.ctx, commandTimeout)
	defer cancel()
	snap, err := d.handle.Submit(ctx, cmd)
	if err != nil {
		return protocol.Err(err)
	}
	return protocol.OK(snap)
}
