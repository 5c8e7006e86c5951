package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dougsko/rigd/pkg/auth"
	"github.com/dougsko/rigd/pkg/backend"
	"github.com/dougsko/rigd/pkg/config"
	"github.com/dougsko/rigd/pkg/logging"
	"github.com/dougsko/rigd/pkg/mqtt"
	"github.com/dougsko/rigd/pkg/rig"
	"github.com/dougsko/rigd/pkg/storage"
)

// Daemon wires the control task to its network surfaces: the TCP line
// protocol, the HTTP/WebSocket API, the event log and the optional MQTT
// publisher. Everything talks to the rig through the one Handle.
type Daemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	task   *rig.Task
	handle *rig.Handle

	authn     *auth.Authenticator
	eventLog  *storage.EventLog
	mqttPub   *mqtt.Publisher
	listener  net.Listener
	webServer *http.Server
}

// NewDaemon builds the daemon from configuration. The backend is
// constructed here; nothing touches the hardware until Start.
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	b, err := backend.Builtin().Build(backend.Config{
		Model:    cfg.Rig.Backend,
		Device:   cfg.Rig.Device,
		BaudRate: cfg.Rig.BaudRate,
		Address:  cfg.Rig.Address,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	task := rig.NewTask(b, rig.Config{
		QueueSize: cfg.Rig.QueueSize,
		Retry: rig.Backoff{
			Initial:     time.Duration(cfg.Rig.RetryInitialMs) * time.Millisecond,
			Max:         time.Duration(cfg.Rig.RetryMaxMs) * time.Millisecond,
			MaxAttempts: cfg.Rig.RetryMaxAttempts,
		},
		Polling: rig.Polling{
			Active:    time.Duration(cfg.Rig.PollActiveMs) * time.Millisecond,
			Idle:      time.Duration(cfg.Rig.PollIdleMs) * time.Millisecond,
			IdleAfter: cfg.Rig.PollIdleAfter,
		},
		EventBuffer: cfg.Rig.EventBuffer,
	})

	d := &Daemon{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		task:   task,
		handle: task.Handle(),
		authn:  auth.New(cfg.Web.AuthSecret, time.Duration(cfg.Web.TokenTTLMin)*time.Minute),
	}

	if cfg.Storage.DatabasePath != "" {
		d.eventLog, err = storage.NewEventLog(cfg.Storage.DatabasePath, cfg.Storage.MaxEvents)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}

	if err := d.setupWebServer(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return d, nil
}

// Start launches the control task and all frontends.
func (d *Daemon) Start() error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.task.Run(d.ctx)
	}()

	if d.eventLog != nil {
		d.wg.Add(1)
		go d.recordEvents()
	}

	if d.config.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(mqtt.Config{
			Broker:   d.config.MQTT.Broker,
			Topic:    d.config.MQTT.Topic,
			ClientID: d.config.MQTT.ClientID,
			Username: d.config.MQTT.Username,
			Password: d.config.MQTT.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to start MQTT publisher: %w", err)
		}
		d.mqttPub = pub
		_, events := d.handle.Subscribe()
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			pub.Run(d.ctx, events)
		}()
	}

	if err := d.startListener(); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logging.Infof("web", "serving on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("web", "server error: %v", err)
		}
	}()

	if d.config.Rig.PowerOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.powerOnSequence()
		}()
	}

	return nil
}

// powerOnSequence brings the rig up and applies the configured initial
// frequency and mode. Failures are logged, not fatal; the rig stays
// reachable for a manual PowerOn.
func (d *Daemon) powerOnSequence() {
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	if _, err := d.handle.Submit(ctx, rig.PowerOn()); err != nil {
		logging.Errorf("main", "initial power on failed: %v", err)
		return
	}
	if hz := d.config.Rig.InitialFreq; hz != 0 {
		if _, err := d.handle.Submit(ctx, rig.SetFreq(hz)); err != nil {
			logging.Warnf("main", "initial frequency: %v", err)
		}
	}
	if mode := d.config.Rig.InitialMode; mode != "" {
		if _, err := d.handle.Submit(ctx, rig.SetMode(rig.Mode(mode))); err != nil {
			logging.Warnf("main", "initial mode: %v", err)
		}
	}
}

// recordEvents copies every rig event into the SQLite log.
func (d *Daemon) recordEvents() {
	defer d.wg.Done()

	id, events := d.handle.Subscribe()
	defer d.handle.Unsubscribe(id)

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := d.eventLog.Append(ev); err != nil {
				logging.Warnf("storage", "failed to store event: %v", err)
			}
		}
	}
}

// Stop shuts everything down in dependency order: frontends first, the
// control task last so in-flight commands get replies.
func (d *Daemon) Stop() error {
	d.stopListener()

	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("web", "shutdown error: %v", err)
		}
	}

	d.cancel()
	<-d.task.Done()

	if d.mqttPub != nil {
		d.mqttPub.Close()
	}
	if d.eventLog != nil {
		if err := d.eventLog.Close(); err != nil {
			logging.Warnf("storage", "close error: %v", err)
		}
	}

	d.wg.Wait()
	return nil
}
