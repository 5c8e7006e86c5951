// Package mqtt publishes rig snapshots to an MQTT broker so home
// automation and logging tools can follow the rig without speaking the
// line protocol. Publishing is one-way and best effort; the rig never
// waits on the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dougsko/rigd/pkg/logging"
	"github.com/dougsko/rigd/pkg/rig"
)

// Config for the state publisher.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// Publisher pushes the latest rig snapshot to a retained MQTT topic on
// every state or status change.
type Publisher struct {
	cfg    Config
	client paho.Client
}

// NewPublisher connects to the broker. Connection failures are fatal
// here; reconnects after that are handled by the client itself.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		cfg.Topic = "rigd/state"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "rigd"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(60 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	logging.Infof("mqtt", "connected to %s, publishing to %s", cfg.Broker, cfg.Topic)
	return &Publisher{cfg: cfg, client: client}, nil
}

// Run consumes rig events until ctx is cancelled or the event channel
// closes, publishing the snapshot carried by each state/status change.
// Intended to run on its own goroutine.
func (p *Publisher) Run(ctx context.Context, events <-chan rig.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case rig.EventStateChanged, rig.EventStatusChanged, rig.EventPollFailed:
				p.publish(ev.Snapshot)
			}
		}
	}
}

func (p *Publisher) publish(snap rig.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		logging.Errorf("mqtt", "encoding snapshot: %v", err)
		return
	}
	// QoS 0 and retained: subscribers always see the latest state and a
	// flaky broker never backs up the rig.
	token := p.client.Publish(p.cfg.Topic, 0, true, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			logging.Warnf("mqtt", "publish failed: %v", err)
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
