package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/comigor/fastline-go/internal/config"
	"github.com/comigor/fastline-go/internal/logger"
)

// MQTTChannel is the real transport, backed by a shared MQTT broker.
// State rides one topic per device pair at QoS 0 (at-most-once, per
// the sync contract); commands ride a topic per command path.
type MQTTChannel struct {
	client         paho.Client
	stateTopic     string
	cmdTopicPrefix string
	cfg            config.BrokerConfig
	dispatch       chan []StateMessage
	done           chan struct{}
}

// NewMQTT connects to the broker and returns a channel scoped to the
// device pair. deviceID keeps client ids distinct per device.
func NewMQTT(cfg config.BrokerConfig, pair, deviceID string) (*MQTTChannel, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, deviceID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ConnectTimeout / 2)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTChannel{
		client:         client,
		stateTopic:     fmt.Sprintf("fastline/%s/session/state", pair),
		cmdTopicPrefix: fmt.Sprintf("fastline/%s/cmd/", pair),
		cfg:            cfg,
		dispatch:       make(chan []StateMessage, 16),
		done:           make(chan struct{}),
	}, nil
}

// PublishState mirrors a session write onto the shared state topic.
// QoS 0, not retained: a missed message is corrected by force sync.
func (c *MQTTChannel) PublishState(msg StateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	token := c.client.Publish(c.stateTopic, 0, false, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// SendCommand delivers a one-shot command at QoS 1; commands are rare
// and user-initiated, so losing them is worse than a duplicate.
func (c *MQTTChannel) SendCommand(path string, payload []byte) error {
	token := c.client.Publish(c.cmdTopicPrefix+path, 1, false, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("send command timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Subscribe wires incoming messages to the handlers. State messages
// are funneled through a single dispatch goroutine so onStates runs
// serially per batch regardless of paho's handler concurrency.
func (c *MQTTChannel) Subscribe(onStates func(batch []StateMessage), onCommand func(cmd Command)) error {
	go func() {
		for {
			select {
			case batch := <-c.dispatch:
				onStates(batch)
			case <-c.done:
				return
			}
		}
	}()

	stateToken := c.client.Subscribe(c.stateTopic, 0, func(_ paho.Client, m paho.Message) {
		var msg StateMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			logger.L.Warn("undecodable state message dropped", "error", err)
			return
		}
		select {
		case c.dispatch <- []StateMessage{msg}:
		case <-c.done:
		}
	})
	if !stateToken.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("state subscribe timeout")
	}
	if err := stateToken.Error(); err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}

	cmdToken := c.client.Subscribe(c.cmdTopicPrefix+"#", 1, func(_ paho.Client, m paho.Message) {
		path := strings.TrimPrefix(m.Topic(), c.cmdTopicPrefix)
		onCommand(Command{Path: path, Payload: append([]byte(nil), m.Payload()...)})
	})
	if !cmdToken.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("command subscribe timeout")
	}
	if err := cmdToken.Error(); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	return nil
}

// Close stops dispatch and disconnects from the broker.
func (c *MQTTChannel) Close() error {
	close(c.done)
	c.client.Disconnect(1000)
	return nil
}
