// Package mqtt adapts the driver's Command Inbox and Property Store onto
// the host's MQTT-based publish bus, grounded on the teacher's
// internal/mqtt client and generalised from its switch/number topic pair
// to the three writable properties this driver exposes: mode (select),
// start/stop (switch), and set-current (number).
package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/evdriver/evdriver/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "on"
	PayloadOff     = "off"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("evdriver_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(PayloadOffline)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *Client {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &Client{
		client:               mqtt.NewClient(opts),
		cfg:                  cfg.MQTT,
		switchCommandRegexp:  switchCommandExtractor(cfg.MQTT.BaseTopic),
		numberCommandRegexp:  numberCommandExtractor(cfg.MQTT.BaseTopic),
		selectCommandRegexp:  selectCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type Client struct {
	client               mqtt.Client
	cfg                  config.MQTTConfig
	switchCommandRegexp  *regexp.Regexp
	numberCommandRegexp  *regexp.Regexp
	selectCommandRegexp  *regexp.Regexp
}

// ParsedCommand is the raw, still-untyped payload extracted from an
// incoming command topic; commandFromMQTT in internal/core/actor/master.go
// turns it into a domain.Command carrying the raw value, and
// service.ApplyCommand in the Control Engine is where it is coerced.
type ParsedCommand struct {
	Kind    string // "switch", "number", "select"
	Payload string
}

func (c *Client) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *Client) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *Client) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *Client) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *Client) SwitchStateTopic(switchId string) string {
	return fmt.Sprintf("%s/switch/%s/state", c.baseTopic(), switchId)
}

func (c *Client) SwitchCommandTopic(switchId string) string {
	return fmt.Sprintf("%s/switch/%s/command", c.baseTopic(), switchId)
}

func (c *Client) NumberStateTopic(id string) string {
	return fmt.Sprintf("%s/number/%s/state", c.baseTopic(), id)
}

func (c *Client) NumberCommandTopic(id string) string {
	return fmt.Sprintf("%s/number/%s/set", c.baseTopic(), id)
}

func (c *Client) SelectStateTopic(id string) string {
	return fmt.Sprintf("%s/select/%s/state", c.baseTopic(), id)
}

func (c *Client) SelectCommandTopic(id string) string {
	return fmt.Sprintf("%s/select/%s/set", c.baseTopic(), id)
}

func (c *Client) ParseCommand(msg mqtt.Message) (*ParsedCommand, error) {
	topic := msg.Topic()
	if c.switchCommandRegexp.MatchString(topic) {
		return &ParsedCommand{Kind: "switch", Payload: string(msg.Payload())}, nil
	}
	if c.selectCommandRegexp.MatchString(topic) {
		return &ParsedCommand{Kind: "select", Payload: string(msg.Payload())}, nil
	}
	if c.numberCommandRegexp.MatchString(topic) {
		if _, err := strconv.ParseFloat(string(msg.Payload()), 64); err != nil {
			return nil, err
		}
		return &ParsedCommand{Kind: "number", Payload: string(msg.Payload())}, nil
	}
	return nil, errors.New("unrecognised command topic")
}

func (c *Client) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *Client) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *Client) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *Client) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *Client) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *Client) commandTopic() string {
	return fmt.Sprintf("%s/#", c.baseTopic())
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("%s/switch/([a-zA-Z0-9_]+)/command", baseTopic))
}

func numberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("%s/number/([a-zA-Z0-9_]+)/set", baseTopic))
}

func selectCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("%s/select/([a-zA-Z0-9_]+)/set", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
