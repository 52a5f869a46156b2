package actor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/adapter/mqtt"
	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/util/actorutil"
)

// MQTTActor is the publish-bus exporter named in spec.md §4.8: it drains a
// propertystore.Subscriber and mirrors every coalesced Property Store
// change onto the host's MQTT broker, and turns inbound command-topic
// messages into ParsedCommand for its parent to route into the Command
// Inbox. Grounded on the teacher's MQTTActor, generalised from the
// explicit PublishSensorUpdateRequest push the battery-control actor used
// to a pull from the Property Store's own bounded subscriber, since this
// driver's Control Engine writes straight to the Property Store rather
// than emitting one event message per changed field.
type MQTTActor struct {
	behavior actor.Behavior
	stash    *Stash
	config   *config.Config
	stream   *eventstream.EventStream
	root     *actor.RootContext
	client   *mqtt.Client
	sub      *propertystore.Subscriber
	logger   *zap.Logger
}

type mqttConnected struct{}
type mqttSubscribed struct{}
type mqttConnectionLost struct{ Error error }
type propertyChange struct{ Entry propertystore.Entry }

// ParsedCommand is routed to this actor's parent, which decodes it into a
// domain.Command and forwards it to the Control Engine actor.
type ParsedCommand struct {
	Command *mqtt.ParsedCommand
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

func NewMQTTActor(cfg *config.Config, stream *eventstream.EventStream, root *actor.RootContext, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		behavior: actor.NewBehavior(),
		stash:    &Stash{},
		config:   cfg,
		stream:   stream,
		root:     root,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(ctx actor.Context) {
	state.behavior.Receive(ctx)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		state.client = mqtt.CreateClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), mqttConnectionLost{Error: err})
		})
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), mqttConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), mqttConnected{})
			}
		}, 10*time.Second)
	case mqttConnected:
		state.logger.Debug("mqtt@starting connected")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.PayloadOnline, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.SubscribeToCommandTopic(func(_ pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), mqttConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), mqttSubscribed{})
			}
		}, 1*time.Second)
	case mqttSubscribed:
		state.logger.Debug("mqtt@starting subscribed")
		state.sub = propertystore.NewSubscriber(state.stream)
		go drainPropertyChanges(state.sub, state.root, ctx.Self())
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case mqttConnectionLost:
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MQTT, Healthy: true, State: "idle"})
	case ParsedCommand:
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case propertyChange:
		state.publishEntry(ctx, msg.Entry)
	case domain.PublishMessageRequest:
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		if err := state.publishDiscovery(msg); err != nil {
			state.logger.Error("mqtt@default PublishDiscovery error", zap.Error(err))
		}
	case mqttConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// drainPropertyChanges runs on its own goroutine for the life of the
// subscription, forwarding every coalesced change into the actor's
// mailbox so publishing still happens on the actor's own turn.
func drainPropertyChanges(sub *propertystore.Subscriber, root *actor.RootContext, self *actor.PID) {
	for {
		entry, ok := sub.Next()
		if !ok {
			return
		}
		root.Send(self, propertyChange{Entry: entry})
	}
}

var phasePathRegexp = regexp.MustCompile(`^/Ac/L([1-3])/(Voltage|Current|Power)$`)

// propertyToMQTT maps one Property Store path to the MQTT topic and
// formatted payload of the HA entity that mirrors it, per the sensor/
// switch/number/select sets built in domain/discovery.go. A path with no
// mirrored entity (e.g. "/Unacknowledged") reports ok=false.
func (state *MQTTActor) propertyToMQTT(path string, value any) (topic, payload string, retain, ok bool) {
	c := state.client
	switch path {
	case "/Mode":
		return c.SelectStateTopic(domain.SelectIDMode), fmt.Sprintf("%v", value), true, true
	case "/StartStop":
		v, _ := value.(int)
		return c.SwitchStateTopic(domain.SwitchIDStartStop), bool2MQTTPayload(v != 0), true, true
	case "/SetCurrent":
		return c.NumberStateTopic(domain.InputNumberIDSetCurrent), formatFloat(value, 1), true, true
	case "/Current":
		return c.SensorStateTopic(domain.SensorIDCurrent), formatFloat(value, 1), false, true
	case "/Status":
		return c.SensorStateTopic(domain.SensorIDStatus), fmt.Sprintf("%v", value), false, true
	case "/Ac/PhaseCount":
		return c.SensorStateTopic(domain.SensorIDACPhaseCount), fmt.Sprintf("%v", value), false, true
	case "/Ac/Energy/Forward":
		return c.SensorStateTopic(domain.SensorIDACEnergy), formatFloat(value, 3), false, true
	case "/Ac/Power":
		return c.SensorStateTopic(domain.SensorIDACPower), formatFloat(value, 1), false, true
	case "/ProductName":
		return c.SensorStateTopic(domain.SensorIDProductName), fmt.Sprintf("%v", value), false, true
	case "/Serial":
		return c.SensorStateTopic(domain.SensorIDSerial), fmt.Sprintf("%v", value), false, true
	case "/FirmwareVersion":
		return c.SensorStateTopic(domain.SensorIDFirmware), fmt.Sprintf("%v", value), false, true
	case "/ChargingTime":
		return c.SensorStateTopic(domain.SensorIDChargingTime), formatFloat(value, 0), false, true
	}
	if m := phasePathRegexp.FindStringSubmatch(path); m != nil {
		id := domain.ACPhaseSensorID(int(m[1][0]-'0'), phaseKindLower(m[2]))
		return c.SensorStateTopic(id), formatFloat(value, 1), false, true
	}
	return "", "", false, false
}

func phaseKindLower(kind string) string {
	switch kind {
	case "Voltage":
		return "voltage"
	case "Current":
		return "current"
	default:
		return "power"
	}
}

func formatFloat(value any, decimals int) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', decimals, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', decimals, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func (state *MQTTActor) publishEntry(ctx actor.Context, entry propertystore.Entry) {
	topic, payload, retain, ok := state.propertyToMQTT(entry.Path, entry.Value)
	if !ok {
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: property %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		if err != nil {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}
	}, 5*time.Second)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(replyTo, domain.PublishMessageResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}})
	}, 5*time.Second)
}

func (state *MQTTActor) publishDiscovery(msg domain.PublishDiscoveryRequest) error {
	for _, s := range msg.Sensors {
		payload, err := json.Marshal(mqtt.GenericSensorToHADiscoveryMessage(state.client, s))
		if err != nil {
			return err
		}
		state.client.Publish(mqtt.HADiscoverySensorTopic(s), payload, 0, true, func(error) {}, 1*time.Second)
	}
	for _, sw := range msg.Switches {
		payload, err := json.Marshal(mqtt.GenericSwitchToHADiscoveryMessage(state.client, sw))
		if err != nil {
			return err
		}
		state.client.Publish(mqtt.HADiscoverySwitchTopic(sw), payload, 0, true, func(error) {}, 1*time.Second)
	}
	for _, n := range msg.InputNumbers {
		payload, err := json.Marshal(mqtt.GenericInputNumberToHADiscoveryMessage(state.client, n))
		if err != nil {
			return err
		}
		state.client.Publish(mqtt.HADiscoveryInputNumberTopic(n), payload, 0, true, func(error) {}, 1*time.Second)
	}
	for _, sel := range msg.Selects {
		payload, err := json.Marshal(mqtt.GenericSelectToHADiscoveryMessage(state.client, sel))
		if err != nil {
			return err
		}
		state.client.Publish(mqtt.HADiscoverySelectTopic(sel), payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.sub != nil {
		state.sub.Close(state.stream)
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.PayloadOffline, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.PayloadOn
	}
	return mqtt.PayloadOff
}
