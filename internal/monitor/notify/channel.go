package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"strongbot/internal/chat"
)

// Channel delivers a rendered report.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, report Report) error
}

// ChatChannel posts reports as embeds through a chat client.
type ChatChannel struct {
	client    chat.Client
	channelID string
	color     int
}

// NewChatChannel constructs a ChatChannel.
func NewChatChannel(client chat.Client, channelID string) (*ChatChannel, error) {
	if client == nil {
		return nil, errors.New("report channel: nil chat client")
	}
	if channelID == "" {
		return nil, errors.New("report channel: empty channel id")
	}
	return &ChatChannel{client: client, channelID: channelID, color: 0x9b59b6}, nil
}

func (c *ChatChannel) Name() string { return "chat" }

// Deliver sends the report as a single embed.
func (c *ChatChannel) Deliver(ctx context.Context, report Report) error {
	embed := &chat.Embed{
		Title:       report.Title,
		Description: report.Description,
		Color:       c.color,
		Timestamp:   report.CapturedAt,
	}
	for _, line := range report.Lines {
		embed.Fields = append(embed.Fields, chat.EmbedField{Name: line.Label, Value: line.Value})
	}
	_, err := c.client.Send(ctx, chat.Message{
		ChannelID: c.channelID,
		Embed:     embed,
		Broadcast: report.Broadcast,
		Nonce:     report.Nonce,
	})
	return err
}

// MultiChannel delivers to a primary channel and best-effort mirrors.
// Only the primary result is returned so a retry never re-posts to the primary
// because a mirror failed.
type MultiChannel struct {
	primary Channel
	mirrors []Channel
	logger  *log.Logger
}

// NewMultiChannel constructs a MultiChannel.
func NewMultiChannel(logger *log.Logger, primary Channel, mirrors ...Channel) (*MultiChannel, error) {
	if primary == nil {
		return nil, errors.New("multi channel: nil primary")
	}
	return &MultiChannel{primary: primary, mirrors: mirrors, logger: logger}, nil
}

func (m *MultiChannel) Name() string { return "multi" }

// Deliver forwards the report to every channel.
func (m *MultiChannel) Deliver(ctx context.Context, report Report) error {
	if err := m.primary.Deliver(ctx, report); err != nil {
		return err
	}
	for _, mirror := range m.mirrors {
		if mirror == nil {
			continue
		}
		if err := mirror.Deliver(ctx, report); err != nil && m.logger != nil {
			m.logger.Printf("report mirror failed: channel=%s epoch=%d err=%v", mirror.Name(), report.Epoch, err)
		}
	}
	return nil
}

// MQTTConfig configures the MQTT mirror.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	QoS       byte
	Retain    bool
}

// MQTTChannel publishes reports as JSON to a broker topic.
type MQTTChannel struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
	logger *log.Logger
}

// NewMQTTChannel wraps an already constructed client.
func NewMQTTChannel(client mqtt.Client, topic string, qos byte, retain bool, logger *log.Logger) (*MQTTChannel, error) {
	if client == nil {
		return nil, errors.New("mqtt channel: nil client")
	}
	if topic == "" {
		return nil, errors.New("mqtt channel: empty topic")
	}
	return &MQTTChannel{client: client, topic: topic, qos: qos, retain: retain, logger: logger}, nil
}

// DialMQTT connects to the broker and returns a ready channel.
func DialMQTT(cfg MQTTConfig, logger *log.Logger) (*MQTTChannel, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt channel: empty broker url")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("strongbot-%d", time.Now().Unix())
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Printf("mqtt connection lost: %v", err)
		}
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt channel: connect %s: %w", cfg.BrokerURL, token.Error())
	}
	return NewMQTTChannel(client, cfg.Topic, cfg.QoS, cfg.Retain, logger)
}

func (c *MQTTChannel) Name() string { return "mqtt" }

// Deliver publishes the report JSON and waits for the broker acknowledgement.
func (c *MQTTChannel) Deliver(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	token := c.client.Publish(c.topic, c.qos, c.retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (c *MQTTChannel) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}
