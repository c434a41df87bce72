package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const commandQueueSize = 256

// IngestHandler receives device-state-change events parsed from inbound
// sensor messages.
type IngestHandler func(deviceID string, state json.RawMessage)

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	DataTopic    string // e.g., "iot/devices/+/data"
	CommandTopic string // e.g., "iot/devices/{device_id}/cmd"
}

// Client connects the engine to the message bus: it subscribes to the
// sensor data topic for physical-device ingestion and publishes outbound
// commands from an internal queue, decoupled from the rule cascade that
// produced them.
type Client struct {
	client       mqtt.Client
	dataTopic    string
	commandTopic string
	commands     chan command
	ingest       IngestHandler
}

type command struct {
	deviceID string
	payload  []byte
}

// NewClient creates and connects a new MQTT client
func NewClient(config ClientConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Println("Connected to MQTT broker:", config.Broker)

	return &Client{
		client:       client,
		dataTopic:    config.DataTopic,
		commandTopic: config.CommandTopic,
		commands:     make(chan command, commandQueueSize),
	}, nil
}

// SetIngestHandler sets the handler for inbound sensor data.
func (c *Client) SetIngestHandler(handler IngestHandler) {
	c.ingest = handler
}

// SubscribeData subscribes to the sensor data topic.
func (c *Client) SubscribeData() error {
	if c.dataTopic == "" {
		return nil
	}
	token := c.client.Subscribe(c.dataTopic, 1, c.handleData)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to data topic: %w", token.Error())
	}
	log.Printf("Subscribed to data topic: %s", c.dataTopic)
	return nil
}

func (c *Client) handleData(_ mqtt.Client, msg mqtt.Message) {
	deviceID := deviceIDFromTopic(msg.Topic())
	if deviceID == "" {
		log.Printf("MQTT: Could not extract device ID from topic: %s", msg.Topic())
		return
	}
	if c.ingest == nil {
		return
	}
	payload := append([]byte(nil), msg.Payload()...)
	c.ingest(deviceID, payload)
}

// QueueCommand enqueues an outbound command without blocking the caller.
// A full queue drops the command; the bus contract is at-most-once here.
func (c *Client) QueueCommand(deviceID string, payload []byte) {
	select {
	case c.commands <- command{deviceID: deviceID, payload: payload}:
	default:
		log.Printf("MQTT: Command queue full, dropping command for device %s", deviceID)
	}
}

// Start drains the command queue until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")
	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return
		case cmd := <-c.commands:
			if err := c.publishCommand(cmd); err != nil {
				log.Printf("Error publishing command: %v", err)
			}
		}
	}
}

func (c *Client) publishCommand(cmd command) error {
	topic := formatTopic(c.commandTopic, cmd.deviceID)
	token := c.client.Publish(topic, 1, false, cmd.payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish command to %s: %w", topic, token.Error())
	}
	return nil
}

// Close closes the MQTT client connection.
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Println("MQTT client disconnected")
}

// formatTopic replaces the {device_id} placeholder with the actual device ID.
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}

// deviceIDFromTopic extracts the device ID from a data topic such as
// "iot/devices/esp8266-01/data".
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
