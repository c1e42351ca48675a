// Package mqtt publishes call and status notifications to an MQTT broker.
// Publishing is fire-and-forget: a broker outage degrades to logged
// warnings and never blocks event processing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicStatus          = "gonopbx/status"
	topicCallStarted     = "gonopbx/call/started"
	topicCallAnswered    = "gonopbx/call/answered"
	topicCallEnded       = "gonopbx/call/ended"
	topicExtensionStatus = "gonopbx/extension/%s/status"
	topicTrunkStatus     = "gonopbx/trunk/%s/status"
)

// Publisher sends notifications to a broker. The zero-value (or a nil
// Publisher) is a disabled publisher whose methods are no-ops, so callers
// never need to branch on whether MQTT is configured.
type Publisher struct {
	client paho.Client
	logger *slog.Logger
}

// Connect dials the broker and announces availability. The will message
// flips the status topic to offline if the connection dies.
func Connect(brokerURL, clientID, username, password string, logger *slog.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(topicStatus, "offline", 1, true)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.OnConnect = func(client paho.Client) {
		client.Publish(topicStatus, 1, true, "online")
		logger.Info("mqtt connected", "broker", brokerURL)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connecting to mqtt broker %s: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", brokerURL, err)
	}

	return &Publisher{client: client, logger: logger}, nil
}

// Close announces shutdown and disconnects.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Publish(topicStatus, 1, true, "offline")
	p.client.Disconnect(250)
}

// publish sends one message without waiting for broker acknowledgement.
func (p *Publisher) publish(topic string, retained bool, payload any) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshaling mqtt payload", "topic", topic, "error", err)
		return
	}
	token := p.client.Publish(topic, 0, retained, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

type callPayload struct {
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	Timestamp   string `json:"timestamp"`
}

type callEndedPayload struct {
	callPayload
	Duration    int    `json:"duration"`
	Disposition string `json:"disposition"`
}

type statusPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (p *Publisher) CallStarted(caller, destination string) {
	p.publish(topicCallStarted, false, callPayload{caller, destination, now()})
}

func (p *Publisher) CallAnswered(caller, destination string) {
	p.publish(topicCallAnswered, false, callPayload{caller, destination, now()})
}

func (p *Publisher) CallEnded(caller, destination string, duration int, disposition string) {
	p.publish(topicCallEnded, false, callEndedPayload{
		callPayload: callPayload{caller, destination, now()},
		Duration:    duration,
		Disposition: disposition,
	})
}

// ExtensionStatus publishes retained so new subscribers see the latest
// reachability immediately.
func (p *Publisher) ExtensionStatus(extension, status string) {
	p.publish(fmt.Sprintf(topicExtensionStatus, extension), true, statusPayload{status, now()})
}

func (p *Publisher) TrunkStatus(name, status string) {
	if name == "" {
		return
	}
	p.publish(fmt.Sprintf(topicTrunkStatus, name), true, statusPayload{status, now()})
}
