package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
	"github.com/ericogr/max6675-to-mqtt/pkg/output"
	"github.com/ericogr/max6675-to-mqtt/pkg/sensor"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "max6675-client"
	DefaultStateTopic = "max6675/temperature"
	connectTimeout    = 10 * time.Second
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
	valueTemplateTemp      = "{{ value_json.temperature }}"
)

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

func NewMQTT(cfg config.MQTTConfig, unit max6675.Unit) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("server", cfg.Server).Msg("mqtt connection lost")
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", connectTimeout)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Info().Str("server", cfg.Server).Str("client_id", cfg.ClientID).Msg("mqtt connected")
	return newMQTTOutput(client, cfg, unit), nil
}

// newMQTTOutput wraps a connected client and publishes the Home Assistant
// discovery payload if a discovery topic is configured.
func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig, unit max6675.Unit) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}
	if cfg.DiscoveryTopic != "" {
		payload := discoveryPayload(discoveryName(cfg), m.stateTopic, discoveryUniqueID(cfg), unit)
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			log.Error().Err(err).Str("topic", cfg.DiscoveryTopic).Msg("mqtt discovery publish error")
		}
	}
	return m
}

func (m *MQTTOutput) Publish(r sensor.Reading) error {
	// temperature is null on a fault so Home Assistant shows the sensor as unknown
	payload := map[string]interface{}{"temperature": r.Value, "raw": r.Raw, "unit": r.Unit, "fault": r.Fault}
	if r.Fault {
		payload["temperature"] = nil
	}
	return publishJSON(m.client, m.stateTopic, false, payload)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("MAX6675 %s", cfg.ClientID)
}

func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	return cfg.ClientID
}

// discoveryPayload describes the state topic to Home Assistant. Raw readings
// have no unit and therefore no device class.
func discoveryPayload(name, stateTopic, uniqueID string, unit max6675.Unit) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateTemp,
		keyJSONAttributesTopic: stateTopic,
	}
	if sym := unit.Symbol(); sym != "" {
		payload[keyUnitOfMeasurement] = sym
		payload[keyDeviceClass] = deviceClassTemperature
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
