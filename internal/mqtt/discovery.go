package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/HerbHall/turbinewatch/internal/catalog"
)

// nonAlphanumeric matches any character that is not alphanumeric or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config
}

// HADevice is the "device" block in HA discovery payloads. Every plant
// system becomes one HA device.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// SensorConfig is the HA discovery payload for sensor.
type SensorConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an HA object_id.
// Replaces any non-alphanumeric character (except underscore) with underscore,
// lowercases, and trims leading/trailing underscores.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

func buildHADevice(p *catalog.PointConfig) HADevice {
	system := p.System
	if system == "" {
		system = "plant"
	}
	return HADevice{
		Identifiers:  []string{"turbinewatch_" + SafeObjectID(system)},
		Name:         system,
		Manufacturer: "TurbineWatch",
		Model:        "Point analysis",
	}
}

// PointStateTopic is the retained state topic of one point.
func PointStateTopic(topicPrefix, pointID string) string {
	return topicPrefix + "/point/" + SafeObjectID(pointID) + "/state"
}

// BuildPointDiscoveryConfigs generates the HA sensors of one point: its
// measured value and its alarm level, both read from the point state topic.
func BuildPointDiscoveryConfigs(p *catalog.PointConfig, topicPrefix, haPrefix string) []DiscoveryConfig {
	objID := SafeObjectID(p.ID)
	device := buildHADevice(p)
	stateTopic := PointStateTopic(topicPrefix, p.ID)

	sensors := []SensorConfig{
		{
			Name:              p.Name(),
			ObjectID:          "tw_" + objID + "_value",
			UniqueID:          "turbinewatch_" + objID + "_value",
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json.value }}",
			UnitOfMeasurement: p.Unit,
			StateClass:        "measurement",
			Device:            device,
		},
		{
			Name:          p.Name() + " alarm",
			ObjectID:      "tw_" + objID + "_alarm",
			UniqueID:      "turbinewatch_" + objID + "_alarm",
			StateTopic:    stateTopic,
			ValueTemplate: "{{ value_json.alarm_level }}",
			Icon:          "mdi:alarm-light",
			Device:        device,
		},
	}

	configs := make([]DiscoveryConfig, 0, len(sensors))
	for i := range sensors {
		payload, err := json.Marshal(sensors[i])
		if err != nil {
			continue
		}
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/sensor/%s/config", haPrefix, sensors[i].ObjectID),
			Payload: payload,
		})
	}
	return configs
}
