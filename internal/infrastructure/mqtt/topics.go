package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "neobin"

// Topics builds the NeoBin topic names under one prefix.
type Topics struct {
	Prefix string
}

// NewTopics trims slashes from prefix and applies the default.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Status is the retained availability topic, also used as the Last Will.
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// State is the retained topic for one notification key, e.g. "Angle".
func (t Topics) State(key string) string {
	return t.Prefix + "/state/" + key
}

// AllStates matches every state topic.
func (t Topics) AllStates() string {
	return t.Prefix + "/state/+"
}

// SensorTrigger carries proximity readings that triggered an opening.
func (t Topics) SensorTrigger() string {
	return t.Prefix + "/sensor/trigger"
}
