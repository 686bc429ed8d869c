package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// TraceConfig is the subset of a barectf effective configuration the relay needs.
type TraceConfig struct {
	Trace Trace `yaml:"trace"`
}

// Trace is the top-level trace object.
type Trace struct {
	Type        TraceType      `yaml:"type"`
	Environment map[string]any `yaml:"environment"`
}

// TraceType holds the clock and data stream type definitions.
type TraceType struct {
	ClockTypes      map[string]domain.ClockType `yaml:"clock-types"`
	DataStreamTypes map[string]DataStreamType   `yaml:"data-stream-types"`
}

// DataStreamType describes one data stream type.
type DataStreamType struct {
	IsDefault            bool               `yaml:"$is-default"`
	DefaultClockTypeName string             `yaml:"$default-clock-type-name"`
	Features             DataStreamFeatures `yaml:"$features"`
}

// DataStreamFeatures holds the optional features of a data stream type.
type DataStreamFeatures struct {
	EventRecord EventRecordFeatures `yaml:"event-record"`
}

// EventRecordFeatures holds the event record header features.
type EventRecordFeatures struct {
	TimestampFieldType OptionalIntegerFieldType `yaml:"timestamp-field-type"`
}

// IntegerFieldType is an unsigned integer field type.
type IntegerFieldType struct {
	Class     string `yaml:"class"`
	Size      uint   `yaml:"size"`
	Alignment uint   `yaml:"alignment"`
}

// OptionalIntegerFieldType is a feature field type that barectf may disable with
// `false` or `null` instead of a mapping.
type OptionalIntegerFieldType struct {
	*IntegerFieldType
}

// UnmarshalYAML accepts a mapping, or a scalar that disables the feature.
func (o *OptionalIntegerFieldType) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		o.IntegerFieldType = nil
		return nil
	}
	var ft IntegerFieldType
	if err := value.Decode(&ft); err != nil {
		return err
	}
	o.IntegerFieldType = &ft
	return nil
}

// LoadTraceConfig reads and parses a barectf effective-configuration yaml file.
func LoadTraceConfig(path string) (*TraceConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open barectf effective-configuration yaml file '%s': %w", domain.ErrConfig, path, err)
	}
	cfg, err := ParseTraceConfig(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse barectf effective-configuration yaml file '%s': %w", path, err)
	}
	return cfg, nil
}

// ParseTraceConfig parses a barectf effective configuration document.
func ParseTraceConfig(content []byte) (*TraceConfig, error) {
	var cfg TraceConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	for name, dst := range cfg.Trace.Type.DataStreamTypes {
		if ft := dst.Features.EventRecord.TimestampFieldType.IntegerFieldType; ft != nil {
			if ft.Size == 0 || ft.Size > 64 {
				return nil, fmt.Errorf("%w: data stream type '%s' has an invalid timestamp field size %d", domain.ErrConfig, name, ft.Size)
			}
		}
		if dst.DefaultClockTypeName != "" {
			if _, ok := cfg.Trace.Type.ClockTypes[dst.DefaultClockTypeName]; !ok {
				return nil, fmt.Errorf("%w: data stream type '%s' references unknown clock type '%s'", domain.ErrConfig, name, dst.DefaultClockTypeName)
			}
		}
	}
	return &cfg, nil
}

// TimestampWidth returns the event record timestamp field width of a stream, if it has one.
func (c *TraceConfig) TimestampWidth(stream string) (uint, bool) {
	dst, ok := c.Trace.Type.DataStreamTypes[stream]
	if !ok {
		return 0, false
	}
	ft := dst.Features.EventRecord.TimestampFieldType.IntegerFieldType
	if ft == nil {
		return 0, false
	}
	return ft.Size, true
}

// StreamClock returns the default clock type name and definition of a stream.
func (c *TraceConfig) StreamClock(stream string) (string, *domain.ClockType) {
	dst, ok := c.Trace.Type.DataStreamTypes[stream]
	if !ok || dst.DefaultClockTypeName == "" {
		return "", nil
	}
	clock, ok := c.Trace.Type.ClockTypes[dst.DefaultClockTypeName]
	if !ok {
		return "", nil
	}
	return dst.DefaultClockTypeName, &clock
}

// ClockNames returns the configured clock type names, sorted.
func (c *TraceConfig) ClockNames() []string {
	names := make([]string, 0, len(c.Trace.Type.ClockTypes))
	for name := range c.Trace.Type.ClockTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StreamName returns the data stream type name for a stream id. Ids are
// assigned to data stream types in name order.
func (c *TraceConfig) StreamName(id uint64) (string, bool) {
	names := make([]string, 0, len(c.Trace.Type.DataStreamTypes))
	for name := range c.Trace.Type.DataStreamTypes {
		names = append(names, name)
	}
	if id >= uint64(len(names)) {
		return "", false
	}
	sort.Strings(names)
	return names[id], true
}
