// Package config loads the broker's recognized configuration options
// from a YAML file, so a gateway host can select the inbox variant and
// callback behavior without recompiling.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hexabus/gwbus/broker"
)

// File is the on-disk shape of the broker's configuration block.
type File struct {
	Broker BrokerSection `yaml:"broker"`
}

// BrokerSection mirrors broker.Options field-for-field so a gateway
// manifest can configure the bus alongside its other modules.
type BrokerSection struct {
	// InboxVariant is "in_memory" (default) or "transport".
	InboxVariant string `yaml:"inbox_variant"`

	// AttachStartCallbackEnabled defaults to true; set explicitly to
	// false to suppress Start callbacks on Attach.
	AttachStartCallbackEnabled *bool `yaml:"attach_start_callback_enabled"`
}

// Load reads filename and parses it into broker.Options, applying the
// recognized defaults for any field left unspecified.
func Load(filename string) (broker.Options, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return broker.Options{}, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return broker.Options{}, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	return f.Broker.toOptions()
}

func (s BrokerSection) toOptions() (broker.Options, error) {
	opts := broker.DefaultOptions()

	switch s.InboxVariant {
	case "", "in_memory":
		opts.InboxVariant = broker.InMemory
	case "transport":
		opts.InboxVariant = broker.TransportVariant
	default:
		return broker.Options{}, fmt.Errorf("config: unrecognized inbox_variant %q", s.InboxVariant)
	}

	if s.AttachStartCallbackEnabled != nil {
		opts.AttachStartCallbackEnabled = *s.AttachStartCallbackEnabled
	}

	return opts, nil
}
