package config

import (
	"bytes"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Load parses a YAML configuration document (spec §6) from r. It uses
// viper only for the YAML decode step; profile/override resolution is
// hand-rolled (see Resolve) because viper's own config-merge semantics
// don't match the spec's highest-wins order.
func Load(r io.Reader) (Document, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return Document{}, errors.Annotate(err, "reading configuration document")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(buf)); err != nil {
		return Document{}, errors.Annotate(err, "parsing configuration document")
	}

	doc := DefaultDocument()
	if err := v.Unmarshal(&doc); err != nil {
		return Document{}, errors.Annotate(err, "decoding configuration document")
	}
	return doc, nil
}

// ConfigError signals that the resolved configuration is inconsistent
// (§7): an unknown profile name or an invalid parameter type. It is
// the one error kind that aborts a run outright.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "invalid validation configuration: " + e.Reason }
