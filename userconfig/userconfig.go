package userconfig

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ptgott/etoolkit/device"
	"github.com/ptgott/etoolkit/email"
	"github.com/ptgott/etoolkit/logging"
	"github.com/rs/zerolog/log"

	yaml "gopkg.in/yaml.v2"
)

// CPU sampling below this is mostly noise
const minCPUIntervalMS int64 = 10

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Log           logging.Config    `yaml:"log"`
	EmailSettings *email.UserConfig `yaml:"email"`
	Device        Device            `yaml:"device"`
}

// Device contains config options for host queries
type Device struct {
	CPUInterval  time.Duration
	ProbeAddress string
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (d *Device) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the device config: %v", err)
	}

	i, ok := v["cpuInterval"]
	if !ok {
		i = "0s"
	}

	pd, err := time.ParseDuration(i)
	if err != nil {
		return fmt.Errorf(
			"can't parse the CPU sampling interval as a duration: %v",
			err,
		)
	}
	d.CPUInterval = pd
	d.ProbeAddress = v["probeAddress"]

	return nil
}

// CheckAndSetDefaults validates d and either returns a copy of d with default
// settings applied or returns an error due to an invalid configuration
func (d *Device) CheckAndSetDefaults() (Device, error) {
	c := *d
	if c.CPUInterval == 0 {
		c.CPUInterval = device.DefaultCPUInterval
	}
	if c.CPUInterval.Milliseconds() < minCPUIntervalMS {
		return Device{}, fmt.Errorf("the CPU sampling interval must be at least %vms", minCPUIntervalMS)
	}
	if c.ProbeAddress == "" {
		c.ProbeAddress = device.DefaultProbeAddress
	}
	return c, nil
}

// Options returns the device.Options matching d
func (d *Device) Options() []device.Option {
	return []device.Option{device.WithProbeAddress(d.ProbeAddress)}
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	l, err := m.Log.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Log = l

	if m.EmailSettings != nil {
		e, err := m.EmailSettings.CheckAndSetDefaults()
		if err != nil {
			return Meta{}, err
		}
		c.EmailSettings = &e
	}

	d, err := m.Device.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Device = d

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML. Call CheckAndSetDefaults on the result before using it.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	if m.Log == (logging.Config{}) {
		return &Meta{}, errors.New("must include a \"log\" section")
	}

	if m.EmailSettings == nil {
		log.Debug().Msg(
			"no \"email\" section, so email is disabled",
		)
	}

	return &m, nil
}
