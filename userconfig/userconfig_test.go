package userconfig

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/ptgott/etoolkit/device"
	"github.com/ptgott/etoolkit/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestParse(t *testing.T) {
	// Asserting deep equality between the expected and actual Meta for every
	// case would be brittle, so we make sure nothing fails unexpectedly here
	// and check the knottier validation situations elsewhere.
	testCases := []struct {
		description   string
		conf          string
		shouldBeError bool
		shouldBeEmpty bool
	}{
		{
			description:   "valid case",
			shouldBeError: false,
			shouldBeEmpty: false,
			conf: `---
log:
    path: ./etoolkit.log
    level: debug
    echo: true
email:
    smtpServerHost: smtp.qq.com
    fromAddress: xxx@qq.com
    toAddress: recipient@example.com
    password: ifseaywpkzlkbcfi
device:
    cpuInterval: 500ms
    probeAddress: 1.1.1.1:80`,
		},
		{
			description:   "no email section",
			shouldBeError: false,
			shouldBeEmpty: false,
			conf: `---
log:
    path: ./etoolkit.log`,
		},
		{
			description:   "no log section",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
device:
    cpuInterval: 1s`,
		},
		{
			description:   "bad duration",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
log:
    path: ./etoolkit.log
device:
    cpuInterval: 1y`,
		},
		{
			description:   "not yaml",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf:          `this is not yaml`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			b := bytes.NewBuffer([]byte(tc.conf))
			m, err := Parse(b)

			if (err != nil) != tc.shouldBeError {
				t.Errorf(
					"%v: unexpected error status: wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}

			if reflect.DeepEqual(*m, Meta{}) != tc.shouldBeEmpty {
				l := map[bool]string{
					true:  "to be",
					false: "not to be",
				}
				t.Errorf(
					"%v: expected the Meta %v empty, but got the opposite",
					tc.description,
					l[tc.shouldBeEmpty],
				)
			}
		})
	}
}

func TestCheckAndSetDefaults(t *testing.T) {
	m, err := Parse(bytes.NewBufferString(`---
log:
    path: ./etoolkit.log
email:
    fromAddress: xxx@qq.com
    toAddress: recipient@example.com
    password: ifseaywpkzlkbcfi`))
	require.NoError(t, err)

	c, err := m.CheckAndSetDefaults()
	require.NoError(t, err)

	assert.Equal(t, logging.Config{Path: "./etoolkit.log", Level: logging.InfoLevel}, c.Log)
	require.NotNil(t, c.EmailSettings)
	assert.Equal(t, "smtp.qq.com", c.EmailSettings.Host)
	assert.Equal(t, 465, c.EmailSettings.Port)
	assert.Equal(t, Device{
		CPUInterval:  device.DefaultCPUInterval,
		ProbeAddress: device.DefaultProbeAddress,
	}, c.Device)
	// The parsed config is left alone
	assert.Equal(t, 0, m.EmailSettings.Port)
}

func TestCheckAndSetDefaultsInvalidEmail(t *testing.T) {
	m, err := Parse(bytes.NewBufferString(`---
log:
    path: ./etoolkit.log
email:
    fromAddress: xxx@qq.com`))
	require.NoError(t, err)

	_, err = m.CheckAndSetDefaults()
	assert.Error(t, err)
}

func TestDeviceUnmarshalYAML(t *testing.T) {
	testCases := []struct {
		description   string
		shouldBeError bool
		input         string
		expected      time.Duration
	}{
		{
			description: "valid case",
			input:       `cpuInterval: 2s`,
			expected:    2 * time.Second,
		},
		{
			description: "default interval",
			input:       `probeAddress: 1.1.1.1:80`,
			expected:    time.Second,
		},
		{
			description:   "not an object",
			shouldBeError: true,
			input:         `[]`,
		},
		{
			description:   "unparseable duration",
			shouldBeError: true,
			input:         `cpuInterval: 5y`,
		},
		{
			description:   "interval too short",
			shouldBeError: true,
			input:         `cpuInterval: 1ms`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			var d Device
			dec := yaml.NewDecoder(bytes.NewBuffer([]byte(tc.input)))
			err := dec.Decode(&d)
			var c Device
			if err == nil {
				c, err = d.CheckAndSetDefaults()
			}
			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"expected error status of %v but got %v with error %v",
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
			if !tc.shouldBeError {
				assert.Equal(t, tc.expected, c.CPUInterval)
			}
		})
	}
}
