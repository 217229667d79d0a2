package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/host"
)

// Unknown is reported when the temperature can't be read on this platform
const Unknown = "Unknown"

// vcgencmd prints e.g. "temp=48.3'C"
const measureTempPrefix = "temp="

// TemperatureReader reads the CPU temperature as a display string
type TemperatureReader interface {
	Temperature(ctx context.Context) (string, error)
}

// runFunc runs a command and returns its stdout
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// VcgencmdReader reads the SoC temperature of a Raspberry Pi with
// "vcgencmd measure_temp".
type VcgencmdReader struct {
	run runFunc
}

// NewVcgencmdReader returns a VcgencmdReader that executes vcgencmd from PATH
func NewVcgencmdReader() *VcgencmdReader {
	return &VcgencmdReader{run: runCommand}
}

// Temperature implements TemperatureReader. The result keeps the unit
// suffix, e.g. "48.3'C".
func (r *VcgencmdReader) Temperature(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "vcgencmd", "measure_temp")
	if err != nil {
		return "", fmt.Errorf("can't run vcgencmd: %w", err)
	}
	return parseMeasureTemp(string(out))
}

func parseMeasureTemp(out string) (string, error) {
	s := strings.TrimRight(out, "\r\n")
	if !strings.HasPrefix(s, measureTempPrefix) || len(s) == len(measureTempPrefix) {
		return "", fmt.Errorf("unexpected vcgencmd output: %q", out)
	}
	return s[len(measureTempPrefix):], nil
}

// SensorsReader reads the hottest-looking CPU sensor the OS exposes. It
// reports Unknown when there are no usable sensors.
type SensorsReader struct {
	sensors func(context.Context) ([]host.TemperatureStat, error)
}

// NewSensorsReader returns a SensorsReader backed by the OS sensor APIs
func NewSensorsReader() *SensorsReader {
	return &SensorsReader{sensors: host.SensorsTemperaturesWithContext}
}

// Temperature implements TemperatureReader.
func (r *SensorsReader) Temperature(ctx context.Context) (string, error) {
	ts, err := r.sensors(ctx)
	// Some platforms return partial readings along with warnings
	if err != nil && len(ts) == 0 {
		return "", fmt.Errorf("can't read temperature sensors: %w", err)
	}

	var (
		first float64
		found bool
	)
	for _, t := range ts {
		if t.Temperature <= 0 {
			continue
		}
		if isCPUSensor(t.SensorKey) {
			return formatCelsius(t.Temperature), nil
		}
		if !found {
			first, found = t.Temperature, true
		}
	}
	if !found {
		return Unknown, nil
	}
	return formatCelsius(first), nil
}

func isCPUSensor(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"cpu", "coretemp", "k10temp", "soc"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// formatCelsius matches vcgencmd's output so both readers look alike
func formatCelsius(c float64) string {
	return fmt.Sprintf("%.1f'C", c)
}

// PlatformReader tries vcgencmd first and falls back to OS sensors when the
// tool isn't installed.
type PlatformReader struct {
	primary  TemperatureReader
	fallback TemperatureReader
}

// NewPlatformReader returns the default TemperatureReader for non-Windows
// hosts.
func NewPlatformReader() *PlatformReader {
	return &PlatformReader{
		primary:  NewVcgencmdReader(),
		fallback: NewSensorsReader(),
	}
}

// Temperature implements TemperatureReader.
func (r *PlatformReader) Temperature(ctx context.Context) (string, error) {
	t, err := r.primary.Temperature(ctx)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", err
	}

	log.Debug().Err(err).Msg("vcgencmd unavailable, reading OS sensors instead")
	return r.fallback.Temperature(ctx)
}
