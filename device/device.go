package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// DefaultProbeAddress is dialed (never written to) to find out which
	// local address the OS would route outbound traffic from.
	DefaultProbeAddress = "8.8.8.8:80"
	// DefaultCPUInterval is how long CPU utilization is sampled for
	DefaultCPUInterval = time.Second

	dateLayout   = "2006-01-02"
	timeLayout   = "15:04:05"
	probeTimeout = 2 * time.Second
)

// Memory is physical memory in MiB, rounded to the nearest integer. UsedMB
// never exceeds TotalMB.
type Memory struct {
	TotalMB int `json:"totalMB" yaml:"totalMB"`
	UsedMB  int `json:"usedMB" yaml:"usedMB"`
}

// CPUUsage is utilization in percent, for all cores combined and per core
type CPUUsage struct {
	Total   float64   `json:"total" yaml:"total"`
	PerCore []float64 `json:"perCore" yaml:"perCore"`
}

// Snapshot holds the answer to every query at (roughly) one point in time.
type Snapshot struct {
	MAC         string   `json:"mac" yaml:"mac"`
	IP          string   `json:"ip" yaml:"ip"`
	Hostname    string   `json:"hostname" yaml:"hostname"`
	Date        string   `json:"date" yaml:"date"`
	Time        string   `json:"time" yaml:"time"`
	Memory      Memory   `json:"memory" yaml:"memory"`
	CPU         CPUUsage `json:"cpu" yaml:"cpu"`
	Temperature string   `json:"temperature" yaml:"temperature"`
}

// resolver is the part of *net.Resolver used to find the FQDN
type resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Info runs host queries. The zero value isn't usable; create one with New.
type Info struct {
	now           func() time.Time
	probeAddr     string
	goos          string
	thermal       TemperatureReader
	nodeID        func() []byte
	hostname      func() (string, error)
	resolver      resolver
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	cpuPercent    func(context.Context, time.Duration, bool) ([]float64, error)
}

// Option customizes an Info
type Option func(*Info)

// WithProbeAddress changes the UDP address dialed by IP.
func WithProbeAddress(addr string) Option {
	return func(i *Info) {
		i.probeAddr = addr
	}
}

// WithTemperatureReader replaces the platform temperature plugin.
func WithTemperatureReader(r TemperatureReader) Option {
	return func(i *Info) {
		i.thermal = r
	}
}

// WithClock sets the source of the current time used by Date and Time.
func WithClock(now func() time.Time) Option {
	return func(i *Info) {
		i.now = now
	}
}

// New returns an Info that queries the running host.
func New(opts ...Option) *Info {
	i := &Info{
		now:           time.Now,
		probeAddr:     DefaultProbeAddress,
		goos:          runtime.GOOS,
		thermal:       NewPlatformReader(),
		nodeID:        uuid.NodeID,
		hostname:      os.Hostname,
		resolver:      net.DefaultResolver,
		virtualMemory: mem.VirtualMemoryWithContext,
		cpuPercent:    cpu.PercentWithContext,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// MAC returns the node's hardware address, the same one used for
// time-based UUIDs, as colon-separated lowercase hex octets.
func (i *Info) MAC() (string, error) {
	id := i.nodeID()
	if len(id) != 6 {
		return "", fmt.Errorf("node ID has %v bytes, expected 6", len(id))
	}
	return net.HardwareAddr(id).String(), nil
}

// IP returns the IPv4 address this host would use to reach the probe
// address, or an empty string if that can't be determined. No packets are
// sent: connecting a UDP socket only selects a route.
func (i *Info) IP(ctx context.Context) string {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "udp4", i.probeAddr)
	if err != nil {
		log.Warn().
			Str("probe", i.probeAddr).
			Err(err).
			Msg("can't determine the local IP address")
		return ""
	}
	defer conn.Close()

	a, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || a.IP == nil {
		return ""
	}
	return a.IP.String()
}

// Hostname returns the fully qualified domain name of the host. The first
// reverse-DNS name for any of the host's addresses that contains a dot wins;
// without one, the plain hostname is returned.
func (i *Info) Hostname(ctx context.Context) (string, error) {
	h, err := i.hostname()
	if err != nil {
		return "", err
	}

	addrs, err := i.resolver.LookupHost(ctx, h)
	if err != nil {
		log.Debug().Str("hostname", h).Err(err).Msg("can't resolve the hostname")
		return h, nil
	}

	for _, a := range addrs {
		names, err := i.resolver.LookupAddr(ctx, a)
		if err != nil {
			continue
		}
		for _, n := range names {
			n = strings.TrimSuffix(n, ".")
			if strings.Contains(n, ".") {
				return n, nil
			}
		}
	}
	return h, nil
}

// Date returns the local date as YYYY-MM-DD
func (i *Info) Date() string {
	return i.now().Local().Format(dateLayout)
}

// Time returns the local time of day as HH:MM:SS
func (i *Info) Time() string {
	return i.now().Local().Format(timeLayout)
}

// Memory returns total and used physical memory.
func (i *Info) Memory(ctx context.Context) (Memory, error) {
	vm, err := i.virtualMemory(ctx)
	if err != nil {
		return Memory{}, fmt.Errorf("can't read memory statistics: %w", err)
	}

	m := Memory{
		TotalMB: toMB(vm.Total),
		UsedMB:  toMB(vm.Used),
	}
	if m.UsedMB > m.TotalMB {
		m.UsedMB = m.TotalMB
	}
	return m, nil
}

// toMB rounds half to even, so exactly 512.5 MiB is 512.
func toMB(b uint64) int {
	return int(math.RoundToEven(float64(b) / units.MiB))
}

// CPU samples utilization over interval, first for all cores combined and
// then for each core, so the call takes about twice the interval. A
// non-positive interval means DefaultCPUInterval.
func (i *Info) CPU(ctx context.Context, interval time.Duration) (CPUUsage, error) {
	if interval <= 0 {
		interval = DefaultCPUInterval
	}

	total, err := i.cpuPercent(ctx, interval, false)
	if err != nil {
		return CPUUsage{}, fmt.Errorf("can't sample total CPU usage: %w", err)
	}
	if len(total) == 0 {
		return CPUUsage{}, errors.New("no total CPU usage reported")
	}

	per, err := i.cpuPercent(ctx, interval, true)
	if err != nil {
		return CPUUsage{}, fmt.Errorf("can't sample per-core CPU usage: %w", err)
	}

	return CPUUsage{
		Total:   total[0],
		PerCore: per,
	}, nil
}

// Temperature returns the CPU temperature as reported by the platform
// plugin, e.g. "48.3'C". Windows hosts always get Unknown.
func (i *Info) Temperature(ctx context.Context) (string, error) {
	if i.goos == "windows" || i.thermal == nil {
		return Unknown, nil
	}
	return i.thermal.Temperature(ctx)
}

// Snapshot runs every query and returns the first error encountered. The IP
// and temperature are best-effort: a failed IP lookup leaves the IP empty and
// a failed temperature reading is logged and reported as Unknown.
func (i *Info) Snapshot(ctx context.Context, interval time.Duration) (Snapshot, error) {
	var (
		s   Snapshot
		err error
	)

	if s.MAC, err = i.MAC(); err != nil {
		return Snapshot{}, err
	}
	s.IP = i.IP(ctx)
	if s.Hostname, err = i.Hostname(ctx); err != nil {
		return Snapshot{}, err
	}

	now := i.now()
	s.Date = now.Local().Format(dateLayout)
	s.Time = now.Local().Format(timeLayout)

	if s.Memory, err = i.Memory(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.CPU, err = i.CPU(ctx, interval); err != nil {
		return Snapshot{}, err
	}
	if s.Temperature, err = i.Temperature(ctx); err != nil {
		log.Warn().Err(err).Msg("can't read the CPU temperature")
		s.Temperature = Unknown
	}
	return s, nil
}
