package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ptgott/etoolkit/device"
	"github.com/ptgott/etoolkit/email"
	"github.com/ptgott/etoolkit/logging"
	"github.com/ptgott/etoolkit/userconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Diagnostics from the library packages go to stderr with the file and
	// line number. The log file configured below is separate.
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	sendMail := flag.Bool(
		"sendmail",
		false,
		"email the device snapshot using the \"email\" config section",
	)
	level := flag.String(
		"level",
		"info",
		`diagnostic log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f, err := os.Open(*configPath)
	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	if err := run(ctx, &checkedConfig, *sendMail); err != nil {
		log.Error().Err(err).Msg("smoke test failed")
		os.Exit(1)
	}
}

// run takes a device snapshot, records each value in the log file, prints
// the snapshot, and optionally mails it.
func run(ctx context.Context, c *userconfig.Meta, sendMail bool) error {
	lg, err := logging.New(c.Log)
	if err != nil {
		return err
	}
	defer lg.Close()

	dev := device.New(c.Device.Options()...)
	s, err := dev.Snapshot(ctx, c.Device.CPUInterval)
	if err != nil {
		lg.Errorf(true, "can't read the device: %v", err)
		return err
	}

	lg.Infof(false, "mac=%v hostname=%v", s.MAC, s.Hostname)
	lg.Infof(false, "date=%v time=%v", s.Date, s.Time)
	lg.Infof(false, "memory total=%vMB used=%vMB", s.Memory.TotalMB, s.Memory.UsedMB)
	lg.Infof(false, "ip=%v", s.IP)
	lg.Infof(false, "cpu total=%v%% per-core=%v", s.CPU.Total, s.CPU.PerCore)
	lg.Infof(false, "temperature=%v", s.Temperature)

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))

	if !sendMail {
		return nil
	}
	if c.EmailSettings == nil {
		return fmt.Errorf("-sendmail needs an \"email\" section in the config")
	}

	mc, err := email.Dial(*c.EmailSettings)
	if err != nil {
		return err
	}
	err = mc.Send(email.Message{
		Subject: fmt.Sprintf("Device report from %v", s.Hostname),
		Body:    string(b),
	}, true)
	if err != nil {
		return err
	}
	lg.Info("sent the device report by email", true)
	return nil
}
