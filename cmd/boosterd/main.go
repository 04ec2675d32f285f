// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command boosterd runs the Booster channel controller: it enumerates
// the RF channels behind the multiplexed I2C bus, serves the MQTT
// control topics, publishes telemetry and sweeps the channel interlocks.
package main // import "github.com/b787abel/booster/cmd/boosterd"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/b787abel/booster/hardware"
	"github.com/b787abel/booster/mqttctl"
	"github.com/b787abel/booster/rf"
)

func main() {
	var (
		fname = flag.String("cfg", "/etc/booster/boosterd.yaml", "path to the daemon configuration file")
	)

	flag.Parse()

	log.SetPrefix("boosterd: ")
	log.SetFlags(0)

	cfg, err := loadConfig(*fname)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(cfg *Config) (err error) {
	conn, err := hardware.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("could not open bus: %w", err)
	}
	defer conn.Close()

	mux, err := hardware.NewTCA9548(conn, hardware.AddrMux)
	if err != nil {
		return fmt.Errorf("could not bind multiplexer: %w", err)
	}

	adc, err := hardware.NewIIOSampler(cfg.IIODevice, cfg.IIOScale, cfg.samplerPins())
	if err != nil {
		return fmt.Errorf("could not bind sampler: %w", err)
	}

	pins, err := cfg.channelPins()
	if err != nil {
		return fmt.Errorf("could not bind channel pins: %w", err)
	}

	reg, err := rf.New(mux, adc, hardware.NewManager(conn), pins)
	if err != nil {
		return fmt.Errorf("could not enumerate channels: %w", err)
	}

	// A controller fault must never leave an amplifier biased: force
	// every output off at the pin level before the process dies. The
	// path takes no locks and touches no bus device.
	defer func() {
		if r := recover(); r != nil {
			reg.EmergencyStop()
			err = fmt.Errorf("fault: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli, err := mqttctl.NewClient(cfg.Broker, cfg.ID, reg, nil)
	if err != nil {
		reg.EmergencyStop()
		return err
	}
	defer cli.Close()

	log.Printf("serving %q on %q (%d channels)", cfg.ID, cfg.Broker, len(reg.Present()))

	// Each loop runs on its own goroutine, out of reach of the recover
	// above: give every one its own fault handler so a panic there still
	// parks the amplifiers before the process dies.
	fault := func(f func() error) func() error {
		return func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					reg.EmergencyStop()
					err = fmt.Errorf("fault: %v", r)
				}
			}()
			return f()
		}
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(fault(func() error {
		return sweep(ctx, reg, time.Duration(cfg.UpdatePeriod))
	}))
	grp.Go(fault(func() error {
		return cli.Telemetry(ctx, time.Duration(cfg.TelemetryPeriod))
	}))

	if err := grp.Wait(); err != nil && err != context.Canceled {
		reg.EmergencyStop()
		return fmt.Errorf("could not run control loops: %w", err)
	}

	// Orderly shutdown still parks every channel safely.
	for _, id := range reg.Present() {
		if err := reg.Disable(id); err != nil {
			log.Printf("channel %d: could not disable at shutdown: %+v", id, err)
		}
	}
	return nil
}

// sweep polls the channel interlocks once per period and mails an alert
// for every trip.
func sweep(ctx context.Context, reg *rf.Channels, period time.Duration) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if tripped := reg.Update(); len(tripped) != 0 {
				alertMail(tripped)
			}
		}
	}
}
