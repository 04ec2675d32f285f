// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/b787abel/booster/hardware"
	"github.com/b787abel/booster/rf"
)

// Config is the boosterd configuration file.
type Config struct {
	ID     string `yaml:"id"`     // device identifier, prefixes every MQTT topic
	Broker string `yaml:"broker"` // MQTT broker URL, eg. tcp://localhost:1883

	I2CBus    int     `yaml:"i2c-bus"`
	IIODevice string  `yaml:"iio-device"` // sysfs IIO directory of the shared ADC
	IIOScale  float64 `yaml:"iio-scale"`  // millivolts per raw count
	GPIORoot  string  `yaml:"gpio-root"`

	UpdatePeriod    Duration `yaml:"update-period"`
	TelemetryPeriod Duration `yaml:"telemetry-period"`

	Channels [rf.NumChannels]ChannelConfig `yaml:"channels"`
}

// ChannelConfig maps one channel slot onto its GPIO lines and analog
// inputs.
type ChannelConfig struct {
	EnablePower     int `yaml:"enable-power"`
	SignalOn        int `yaml:"signal-on"`
	Alert           int `yaml:"alert"`
	InputOverdrive  int `yaml:"input-overdrive"`
	OutputOverdrive int `yaml:"output-overdrive"`

	TxPower      string `yaml:"tx-power"`        // analog pin name, eg. PA0
	ReflectedPwr string `yaml:"reflected-power"` // analog pin name, eg. PA1
	TxIIO        int    `yaml:"tx-iio"`          // IIO channel of the tx detector
	ReflectedIIO int    `yaml:"reflected-iio"`   // IIO channel of the reflected detector
}

// Duration is a time.Duration parsed from its yaml string form.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func loadConfig(fname string) (*Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("could not read config %q: %w", fname, err)
	}

	cfg := &Config{
		Broker:          "tcp://localhost:1883",
		GPIORoot:        "/sys/class/gpio",
		IIOScale:        3300.0 / 4096,
		UpdatePeriod:    Duration(100 * time.Millisecond),
		TelemetryPeriod: Duration(1 * time.Second),
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %q: %w", fname, err)
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("config %q: missing device id", fname)
	}
	return cfg, nil
}

// samplerPins builds the analog-pin to IIO-channel map of the shared
// sampler.
func (cfg *Config) samplerPins() map[rf.AnalogPin]int {
	pins := make(map[rf.AnalogPin]int, 2*rf.NumChannels)
	for _, ch := range cfg.Channels {
		if tx, err := rf.ParseAnalogPin(ch.TxPower); err == nil {
			pins[tx] = ch.TxIIO
		}
		if refl, err := rf.ParseAnalogPin(ch.ReflectedPwr); err == nil {
			pins[refl] = ch.ReflectedIIO
		}
	}
	return pins
}

// channelPins binds the GPIO lines of every channel slot.
func (cfg *Config) channelPins() ([rf.NumChannels]*rf.ChannelPins, error) {
	var pins [rf.NumChannels]*rf.ChannelPins
	for i, ch := range cfg.Channels {
		tx, err := rf.ParseAnalogPin(ch.TxPower)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
		refl, err := rf.ParseAnalogPin(ch.ReflectedPwr)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}

		gpio := func(n int) (*hardware.GPIOPin, error) {
			return hardware.NewGPIOPin(cfg.GPIORoot, n)
		}
		enable, err := gpio(ch.EnablePower)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
		signal, err := gpio(ch.SignalOn)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
		alert, err := gpio(ch.Alert)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
		inOvd, err := gpio(ch.InputOverdrive)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
		outOvd, err := gpio(ch.OutputOverdrive)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}

		pins[i], err = rf.NewChannelPins(enable, signal, alert, inOvd, outOvd, tx, refl)
		if err != nil {
			return pins, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return pins, nil
}
