// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"fmt"
	"strings"
	"time"
)

// This file declares the collaborator contracts the channel core depends
// on. Register-level drivers live outside this package (package hardware
// provides SMBus-backed implementations); the core only requires the
// read/write behavior below.

// BiasDAC drives the gate-bias DAC of a channel. The DAC sits behind an
// inverting driver on a negative rail, so the programmed voltage is the
// negation of the resulting bias voltage.
type BiasDAC interface {
	// SetVoltage programs the DAC output and returns the voltage
	// actually applied after quantization. Values outside the DAC
	// range return ErrBounds.
	SetVoltage(v float64) (float64, error)
}

// DACOutput selects one of the two outputs of the interlock threshold DAC.
type DACOutput uint8

const (
	OutputA DACOutput = iota // reflected-power comparator threshold
	OutputB                  // output-power comparator threshold
)

// ThresholdDAC drives the dual comparator-threshold DAC of a channel.
type ThresholdDAC interface {
	// SetVoltage programs one DAC output and returns the voltage
	// actually applied after quantization. Values outside the DAC
	// range return ErrBounds.
	SetVoltage(out DACOutput, v float64) (float64, error)
}

// InputPowerADC reads the input power detector of a channel through the
// channel's dedicated I2C ADC.
type InputPowerADC interface {
	Voltage() (float64, error)
}

// TemperatureSensor reads the remote temperature diode of a channel.
type TemperatureSensor interface {
	RemoteTemperature() (float64, error)
}

// MonitorChannel identifies one input of the supply power monitor.
type MonitorChannel uint8

const (
	MonP28VCurrent MonitorChannel = 0 // 28 V rail current sense
	MonP5VCurrent  MonitorChannel = 1 // 5 V rail current sense
	MonP5VVoltage  MonitorChannel = 3 // divided 5 V rail voltage
)

// PowerMonitor reads the supply rails of a channel and drives the alarm
// comparator behind the channel alert line.
type PowerMonitor interface {
	Voltage(ch MonitorChannel) (float64, error)
	SetThresholds(ch MonitorChannel, low, high float64) error
	ClearAlarm() error
}

// EEPROM is the channel's non-volatile settings store.
type EEPROM interface {
	Read(offset uint8, p []byte) error
	Write(offset uint8, p []byte) error
	// EUI48 returns the factory-programmed MAC identity of the module.
	EUI48() ([6]byte, error)
}

// Mux selects one of the multiplexed channel buses onto the shared
// physical I2C bus.
type Mux interface {
	Select(ch ChannelID) error
}

// Sampler is the shared ADC peripheral sampling the analog power
// detector pins. It is owned by the channel registry and lent to one
// channel operation at a time.
type Sampler interface {
	// Sample converts one analog pin and returns the raw count.
	Sample(pin AnalogPin) (uint16, error)
	// Millivolts converts a raw count into millivolts.
	Millivolts(raw uint16) float64
}

// OutputPin is an exclusively owned digital output line.
type OutputPin interface {
	Set(high bool) error
}

// InputPin is an exclusively owned digital input line.
type InputPin interface {
	Get() (bool, error)
}

// Delayer blocks the calling goroutine for the given duration. Channel
// operations use it for bias settling; the control loop deliberately
// blocks for the duration.
type Delayer interface {
	Delay(d time.Duration)
}

// SleepDelayer implements Delayer with time.Sleep.
type SleepDelayer struct{}

func (SleepDelayer) Delay(d time.Duration) { time.Sleep(d) }

// AnalogPin names one of the analog sense inputs routed to the shared
// sampler. A pin is bound to its channel at construction time; there is
// no runtime pin reconfiguration.
type AnalogPin uint8

const (
	PA0 AnalogPin = iota
	PA1
	PA2
	PA3
	PC0
	PC1
	PC2
	PC3
	PF3
	PF4
	PF5
	PF6
	PF7
	PF8
	PF9
	PF10
)

var analogPinNames = []string{
	"PA0", "PA1", "PA2", "PA3",
	"PC0", "PC1", "PC2", "PC3",
	"PF3", "PF4", "PF5", "PF6", "PF7", "PF8", "PF9", "PF10",
}

func (p AnalogPin) String() string {
	if int(p) < len(analogPinNames) {
		return analogPinNames[p]
	}
	return fmt.Sprintf("AnalogPin(%d)", uint8(p))
}

// ParseAnalogPin resolves a pin name such as "PA0" or "PF10".
func ParseAnalogPin(name string) (AnalogPin, error) {
	for i, n := range analogPinNames {
		if strings.EqualFold(n, name) {
			return AnalogPin(i), nil
		}
	}
	return 0, fmt.Errorf("rf: unknown analog pin %q: %w", name, ErrInvalid)
}
