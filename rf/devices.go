// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import "fmt"

// BusManager hands out the per-channel device handles of the shared I2C
// bus. Because the multiplexer isolates the channels, every channel uses
// the same fixed address range: the handles returned here are valid for
// whichever channel bus is currently selected.
type BusManager interface {
	BiasDAC() BiasDAC
	ThresholdDAC() ThresholdDAC
	InputPowerADC() InputPowerADC
	TemperatureSensor() TemperatureSensor
	PowerMonitor() PowerMonitor
	EEPROM() EEPROM
}

// Devices bundles the peripheral handles exclusively owned by one RF
// channel. A Devices value is constructed once during enumeration and
// never reassigned.
type Devices struct {
	Bias        BiasDAC
	Thresholds  ThresholdDAC
	InputPower  InputPowerADC
	Temperature TemperatureSensor
	Monitor     PowerMonitor
	EEPROM      EEPROM
}

// probeDevices verifies that the channel devices answer on the currently
// selected bus.
//
// The bias DAC and the power monitor live on the Booster mainboard: if
// either fails to respond, the board itself is faulty and enumeration
// must abort. The remaining devices live on the removable RF module; any
// of them failing to respond means no module is installed in the slot,
// which is reported as errNotInstalled.
func probeDevices(mgr BusManager) (Devices, error) {
	dev := Devices{
		Bias:        mgr.BiasDAC(),
		Thresholds:  mgr.ThresholdDAC(),
		InputPower:  mgr.InputPowerADC(),
		Temperature: mgr.TemperatureSensor(),
		Monitor:     mgr.PowerMonitor(),
		EEPROM:      mgr.EEPROM(),
	}

	// Mainboard devices. Park the bias DAC at pinch-off while probing.
	if _, err := dev.Bias.SetVoltage(-pinchOffBias); err != nil {
		return dev, fmt.Errorf("rf: bias DAC did not respond: %w", err)
	}
	if _, err := dev.Monitor.Voltage(MonP5VVoltage); err != nil {
		return dev, fmt.Errorf("rf: power monitor did not respond: %w", err)
	}

	// RF module devices.
	if _, err := dev.Temperature.RemoteTemperature(); err != nil {
		return dev, fmt.Errorf("%w: temperature sensor: %v", errNotInstalled, err)
	}
	if _, err := dev.InputPower.Voltage(); err != nil {
		return dev, fmt.Errorf("%w: input power ADC: %v", errNotInstalled, err)
	}
	if _, err := dev.EEPROM.EUI48(); err != nil {
		return dev, fmt.Errorf("%w: identity EEPROM: %v", errNotInstalled, err)
	}

	return dev, nil
}
