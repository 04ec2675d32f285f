// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hardware provides SMBus-backed implementations of the device
// capability interfaces consumed by package rf: the channel-bus
// multiplexer, the bias and threshold DACs, the input-power ADC, the
// temperature sensor, the supply power monitor and the identity EEPROM,
// plus sysfs adapters for the digital control lines and the shared
// analog sampler.
//
// The adapters are minimal read/write shims so the daemon can be wired
// to real silicon; register-level timing fidelity is not a goal.
package hardware // import "github.com/b787abel/booster/hardware"

import (
	"fmt"

	"github.com/go-daq/smbus"
)

// Default device addresses on a Booster channel bus.
const (
	AddrMux      = 0x70 // TCA9548 bus multiplexer (mainboard)
	AddrBiasDAC  = 0x4c // DAC7571 bias DAC (mainboard)
	AddrThrDAC   = 0x0c // AD5627 interlock threshold DAC
	AddrInputADC = 0x4d // MCP3221 input power detector ADC
	AddrTemp     = 0x4a // MAX6642 temperature sensor
	AddrMonitor  = 0x48 // ADS7924 supply power monitor
	AddrEEPROM   = 0x50 // 24AA02E48 settings and identity EEPROM
)

// Conn is the SMBus connection surface the adapters drive. *smbus.Conn
// implements it.
type Conn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	ReadWord(addr, reg uint8) (uint16, error)
	WriteWord(addr, reg uint8, w uint16) error
	Close() error
}

var _ Conn = (*smbus.Conn)(nil)

// Open opens the I2C bus device with the given Linux bus number.
func Open(bus int) (Conn, error) {
	conn, err := smbus.Open(bus, AddrMux)
	if err != nil {
		return nil, fmt.Errorf("hardware: could not open i2c bus %d: %w", bus, err)
	}
	return conn, nil
}
