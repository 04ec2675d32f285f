// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"

	"github.com/b787abel/booster/rf"
)

// DAC7571 drives the 12-bit bias DAC of a channel. The write frame is
// two bytes: power-down bits and the four data MSBs, then the low data
// byte.
type DAC7571 struct {
	conn Conn
	addr uint8
	vref float64
}

var _ rf.BiasDAC = (*DAC7571)(nil)

// NewDAC7571 binds the bias DAC at the given address. vref is the DAC
// reference voltage (3.3 V on a Booster mainboard).
func NewDAC7571(conn Conn, addr uint8, vref float64) *DAC7571 {
	return &DAC7571{conn: conn, addr: addr, vref: vref}
}

// SetVoltage programs the DAC output and returns the quantized voltage
// actually applied.
func (dac *DAC7571) SetVoltage(v float64) (float64, error) {
	code, err := dacCode(v, dac.vref)
	if err != nil {
		return 0, err
	}
	if err := dac.conn.WriteReg(dac.addr, uint8(code>>8), uint8(code)); err != nil {
		return 0, fmt.Errorf("hardware: dac7571 write failed: %w", err)
	}
	return dacVolts(code, dac.vref), nil
}

// AD5627 drives the dual 12-bit interlock threshold DAC. Each frame is
// a command byte selecting the output followed by the left-justified
// data word.
type AD5627 struct {
	conn Conn
	addr uint8
	vref float64
}

var _ rf.ThresholdDAC = (*AD5627)(nil)

// NewAD5627 binds the threshold DAC at the given address. vref is the
// DAC full-scale voltage.
func NewAD5627(conn Conn, addr uint8, vref float64) *AD5627 {
	return &AD5627{conn: conn, addr: addr, vref: vref}
}

// write-and-update commands for the two DAC outputs.
const (
	ad5627CmdA = 0x18
	ad5627CmdB = 0x19
)

// SetVoltage programs one DAC output and returns the quantized voltage
// actually applied.
func (dac *AD5627) SetVoltage(out rf.DACOutput, v float64) (float64, error) {
	code, err := dacCode(v, dac.vref)
	if err != nil {
		return 0, err
	}
	cmd := uint8(ad5627CmdA)
	if out == rf.OutputB {
		cmd = ad5627CmdB
	}
	// The device expects the data word MSB first; the SMBus word write
	// sends the low byte first, so the bytes are pre-swapped.
	word := uint16(code>>8) | uint16(code&0xff)<<8
	if err := dac.conn.WriteWord(dac.addr, cmd, word); err != nil {
		return 0, fmt.Errorf("hardware: ad5627 write failed: %w", err)
	}
	return dacVolts(code, dac.vref), nil
}

// dacCode converts a voltage to a 12-bit DAC code.
func dacCode(v, vref float64) (uint16, error) {
	if v < 0 || v > vref {
		return 0, fmt.Errorf("%w: %v V outside [0, %v]", rf.ErrBounds, v, vref)
	}
	code := uint16(v / vref * 4096)
	if code > 0xfff {
		code = 0xfff
	}
	return code, nil
}

// dacVolts converts a 12-bit DAC code back to the output voltage.
func dacVolts(code uint16, vref float64) float64 {
	return float64(code) / 4096 * vref
}
