// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"

	"github.com/b787abel/booster/rf"
)

// MCP3221 reads the 12-bit input power detector ADC of a channel. The
// device has no register map: a read returns the conversion result MSB
// first.
type MCP3221 struct {
	conn Conn
	addr uint8
	vref float64
}

var _ rf.InputPowerADC = (*MCP3221)(nil)

// NewMCP3221 binds the ADC at the given address. vref is the conversion
// reference voltage.
func NewMCP3221(conn Conn, addr uint8, vref float64) *MCP3221 {
	return &MCP3221{conn: conn, addr: addr, vref: vref}
}

// Voltage reads one conversion and returns the input voltage.
func (adc *MCP3221) Voltage() (float64, error) {
	w, err := adc.conn.ReadWord(adc.addr, 0)
	if err != nil {
		return 0, fmt.Errorf("hardware: mcp3221 read failed: %w", err)
	}
	// The SMBus word read assembles the bytes low first; the device
	// sends MSB first.
	code := (w>>8 | w<<8) & 0x0fff
	return float64(code) / 4096 * adc.vref, nil
}

// ADS7924 register map subset.
const (
	ads7924ModeCntrl = 0x00
	ads7924IntCntrl  = 0x01
	ads7924Data0U    = 0x02
	ads7924ULR0      = 0x0a
	ads7924IntConfig = 0x12
	ads7924Reset     = 0x16

	// Continuous auto-scan with sleep, all four inputs.
	ads7924ModeAutoScan = 0xcc
)

// ADS7924 is the 4-input 12-bit supply power monitor of a channel. It
// continuously scans its inputs and asserts the channel alert line when
// a conversion leaves its programmed limit window.
//
// The device is reset and its scan started on first use, so one adapter
// instance binds to whichever channel bus is selected at that moment.
// The bus manager hands out a fresh instance per channel slot.
type ADS7924 struct {
	conn    Conn
	addr    uint8
	vref    float64
	started bool
}

var _ rf.PowerMonitor = (*ADS7924)(nil)

// NewADS7924 binds the monitor at the given address. vref is the
// conversion reference voltage.
func NewADS7924(conn Conn, addr uint8, vref float64) *ADS7924 {
	return &ADS7924{conn: conn, addr: addr, vref: vref}
}

func (mon *ADS7924) init() error {
	if mon.started {
		return nil
	}
	if err := mon.conn.WriteReg(mon.addr, ads7924Reset, 0xaa); err != nil {
		return fmt.Errorf("hardware: ads7924 did not respond: %w", err)
	}
	if err := mon.conn.WriteReg(mon.addr, ads7924ModeCntrl, ads7924ModeAutoScan); err != nil {
		return fmt.Errorf("hardware: could not start ads7924 scan: %w", err)
	}
	mon.started = true
	return nil
}

// Voltage returns the latest conversion of the given input.
func (mon *ADS7924) Voltage(ch rf.MonitorChannel) (float64, error) {
	if ch > 3 {
		return 0, fmt.Errorf("%w: monitor input %d", rf.ErrInvalid, ch)
	}
	if err := mon.init(); err != nil {
		return 0, err
	}
	reg := uint8(ads7924Data0U + 2*uint8(ch))
	hi, err := mon.conn.ReadReg(mon.addr, reg)
	if err != nil {
		return 0, fmt.Errorf("hardware: ads7924 read failed: %w", err)
	}
	lo, err := mon.conn.ReadReg(mon.addr, reg+1)
	if err != nil {
		return 0, fmt.Errorf("hardware: ads7924 read failed: %w", err)
	}
	// 12-bit result, left justified across the two data registers.
	code := uint16(hi)<<4 | uint16(lo)>>4
	return float64(code) / 4096 * mon.vref, nil
}

// SetThresholds programs the alarm limit window of the given input. The
// comparator works on the 8 MSBs of the conversion.
func (mon *ADS7924) SetThresholds(ch rf.MonitorChannel, low, high float64) error {
	if ch > 3 {
		return fmt.Errorf("%w: monitor input %d", rf.ErrInvalid, ch)
	}
	if err := mon.init(); err != nil {
		return err
	}
	ulr, err := limitCode(high, mon.vref)
	if err != nil {
		return err
	}
	llr, err := limitCode(low, mon.vref)
	if err != nil {
		return err
	}
	reg := uint8(ads7924ULR0 + 2*uint8(ch))
	if err := mon.conn.WriteReg(mon.addr, reg, ulr); err != nil {
		return fmt.Errorf("hardware: ads7924 limit write failed: %w", err)
	}
	if err := mon.conn.WriteReg(mon.addr, reg+1, llr); err != nil {
		return fmt.Errorf("hardware: ads7924 limit write failed: %w", err)
	}
	// Alarm after one out-of-window conversion on the configured inputs.
	if err := mon.conn.WriteReg(mon.addr, ads7924IntConfig, 0x20); err != nil {
		return fmt.Errorf("hardware: ads7924 limit write failed: %w", err)
	}
	return nil
}

// ClearAlarm acknowledges a pending alarm, releasing the alert line.
func (mon *ADS7924) ClearAlarm() error {
	if _, err := mon.conn.ReadReg(mon.addr, ads7924IntCntrl); err != nil {
		return fmt.Errorf("hardware: could not clear ads7924 alarm: %w", err)
	}
	return nil
}

// limitCode converts a limit voltage into the 8-bit comparator code.
func limitCode(v, vref float64) (uint8, error) {
	if v < 0 || v > vref {
		return 0, fmt.Errorf("%w: %v V outside [0, %v]", rf.ErrBounds, v, vref)
	}
	code := uint16(v / vref * 256)
	if code > 0xff {
		code = 0xff
	}
	return uint8(code), nil
}
