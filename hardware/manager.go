// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import "github.com/b787abel/booster/rf"

// DAC reference voltages of the Booster board.
const (
	biasVref    = 3.3 // DAC7571 bias DAC
	thrVref     = 2.5 // AD5627 threshold DAC, internal reference
	inputVref   = 3.3 // MCP3221 conversion reference
	monitorVref = 2.5 // ADS7924 conversion reference
)

// Manager hands out the per-channel device adapters over one shared
// SMBus connection. The multiplexer isolates the channel buses, so
// every channel answers on the same fixed addresses: a handle is valid
// for whichever channel bus is currently selected.
type Manager struct {
	conn Conn
}

var _ rf.BusManager = (*Manager)(nil)

// NewManager creates a device manager over the given bus connection.
func NewManager(conn Conn) *Manager {
	return &Manager{conn: conn}
}

func (m *Manager) BiasDAC() rf.BiasDAC {
	return NewDAC7571(m.conn, AddrBiasDAC, biasVref)
}

func (m *Manager) ThresholdDAC() rf.ThresholdDAC {
	return NewAD5627(m.conn, AddrThrDAC, thrVref)
}

func (m *Manager) InputPowerADC() rf.InputPowerADC {
	return NewMCP3221(m.conn, AddrInputADC, inputVref)
}

func (m *Manager) TemperatureSensor() rf.TemperatureSensor {
	return NewMAX6642(m.conn, AddrTemp)
}

func (m *Manager) PowerMonitor() rf.PowerMonitor {
	// Fresh instance per slot: the monitor initializes itself against
	// the selected channel bus on first use.
	return NewADS7924(m.conn, AddrMonitor, monitorVref)
}

func (m *Manager) EEPROM() rf.EEPROM {
	return NewM24AA02E48(m.conn, AddrEEPROM)
}
