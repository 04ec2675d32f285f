// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"
	"time"

	"github.com/b787abel/booster/rf"
)

// eui48Off is the address of the factory-programmed EUI-48 node
// identity in the device.
const eui48Off = 0xfa

// M24AA02E48 is the 2 Kbit channel EEPROM carrying the settings
// container and the factory-programmed EUI-48 identity.
type M24AA02E48 struct {
	conn Conn
	addr uint8

	// writeCycle is the internal write cycle time waited after every
	// byte write.
	writeCycle time.Duration
}

var _ rf.EEPROM = (*M24AA02E48)(nil)

// NewM24AA02E48 binds the EEPROM at the given address.
func NewM24AA02E48(conn Conn, addr uint8) *M24AA02E48 {
	return &M24AA02E48{conn: conn, addr: addr, writeCycle: 5 * time.Millisecond}
}

// Read fills p from the device starting at offset.
func (rom *M24AA02E48) Read(offset uint8, p []byte) error {
	if int(offset)+len(p) > 256 {
		return fmt.Errorf("%w: read of %d bytes at %#x", rf.ErrBounds, len(p), offset)
	}
	for i := range p {
		v, err := rom.conn.ReadReg(rom.addr, offset+uint8(i))
		if err != nil {
			return fmt.Errorf("hardware: eeprom read at %#x failed: %w", offset+uint8(i), err)
		}
		p[i] = v
	}
	return nil
}

// Write stores p to the device starting at offset, waiting out the
// device write cycle after each byte.
func (rom *M24AA02E48) Write(offset uint8, p []byte) error {
	if int(offset)+len(p) > 256 {
		return fmt.Errorf("%w: write of %d bytes at %#x", rf.ErrBounds, len(p), offset)
	}
	for i, v := range p {
		if err := rom.conn.WriteReg(rom.addr, offset+uint8(i), v); err != nil {
			return fmt.Errorf("hardware: eeprom write at %#x failed: %w", offset+uint8(i), err)
		}
		time.Sleep(rom.writeCycle)
	}
	return nil
}

// EUI48 returns the factory-programmed node identity.
func (rom *M24AA02E48) EUI48() ([6]byte, error) {
	var eui [6]byte
	if err := rom.Read(eui48Off, eui[:]); err != nil {
		return eui, err
	}
	return eui, nil
}
