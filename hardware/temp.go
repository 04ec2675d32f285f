// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"

	"github.com/b787abel/booster/rf"
)

// MAX6642 register map subset.
const (
	max6642LocalTemp  = 0x00
	max6642RemoteTemp = 0x01
	max6642RemoteExt  = 0x10
)

// MAX6642 reads the channel temperature sensor: a local die sensor plus
// a remote diode placed at the amplifier transistor.
type MAX6642 struct {
	conn Conn
	addr uint8
}

var _ rf.TemperatureSensor = (*MAX6642)(nil)

// NewMAX6642 binds the sensor at the given address.
func NewMAX6642(conn Conn, addr uint8) *MAX6642 {
	return &MAX6642{conn: conn, addr: addr}
}

// RemoteTemperature returns the amplifier transistor temperature in
// degrees Celsius, at 0.25 degree resolution.
func (s *MAX6642) RemoteTemperature() (float64, error) {
	msb, err := s.conn.ReadReg(s.addr, max6642RemoteTemp)
	if err != nil {
		return 0, fmt.Errorf("hardware: max6642 read failed: %w", err)
	}
	ext, err := s.conn.ReadReg(s.addr, max6642RemoteExt)
	if err != nil {
		return 0, fmt.Errorf("hardware: max6642 read failed: %w", err)
	}
	return float64(msb) + float64(ext>>6)*0.25, nil
}

// LocalTemperature returns the sensor die temperature in degrees
// Celsius.
func (s *MAX6642) LocalTemperature() (float64, error) {
	msb, err := s.conn.ReadReg(s.addr, max6642LocalTemp)
	if err != nil {
		return 0, fmt.Errorf("hardware: max6642 read failed: %w", err)
	}
	return float64(msb), nil
}
