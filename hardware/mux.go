// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"

	"github.com/b787abel/booster/rf"
)

// TCA9548 drives the 8-way I2C bus multiplexer isolating the channel
// buses from each other. Its single control register is a one-hot
// downstream enable mask.
type TCA9548 struct {
	conn Conn
	addr uint8
}

var _ rf.Mux = (*TCA9548)(nil)

// NewTCA9548 binds the multiplexer at the given address and disconnects
// all downstream buses.
func NewTCA9548(conn Conn, addr uint8) (*TCA9548, error) {
	mux := &TCA9548{conn: conn, addr: addr}
	if err := mux.write(0); err != nil {
		return nil, fmt.Errorf("hardware: tca9548 did not respond: %w", err)
	}
	return mux, nil
}

// Select connects the given channel bus, disconnecting all others.
func (mux *TCA9548) Select(ch rf.ChannelID) error {
	if err := mux.write(1 << uint(ch)); err != nil {
		return fmt.Errorf("hardware: could not select channel %d: %w", ch, err)
	}
	return nil
}

func (mux *TCA9548) write(mask uint8) error {
	// The device has no register map: every written byte lands in the
	// control register, so the command byte carries the mask as well.
	return mux.conn.WriteReg(mux.addr, mask, mask)
}
