// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rf implements the lifecycle of Booster RF power-amplifier
// channels: the per-channel state machine, the shared-bus access
// discipline for the multiplexed I2C bus and the shared ADC peripheral,
// the power measurement and calibration pipeline, and the persistent
// per-channel configuration store.
package rf // import "github.com/b787abel/booster/rf"

import "errors"

// NumChannels is the number of RF channel slots on a Booster mainboard.
const NumChannels = 8

// ChannelID identifies an RF channel slot. Valid values are 0 to 7 and
// map one-to-one onto the I2C bus multiplexer outputs.
type ChannelID uint8

func (id ChannelID) valid() bool { return id < NumChannels }

// ChannelIDs returns the list of all channel slot identifiers.
func ChannelIDs() []ChannelID {
	ids := make([]ChannelID, NumChannels)
	for i := range ids {
		ids[i] = ChannelID(i)
	}
	return ids
}

var (
	// ErrNotPresent is returned when the addressed channel slot holds
	// no RF module.
	ErrNotPresent = errors.New("rf: channel not present")

	// ErrBounds is returned when a value lies outside the representable
	// range of the target DAC or ADC.
	ErrBounds = errors.New("rf: value out of bounds")

	// ErrInterface is returned when a bus or device transaction fails.
	ErrInterface = errors.New("rf: device interface failure")

	// ErrInvalid is returned for malformed requests or configuration
	// payloads.
	ErrInvalid = errors.New("rf: invalid request or configuration")

	// ErrNotImplemented is reserved for intentionally unfinished paths.
	ErrNotImplemented = errors.New("rf: not implemented")
)

// errNotInstalled marks an enumeration probe that found no RF module in
// the slot. It never escapes the package: the registry converts it into
// a permanently absent slot.
var errNotInstalled = errors.New("rf: module not installed")
