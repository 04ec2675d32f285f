// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
)

// Option configures a Channels registry.
type Option func(*Channels)

// WithLogger sets the logger used by the registry and its channels.
func WithLogger(msg *log.Logger) Option {
	return func(reg *Channels) { reg.msg = msg }
}

// WithDelayer sets the delayer used for bias settling waits. The
// default sleeps on the wall clock.
func WithDelayer(d Delayer) Option {
	return func(reg *Channels) { reg.delay = d }
}

// Channels is the registry of the eight RF channel slots. It serializes
// all channel access behind one mutex and pairs every device
// transaction with the bus multiplexer selection for that channel, so a
// transaction can never reach the wrong channel's devices.
type Channels struct {
	msg   *log.Logger
	mux   Mux
	adc   Sampler
	delay Delayer

	mu    sync.Mutex
	chans [NumChannels]*Channel

	// Output pins of every slot, absent ones included, cached for the
	// emergency stop path.
	outs []OutputPin
}

// New enumerates the eight channel slots. Slots where no RF module
// answers are logged and left absent; operations on them return
// ErrNotPresent. A mainboard device failing to respond aborts the
// enumeration.
func New(mux Mux, adc Sampler, mgr BusManager, pins [NumChannels]*ChannelPins, opts ...Option) (*Channels, error) {
	reg := &Channels{
		msg:   log.New(os.Stdout, "rf: ", 0),
		mux:   mux,
		adc:   adc,
		delay: SleepDelayer{},
	}
	for _, opt := range opts {
		opt(reg)
	}

	for _, id := range ChannelIDs() {
		p := pins[id]
		if p == nil {
			return nil, fmt.Errorf("rf: no pins for channel %d", id)
		}
		reg.outs = append(reg.outs, p.SignalOn, p.EnablePower)

		if err := mux.Select(id); err != nil {
			return nil, fmt.Errorf("rf: could not select bus for channel %d: %w", id, err)
		}
		ch, err := newChannel(reg.msg, mgr, p, reg.delay)
		if err != nil {
			if errors.Is(err, errNotInstalled) {
				reg.msg.Printf("channel %d did not enumerate: %+v", id, err)
				continue
			}
			return nil, fmt.Errorf("rf: could not initialize channel %d: %w", id, err)
		}
		reg.msg.Printf("channel %d enumerated", id)
		reg.chans[id] = ch
	}

	return reg, nil
}

// Map runs f against the given channel with the registry lock held and
// the channel's bus selected. Absent channels return ErrNotPresent
// before any bus transaction. A multiplexer selection failure is a
// wiring fault the firmware cannot recover from and panics.
func (reg *Channels) Map(id ChannelID, f func(ch *Channel, adc Sampler) error) error {
	if !id.valid() {
		return fmt.Errorf("%w: channel %d", ErrInvalid, id)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.mapLocked(id, f)
}

func (reg *Channels) mapLocked(id ChannelID, f func(ch *Channel, adc Sampler) error) error {
	ch := reg.chans[id]
	if ch == nil {
		return fmt.Errorf("%w: channel %d", ErrNotPresent, id)
	}
	if err := reg.mux.Select(id); err != nil {
		panic(fmt.Errorf("rf: could not select bus for channel %d: %w", id, err))
	}
	return f(ch, reg.adc)
}

// Present returns the identifiers of the enumerated channels.
func (reg *Channels) Present() []ChannelID {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var ids []ChannelID
	for _, id := range ChannelIDs() {
		if reg.chans[id] != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Enable powers a channel up with its output live.
func (reg *Channels) Enable(id ChannelID) error {
	return reg.Map(id, func(ch *Channel, _ Sampler) error {
		return ch.StartPowerup(true)
	})
}

// Power powers a channel up with its output muted.
func (reg *Channels) Power(id ChannelID) error {
	return reg.Map(id, func(ch *Channel, _ Sampler) error {
		return ch.StartPowerup(false)
	})
}

// Disable powers a channel down and forces its bias to pinch-off.
func (reg *Channels) Disable(id ChannelID) error {
	return reg.Map(id, func(ch *Channel, _ Sampler) error {
		return ch.Disable()
	})
}

// State returns the derived operating state of a channel.
func (reg *Channels) State(id ChannelID) (ChannelState, error) {
	var st ChannelState
	err := reg.Map(id, func(ch *Channel, _ Sampler) error {
		var err error
		st, err = ch.State()
		return err
	})
	return st, err
}

// Temperature returns the channel temperature in degrees Celsius.
func (reg *Channels) Temperature(id ChannelID) (float64, error) {
	var t float64
	err := reg.Map(id, func(ch *Channel, _ Sampler) error {
		var err error
		t, err = ch.Temperature()
		return err
	})
	return t, err
}

// SetBias programs the gate bias of a channel and, after the settling
// time of the power monitor, reads back the resulting drain current. It
// returns the applied bias voltage and the drain current in amperes.
func (reg *Channels) SetBias(id ChannelID, v float64) (vgs, ids float64, err error) {
	err = reg.Map(id, func(ch *Channel, _ Sampler) error {
		if err := ch.SetBias(v); err != nil {
			return err
		}
		reg.delay.Delay(biasSettleTime)
		cur, err := ch.P28vCurrent()
		if err != nil {
			return err
		}
		vgs = ch.BiasVoltage()
		ids = cur
		return nil
	})
	return vgs, ids, err
}

// Tune walks the gate bias of a channel to the target drain current in
// amperes and returns the final bias voltage and current.
func (reg *Channels) Tune(id ChannelID, current float64) (vgs, ids float64, err error) {
	err = reg.Map(id, func(ch *Channel, _ Sampler) error {
		var terr error
		vgs, ids, terr = ch.TuneBias(current)
		return terr
	})
	return vgs, ids, err
}

// Status assembles the telemetry snapshot of a channel.
func (reg *Channels) Status(id ChannelID) (ChannelStatus, error) {
	var st ChannelStatus
	err := reg.Map(id, func(ch *Channel, adc Sampler) error {
		var err error
		st, err = ch.Status(adc)
		return err
	})
	return st, err
}

// Save persists the settings of a channel to its EEPROM.
func (reg *Channels) Save(id ChannelID) error {
	return reg.Map(id, func(ch *Channel, _ Sampler) error {
		return ch.Save()
	})
}

// ReadProperty returns the JSON encoding of a channel property.
func (reg *Channels) ReadProperty(id ChannelID, prop PropertyID) ([]byte, error) {
	var raw []byte
	err := reg.Map(id, func(ch *Channel, _ Sampler) error {
		var err error
		raw, err = ch.ReadProperty(prop)
		return err
	})
	return raw, err
}

// WriteProperty applies a JSON payload to a channel property.
func (reg *Channels) WriteProperty(id ChannelID, prop PropertyID, data []byte) error {
	return reg.Map(id, func(ch *Channel, _ Sampler) error {
		return ch.WriteProperty(prop, data)
	})
}

// Update sweeps every present channel once, sensing interlock trips and
// forcing tripped channels to the disabled state. A failing channel is
// logged and skipped so one fault cannot stall the sweep. It returns
// the channels that tripped during this sweep.
func (reg *Channels) Update() []ChannelID {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var tripped []ChannelID
	for _, id := range ChannelIDs() {
		if reg.chans[id] == nil {
			continue
		}
		err := reg.mapLocked(id, func(ch *Channel, _ Sampler) error {
			trip, err := ch.Update()
			if trip {
				tripped = append(tripped, id)
				reg.msg.Printf("channel %d: interlock tripped, disabling", id)
			}
			return err
		})
		if err != nil {
			reg.msg.Printf("channel %d: monitor sweep failed: %+v", id, err)
		}
	}
	return tripped
}

// EmergencyStop forces every channel output off directly at the pin
// level. It is meant for the process fault handler: it takes no lock
// and touches no bus device, because the in-memory state cannot be
// trusted at fault time. Pin errors are ignored; the remaining pins are
// always driven.
func (reg *Channels) EmergencyStop() {
	for _, pin := range reg.outs {
		_ = pin.Set(false)
	}
}
