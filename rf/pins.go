// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import "fmt"

// ChannelPins bundles the digital control and status lines of one RF
// channel, together with its two dedicated analog sense inputs. The
// overdrive and alert lines are active low.
type ChannelPins struct {
	EnablePower OutputPin
	SignalOn    OutputPin

	Alert           InputPin
	InputOverdrive  InputPin
	OutputOverdrive InputPin

	TxPower        AnalogPin
	ReflectedPower AnalogPin
}

// NewChannelPins takes ownership of the channel lines and drives them to
// the powered-down state.
func NewChannelPins(enablePower, signalOn OutputPin, alert, inputOvd, outputOvd InputPin, txPower, reflectedPower AnalogPin) (*ChannelPins, error) {
	pins := &ChannelPins{
		EnablePower:     enablePower,
		SignalOn:        signalOn,
		Alert:           alert,
		InputOverdrive:  inputOvd,
		OutputOverdrive: outputOvd,
		TxPower:         txPower,
		ReflectedPower:  reflectedPower,
	}
	if err := pins.powerDown(); err != nil {
		return nil, fmt.Errorf("rf: could not power down channel pins: %w", err)
	}
	return pins, nil
}

// powerDown de-asserts the signal and power enables.
func (pins *ChannelPins) powerDown() error {
	if err := pins.SignalOn.Set(false); err != nil {
		return fmt.Errorf("%w: signal-on: %v", ErrInterface, err)
	}
	if err := pins.EnablePower.Set(false); err != nil {
		return fmt.Errorf("%w: enable-power: %v", ErrInterface, err)
	}
	return nil
}
