// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"encoding/json"
	"fmt"
)

// PropertyID names a channel property accessible through the generic
// read/write interface. Property payloads are JSON.
type PropertyID string

const (
	PropInterlockThresholds     PropertyID = "InterlockThresholds"
	PropInputPowerTransform     PropertyID = "InputPowerTransform"
	PropOutputPowerTransform    PropertyID = "OutputPowerTransform"
	PropReflectedPowerTransform PropertyID = "ReflectedPowerTransform"
)

func (id PropertyID) valid() bool {
	switch id {
	case PropInterlockThresholds,
		PropInputPowerTransform,
		PropOutputPowerTransform,
		PropReflectedPowerTransform:
		return true
	}
	return false
}

// ParsePropertyID converts a wire-level property name into a
// PropertyID.
func ParsePropertyID(s string) (PropertyID, error) {
	id := PropertyID(s)
	if !id.valid() {
		return "", fmt.Errorf("%w: unknown property %q", ErrInvalid, s)
	}
	return id, nil
}

// InterlockThresholds is the JSON payload of the InterlockThresholds
// property, in dBm.
type InterlockThresholds struct {
	Output    float64 `json:"output"`
	Reflected float64 `json:"reflected"`
}

// ReadProperty returns the JSON encoding of the named property.
func (ch *Channel) ReadProperty(id PropertyID) ([]byte, error) {
	var v interface{}
	switch id {
	case PropInterlockThresholds:
		v = InterlockThresholds{
			Output:    ch.outputThreshold,
			Reflected: ch.reflectedThreshold,
		}
	case PropInputPowerTransform:
		v = ch.settings.Data.InputTransform
	case PropOutputPowerTransform:
		v = ch.settings.Data.OutputTransform
	case PropReflectedPowerTransform:
		v = ch.settings.Data.ReflectedTransform
	default:
		return nil, fmt.Errorf("%w: unknown property %q", ErrInvalid, id)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: property %v: %v", ErrInvalid, id, err)
	}
	return raw, nil
}

// WriteProperty decodes the JSON payload and applies it to the named
// property. Writing a power transform replaces the transform wholesale
// and, for the output and reflected paths, re-programs the interlock
// comparators so their voltages match the new calibration. The change
// is not persisted until the channel is saved.
func (ch *Channel) WriteProperty(id PropertyID, data []byte) error {
	switch id {
	case PropInterlockThresholds:
		var thr InterlockThresholds
		if err := json.Unmarshal(data, &thr); err != nil {
			return fmt.Errorf("%w: property %v: %v", ErrInvalid, id, err)
		}
		return ch.SetInterlockThresholds(thr.Output, thr.Reflected)

	case PropInputPowerTransform, PropOutputPowerTransform, PropReflectedPowerTransform:
		var t LinearTransformation
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%w: property %v: %v", ErrInvalid, id, err)
		}
		if t.Slope == 0 {
			return fmt.Errorf("%w: property %v: zero slope", ErrInvalid, id)
		}
		switch id {
		case PropInputPowerTransform:
			ch.settings.Data.InputTransform = t
			return nil
		case PropOutputPowerTransform:
			ch.settings.Data.OutputTransform = t
		default:
			ch.settings.Data.ReflectedTransform = t
		}
		return ch.SetInterlockThresholds(ch.outputThreshold, ch.reflectedThreshold)
	}
	return fmt.Errorf("%w: unknown property %q", ErrInvalid, id)
}
