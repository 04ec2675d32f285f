// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/b787abel/booster/rf"
)

// IIOSampler exposes a Linux industrial-I/O ADC as the shared analog
// sampler for the channel power detector pins. Each analog pin maps to
// one in_voltage<N>_raw channel of the device.
type IIOSampler struct {
	dir   string
	scale float64 // millivolts per count
	pins  map[rf.AnalogPin]int
}

var _ rf.Sampler = (*IIOSampler)(nil)

// NewIIOSampler binds the IIO device directory (such as
// /sys/bus/iio/devices/iio:device0). scale converts a raw count into
// millivolts; pins maps each analog pin to its IIO channel index.
func NewIIOSampler(dir string, scale float64, pins map[rf.AnalogPin]int) (*IIOSampler, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("hardware: could not open iio device %q: %w", dir, err)
	}
	return &IIOSampler{dir: dir, scale: scale, pins: pins}, nil
}

// Sample converts the given analog pin once and returns the raw count.
func (adc *IIOSampler) Sample(pin rf.AnalogPin) (uint16, error) {
	idx, ok := adc.pins[pin]
	if !ok {
		return 0, fmt.Errorf("%w: analog pin %v not mapped", rf.ErrInvalid, pin)
	}
	name := filepath.Join(adc.dir, fmt.Sprintf("in_voltage%d_raw", idx))
	raw, err := os.ReadFile(name)
	if err != nil {
		return 0, fmt.Errorf("hardware: could not sample %v: %w", pin, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("hardware: invalid sample for %v: %w", pin, err)
	}
	return uint16(v), nil
}

// Millivolts converts a raw count into millivolts.
func (adc *IIOSampler) Millivolts(raw uint16) float64 {
	return float64(raw) * adc.scale
}
