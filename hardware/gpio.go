// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/b787abel/booster/rf"
)

// GPIOPin drives one exported sysfs GPIO line. The same type serves as
// an output (Set) or input (Get) pin depending on the direction the
// line was exported with.
type GPIOPin struct {
	value string
}

var (
	_ rf.OutputPin = (*GPIOPin)(nil)
	_ rf.InputPin  = (*GPIOPin)(nil)
)

// NewGPIOPin binds the exported GPIO with the given number below the
// sysfs root (usually /sys/class/gpio).
func NewGPIOPin(root string, n int) (*GPIOPin, error) {
	value := filepath.Join(root, fmt.Sprintf("gpio%d", n), "value")
	if _, err := os.Stat(value); err != nil {
		return nil, fmt.Errorf("hardware: gpio %d not exported: %w", n, err)
	}
	return &GPIOPin{value: value}, nil
}

// Set drives the line level.
func (p *GPIOPin) Set(high bool) error {
	v := []byte("0\n")
	if high {
		v = []byte("1\n")
	}
	if err := os.WriteFile(p.value, v, 0644); err != nil {
		return fmt.Errorf("hardware: could not drive %s: %w", p.value, err)
	}
	return nil
}

// Get reads the line level.
func (p *GPIOPin) Get() (bool, error) {
	raw, err := os.ReadFile(p.value)
	if err != nil {
		return false, fmt.Errorf("hardware: could not read %s: %w", p.value, err)
	}
	v := bytes.TrimSpace(raw)
	return len(v) > 0 && v[0] == '1', nil
}
