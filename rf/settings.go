// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"github.com/b787abel/booster/internal/sinara"
)

// ChannelData holds the operator-tunable settings persisted in a
// channel's EEPROM. It is loaded at channel construction, mutated in RAM
// by bias, threshold and property-write commands, and written back only
// on an explicit save.
type ChannelData struct {
	ReflectedThreshold float64 // dBm
	OutputThreshold    float64 // dBm
	BiasVoltage        float64 // V
	Enabled            bool

	InputTransform     LinearTransformation
	OutputTransform    LinearTransformation
	ReflectedTransform LinearTransformation
}

// DefaultChannelData returns the hardcoded factory settings.
//
// At 100 MHz the power detectors output 35 mV/dB referenced to
// -35.6 dBm. The attenuation of each measurement path is folded into the
// transform offset; the input and reflected detectors sit behind a 1.5x
// op-amp, which changes their slope to 52.5 mV/dB.
func DefaultChannelData() ChannelData {
	return ChannelData{
		ReflectedThreshold: math.NaN(),
		OutputThreshold:    math.NaN(),
		BiasVoltage:        -3.2,
		Enabled:            false,

		OutputTransform:    NewLinearTransformation(1.0/0.035, -35.6+19.8+10.0),
		ReflectedTransform: NewLinearTransformation(1.5/0.035, -35.6+19.8+10.0),
		InputTransform:     NewLinearTransformation(1.5/0.035, -35.6+8.9),
	}
}

// validate checks the semantic invariants of a deserialized payload.
func (data *ChannelData) validate() error {
	if data.BiasVoltage < minBias || data.BiasVoltage > maxBias {
		return fmt.Errorf("%w: bias voltage %v outside [%v, %v]",
			ErrInvalid, data.BiasVoltage, minBias, maxBias)
	}
	return nil
}

// Payload layout (little endian, 37 of the 64 available bytes):
//
//	[0]     format tag
//	[1:5]   reflected threshold (f32)
//	[5:9]   output threshold (f32)
//	[9:13]  bias voltage (f32)
//	[13]    enabled flag
//	[14:38] input, output, reflected transforms (slope, offset as f32)
const dataFormat = 1

func (data *ChannelData) marshal() [sinara.BoardDataSize]byte {
	var (
		buf [sinara.BoardDataSize]byte
		f32 = func(off int, v float64) {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
		}
	)
	buf[0] = dataFormat
	f32(1, data.ReflectedThreshold)
	f32(5, data.OutputThreshold)
	f32(9, data.BiasVoltage)
	if data.Enabled {
		buf[13] = 1
	}
	for i, t := range []LinearTransformation{
		data.InputTransform, data.OutputTransform, data.ReflectedTransform,
	} {
		f32(14+8*i, t.Slope)
		f32(18+8*i, t.Offset)
	}
	return buf
}

func unmarshalChannelData(buf [sinara.BoardDataSize]byte) (ChannelData, error) {
	var (
		data ChannelData
		f32  = func(off int) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
		}
	)
	if buf[0] != dataFormat {
		return data, fmt.Errorf("%w: unknown channel data format %d", ErrInvalid, buf[0])
	}
	data.ReflectedThreshold = f32(1)
	data.OutputThreshold = f32(5)
	data.BiasVoltage = f32(9)
	data.Enabled = buf[13] == 1
	for i, t := range []*LinearTransformation{
		&data.InputTransform, &data.OutputTransform, &data.ReflectedTransform,
	} {
		t.Slope = f32(14 + 8*i)
		t.Offset = f32(18 + 8*i)
	}

	if err := data.validate(); err != nil {
		return data, err
	}
	return data, nil
}

// Settings binds a channel's in-RAM settings to its EEPROM container.
type Settings struct {
	eeprom EEPROM
	msg    *log.Logger

	Data ChannelData
}

// LoadSettings reads the channel settings from EEPROM. A container that
// cannot be read, fails its checksum or carries an invalid payload is
// self-healed: the settings fall back to the factory defaults and the
// defaults are persisted immediately, so a corrupted channel returns to
// a known-safe state on its next boot.
func LoadSettings(eeprom EEPROM, msg *log.Logger) (*Settings, error) {
	s := &Settings{
		eeprom: eeprom,
		msg:    msg,
		Data:   DefaultChannelData(),
	}

	cfg, err := s.loadContainer()
	if err == nil {
		data, derr := unmarshalChannelData(cfg.Data)
		if derr == nil {
			s.Data = data
			return s, nil
		}
		err = derr
	}

	s.msg.Printf("settings invalid, restoring defaults: %+v", err)
	s.Data = DefaultChannelData()
	if err := s.Save(); err != nil {
		return nil, fmt.Errorf("rf: could not persist default settings: %w", err)
	}
	return s, nil
}

// Save persists the current settings to EEPROM, replacing the whole
// payload region of the container and recomputing its checksum.
func (s *Settings) Save() error {
	cfg, err := s.loadContainer()
	if err != nil {
		cfg = sinara.Default(sinara.RfChannel)
	}
	cfg.Data = s.Data.marshal()
	if err := s.eeprom.Write(0, cfg.Bytes()); err != nil {
		return fmt.Errorf("%w: could not write settings container: %v", ErrInterface, err)
	}
	return nil
}

func (s *Settings) loadContainer() (*sinara.Config, error) {
	raw := make([]byte, sinara.Size)
	if err := s.eeprom.Read(0, raw); err != nil {
		return nil, fmt.Errorf("%w: could not read settings container: %v", ErrInterface, err)
	}
	return sinara.Parse(raw)
}
