// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"fmt"
	"time"
)

// Fake channel devices for the tests in this package. The fakes record
// every transaction so tests can assert on bus traffic, and each fake
// can be switched into a failing mode.

type fakeBiasDAC struct {
	v    float64 // last programmed DAC voltage
	n    int
	fail bool
}

func (dac *fakeBiasDAC) SetVoltage(v float64) (float64, error) {
	dac.n++
	if dac.fail {
		return 0, fmt.Errorf("i2c: no acknowledge")
	}
	if v < 0 || v > 3.3 {
		return 0, fmt.Errorf("%w: %v V", ErrBounds, v)
	}
	dac.v = v
	return v, nil
}

type fakeThresholdDAC struct {
	v    [2]float64
	n    int
	fail bool
	// failOut makes only the given output fail.
	failOut DACOutput
}

func (dac *fakeThresholdDAC) SetVoltage(out DACOutput, v float64) (float64, error) {
	dac.n++
	if dac.fail && out == dac.failOut {
		return 0, fmt.Errorf("i2c: no acknowledge")
	}
	if v < 0 || v > 2.5 {
		return 0, fmt.Errorf("%w: %v V", ErrBounds, v)
	}
	dac.v[out] = v
	return v, nil
}

type fakeInputADC struct {
	v    float64
	n    int
	fail bool
}

func (adc *fakeInputADC) Voltage() (float64, error) {
	adc.n++
	if adc.fail {
		return 0, fmt.Errorf("i2c: no acknowledge")
	}
	return adc.v, nil
}

type fakeTempSensor struct {
	t    float64
	n    int
	fail bool
}

func (s *fakeTempSensor) RemoteTemperature() (float64, error) {
	s.n++
	if s.fail {
		return 0, fmt.Errorf("i2c: no acknowledge")
	}
	return s.t, nil
}

type fakeMonitor struct {
	volts map[MonitorChannel]float64
	// currents, when set, overrides the 28 V current sense voltage.
	// Tests use it to emulate the amplifier transistor.
	current func() float64

	thresholds map[MonitorChannel][2]float64
	cleared    int
	n          int
	fail       bool
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		volts: map[MonitorChannel]float64{
			MonP5VVoltage:  5.0 / p5vDividerRatio,
			MonP5VCurrent:  0,
			MonP28VCurrent: 0,
		},
		thresholds: make(map[MonitorChannel][2]float64),
	}
}

func (mon *fakeMonitor) Voltage(ch MonitorChannel) (float64, error) {
	mon.n++
	if mon.fail {
		return 0, fmt.Errorf("i2c: no acknowledge")
	}
	if ch == MonP28VCurrent && mon.current != nil {
		return mon.current(), nil
	}
	return mon.volts[ch], nil
}

func (mon *fakeMonitor) SetThresholds(ch MonitorChannel, low, high float64) error {
	if mon.fail {
		return fmt.Errorf("i2c: no acknowledge")
	}
	mon.thresholds[ch] = [2]float64{low, high}
	return nil
}

func (mon *fakeMonitor) ClearAlarm() error {
	if mon.fail {
		return fmt.Errorf("i2c: no acknowledge")
	}
	mon.cleared++
	return nil
}

type fakeEEPROM struct {
	mem    [256]byte
	eui    [6]byte
	reads  int
	writes int

	failRead  bool
	failWrite bool
	failEUI   bool
}

func (rom *fakeEEPROM) Read(offset uint8, p []byte) error {
	rom.reads++
	if rom.failRead {
		return fmt.Errorf("i2c: no acknowledge")
	}
	copy(p, rom.mem[offset:])
	return nil
}

func (rom *fakeEEPROM) Write(offset uint8, p []byte) error {
	rom.writes++
	if rom.failWrite {
		return fmt.Errorf("i2c: no acknowledge")
	}
	copy(rom.mem[offset:], p)
	return nil
}

func (rom *fakeEEPROM) EUI48() ([6]byte, error) {
	if rom.failEUI {
		return [6]byte{}, fmt.Errorf("i2c: no acknowledge")
	}
	return rom.eui, nil
}

// fakeSlot bundles the fake devices of one channel slot.
type fakeSlot struct {
	bias *fakeBiasDAC
	thr  *fakeThresholdDAC
	in   *fakeInputADC
	temp *fakeTempSensor
	mon  *fakeMonitor
	rom  *fakeEEPROM
}

func newFakeSlot() *fakeSlot {
	return &fakeSlot{
		bias: &fakeBiasDAC{},
		thr:  &fakeThresholdDAC{},
		in:   &fakeInputADC{v: 1.0},
		temp: &fakeTempSensor{t: 30.5},
		mon:  newFakeMonitor(),
		rom:  &fakeEEPROM{eui: [6]byte{0x04, 0x91, 0x62, 0x01, 0x02, 0x03}},
	}
}

// absent makes the slot fail module enumeration while its mainboard
// devices keep answering.
func (s *fakeSlot) absent() *fakeSlot {
	s.temp.fail = true
	return s
}

// transactions counts the bus transactions seen by the slot devices.
func (s *fakeSlot) transactions() int {
	return s.bias.n + s.thr.n + s.in.n + s.temp.n + s.mon.n + s.rom.reads + s.rom.writes
}

// fakeBus emulates the multiplexed I2C bus: it is both the multiplexer
// and the bus manager, routing device handles to whichever slot is
// currently selected.
type fakeBus struct {
	slots   [NumChannels]*fakeSlot
	cur     ChannelID
	selects int
	failSel bool
}

func newFakeBus() *fakeBus {
	bus := new(fakeBus)
	for i := range bus.slots {
		bus.slots[i] = newFakeSlot()
	}
	return bus
}

func (bus *fakeBus) Select(ch ChannelID) error {
	if bus.failSel {
		return fmt.Errorf("i2c: mux stuck")
	}
	bus.cur = ch
	bus.selects++
	return nil
}

func (bus *fakeBus) BiasDAC() BiasDAC                     { return bus.slots[bus.cur].bias }
func (bus *fakeBus) ThresholdDAC() ThresholdDAC           { return bus.slots[bus.cur].thr }
func (bus *fakeBus) InputPowerADC() InputPowerADC         { return bus.slots[bus.cur].in }
func (bus *fakeBus) TemperatureSensor() TemperatureSensor { return bus.slots[bus.cur].temp }
func (bus *fakeBus) PowerMonitor() PowerMonitor           { return bus.slots[bus.cur].mon }
func (bus *fakeBus) EEPROM() EEPROM                       { return bus.slots[bus.cur].rom }

var (
	_ Mux        = (*fakeBus)(nil)
	_ BusManager = (*fakeBus)(nil)
)

type fakeOutputPin struct {
	high bool
	sets int
	fail bool
}

func (p *fakeOutputPin) Set(high bool) error {
	p.sets++
	if p.fail {
		return fmt.Errorf("gpio: write failed")
	}
	p.high = high
	return nil
}

type fakeInputPin struct {
	high bool // the sense lines are active low: true means idle
	fail bool
}

func (p *fakeInputPin) Get() (bool, error) {
	if p.fail {
		return false, fmt.Errorf("gpio: read failed")
	}
	return p.high, nil
}

type fakePinSet struct {
	enable *fakeOutputPin
	signal *fakeOutputPin
	alert  *fakeInputPin
	inOvd  *fakeInputPin
	outOvd *fakeInputPin
}

func newFakePins(tx, refl AnalogPin) (*fakePinSet, *ChannelPins) {
	set := &fakePinSet{
		enable: &fakeOutputPin{high: true},
		signal: &fakeOutputPin{high: true},
		alert:  &fakeInputPin{high: true},
		inOvd:  &fakeInputPin{high: true},
		outOvd: &fakeInputPin{high: true},
	}
	pins, err := NewChannelPins(set.enable, set.signal, set.alert, set.inOvd, set.outOvd, tx, refl)
	if err != nil {
		panic(err)
	}
	return set, pins
}

// fakeSampler is the shared analog sampler. Raw counts are 12 bit with
// a 3.3 V reference.
type fakeSampler struct {
	raw  map[AnalogPin]uint16
	n    int
	fail bool
}

func (adc *fakeSampler) Sample(pin AnalogPin) (uint16, error) {
	adc.n++
	if adc.fail {
		return 0, fmt.Errorf("adc: conversion failed")
	}
	return adc.raw[pin], nil
}

func (adc *fakeSampler) Millivolts(raw uint16) float64 {
	return float64(raw) * 3300 / 4096
}

type fakeDelayer struct {
	slept time.Duration
	calls int
}

func (d *fakeDelayer) Delay(dur time.Duration) {
	d.slept += dur
	d.calls++
}
