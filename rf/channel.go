// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

const (
	// minBias and maxBias bound the gate bias voltage representable by
	// the bias DAC behind its inverting driver.
	minBias = -3.3
	maxBias = 0.0

	// pinchOffBias is the mandatory safe bias: the amplifier transistor
	// conducts no current. Every disable path re-applies it.
	pinchOffBias = -3.3

	// biasSettleTime covers one full acquisition cycle of the power
	// monitor (10.04 ms), so a current readback taken after a bias
	// write is guaranteed up to date.
	biasSettleTime = 11 * time.Millisecond

	// MaximumReflectedPower is the largest reflected power, in dBm, the
	// hardware can withstand (1 W).
	MaximumReflectedPower = 30.0
)

// Fixed measurement-path geometry. Operator recalibration happens in the
// linear transforms; these constants never change for a given board.
const (
	p5vDividerRatio = 2.5 // 15k/10k divider ahead of the monitor

	// LT6106 current monitors: Iload = Vout * Rin / Rsns / Rout.
	senseResistance    = 0.100 // ohm
	senseInputRes      = 100.0 // ohm
	p28vSenseOutputRes = 4300.0
	p5vSenseOutputRes  = 6200.0

	p28vCurrentLimit = 0.500 // A
	p5vCurrentLimit  = 0.300 // A
)

// ChannelState is the derived operating state of a channel. It is
// computed from pin levels and the shadow bias, never persisted.
type ChannelState uint8

const (
	Disabled ChannelState = iota
	Powered               // biased, output muted
	Enabled               // biased, output live
	Tripped               // fault sensed, pending forced disable
)

func (s ChannelState) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Powered:
		return "Powered"
	case Enabled:
		return "Enabled"
	case Tripped:
		return "Tripped"
	}
	return fmt.Sprintf("ChannelState(%d)", uint8(s))
}

func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PowerMeasurements reports the supply rail measurements of a channel.
type PowerMeasurements struct {
	VP5v0mp  float64 `json:"v_p5v0mp"`  // 5 V rail voltage (V)
	IP28v0ch float64 `json:"i_p28v0ch"` // 28 V rail current (A)
	IP5v0ch  float64 `json:"i_p5v0ch"`  // 5 V rail current (A)
}

// ChannelStatus is the full telemetry snapshot of a channel.
type ChannelStatus struct {
	State           ChannelState `json:"state"`
	InputOverdrive  bool         `json:"input_overdrive"`
	OutputOverdrive bool         `json:"output_overdrive"`
	Alert           bool         `json:"alert"`

	Temperature    float64 `json:"temperature"`
	InputPower     float64 `json:"input_power"`
	OutputPower    float64 `json:"output_power"`
	ReflectedPower float64 `json:"reflected_power"`

	VP5v0mp  float64 `json:"v_p5v0mp"`
	IP28v0ch float64 `json:"i_p28v0ch"`
	IP5v0ch  float64 `json:"i_p5v0ch"`

	OutputInterlockThreshold    float64 `json:"output_interlock_threshold"`
	ReflectedInterlockThreshold float64 `json:"reflected_interlock_threshold"`
	BiasVoltage                 float64 `json:"bias_voltage"`
}

// Channel manages one RF output channel: its exclusively owned devices
// and pins, the power state machine and the measurement pipeline.
type Channel struct {
	msg   *log.Logger
	dev   Devices
	pins  *ChannelPins
	delay Delayer

	settings *Settings

	// Shadow values reflecting the last successful hardware write. The
	// bias DAC and the threshold DAC have no readback path.
	biasVoltage        float64
	outputThreshold    float64 // dBm
	reflectedThreshold float64 // dBm
	powered            bool
	signalOn           bool
}

// newChannel probes the devices of the currently selected channel bus
// and, if an RF module answers, brings the channel up in the safe
// disabled state with its persisted settings applied.
func newChannel(msg *log.Logger, mgr BusManager, pins *ChannelPins, delay Delayer) (*Channel, error) {
	dev, err := probeDevices(mgr)
	if err != nil {
		return nil, err
	}

	settings, err := LoadSettings(dev.EEPROM, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: settings store: %v", errNotInstalled, err)
	}

	ch := &Channel{
		msg:      msg,
		dev:      dev,
		pins:     pins,
		delay:    delay,
		settings: settings,

		biasVoltage:        pinchOffBias, // parked there by the probe
		outputThreshold:    math.NaN(),
		reflectedThreshold: math.NaN(),
	}

	output, reflected := settings.Data.OutputThreshold, settings.Data.ReflectedThreshold
	if math.IsNaN(output) {
		output = 0
	}
	if math.IsNaN(reflected) {
		reflected = 0
	}
	if err := ch.SetInterlockThresholds(output, reflected); err != nil {
		return nil, fmt.Errorf("%w: threshold DAC: %v", errNotInstalled, err)
	}

	// Protection limits for the supply monitor alarm comparator. The
	// monitor samples divided/sensed voltages, so the limits are
	// expressed in its input domain.
	for _, lim := range []struct {
		ch        MonitorChannel
		low, high float64
	}{
		{MonP5VVoltage, 4.5 / p5vDividerRatio, 5.5 / p5vDividerRatio},
		{MonP28VCurrent, 0, p28vCurrentLimit * senseResistance * p28vSenseOutputRes / senseInputRes},
		{MonP5VCurrent, 0, p5vCurrentLimit * senseResistance * p5vSenseOutputRes / senseInputRes},
	} {
		if err := dev.Monitor.SetThresholds(lim.ch, lim.low, lim.high); err != nil {
			return nil, fmt.Errorf("rf: could not configure power monitor alarm: %w", err)
		}
	}
	if err := dev.Monitor.ClearAlarm(); err != nil {
		return nil, fmt.Errorf("rf: could not clear power monitor alarm: %w", err)
	}

	// Channels that were enabled when last saved come back up on boot.
	if settings.Data.Enabled {
		if err := ch.StartPowerup(true); err != nil {
			msg.Printf("could not re-enable channel at boot: %+v", err)
		}
	}

	return ch, nil
}

// StartPowerup biases the channel on. With output set, the signal path
// is enabled as well; otherwise the output stays muted.
func (ch *Channel) StartPowerup(output bool) error {
	if err := ch.pins.EnablePower.Set(true); err != nil {
		return fmt.Errorf("%w: enable-power: %v", ErrInterface, err)
	}
	ch.powered = true

	if err := ch.SetBias(ch.settings.Data.BiasVoltage); err != nil {
		return err
	}

	if output {
		if err := ch.pins.SignalOn.Set(true); err != nil {
			return fmt.Errorf("%w: signal-on: %v", ErrInterface, err)
		}
		ch.signalOn = true
		ch.settings.Data.Enabled = true
	}
	return nil
}

// Disable powers the channel down. The digital outputs are de-asserted
// and the bias DAC is unconditionally forced back to pinch-off, even if
// the shadow bias already sits there: disable is idempotent and always
// re-applies the safe value. The pin actions do not depend on the bus
// and execute even when the DAC write fails.
func (ch *Channel) Disable() error {
	pinErr := ch.pins.powerDown()
	ch.powered = false
	ch.signalOn = false
	ch.settings.Data.Enabled = false

	if _, err := ch.dev.Bias.SetVoltage(-pinchOffBias); err != nil {
		if pinErr != nil {
			return pinErr
		}
		return fmt.Errorf("%w: bias DAC: %v", ErrInterface, err)
	}
	ch.biasVoltage = pinchOffBias
	return pinErr
}

// SetBias programs the gate bias voltage. The DAC output is the
// negation of the bias (the driver sits on a negative rail). On a range
// violation the shadow value is left untouched.
func (ch *Channel) SetBias(v float64) error {
	applied, err := ch.dev.Bias.SetVoltage(-v)
	if err != nil {
		if errors.Is(err, ErrBounds) {
			return fmt.Errorf("%w: bias voltage %v V", ErrBounds, v)
		}
		return fmt.Errorf("%w: bias DAC: %v", ErrInterface, err)
	}
	ch.biasVoltage = -applied
	ch.settings.Data.BiasVoltage = -applied
	return nil
}

// BiasVoltage returns the shadow bias voltage. The DAC has no readback
// path: bias is write-through, never read back.
func (ch *Channel) BiasVoltage() float64 { return ch.biasVoltage }

// SetInterlockThresholds programs the output and reflected power
// interlock comparators. Each threshold is converted to a comparator
// voltage through its own power transform, reflecting the distinct
// analog front ends of the two paths. The two DAC writes are
// independent: a failure on one does not roll back the other, and each
// failure is reported against its own threshold.
func (ch *Channel) SetInterlockThresholds(output, reflected float64) error {
	var errs []error

	if reflected > MaximumReflectedPower {
		errs = append(errs, fmt.Errorf("reflected threshold: %w: %v dBm exceeds %v dBm",
			ErrBounds, reflected, MaximumReflectedPower))
	} else if err := ch.setThreshold(OutputA, reflected,
		ch.settings.Data.ReflectedTransform,
		&ch.reflectedThreshold, &ch.settings.Data.ReflectedThreshold); err != nil {
		errs = append(errs, fmt.Errorf("reflected threshold: %w", err))
	}

	if err := ch.setThreshold(OutputB, output,
		ch.settings.Data.OutputTransform,
		&ch.outputThreshold, &ch.settings.Data.OutputThreshold); err != nil {
		errs = append(errs, fmt.Errorf("output threshold: %w", err))
	}

	return errors.Join(errs...)
}

func (ch *Channel) setThreshold(out DACOutput, dbm float64, t LinearTransformation, shadow, stored *float64) error {
	applied, err := ch.dev.Thresholds.SetVoltage(out, t.Invert(dbm))
	if err != nil {
		if errors.Is(err, ErrBounds) {
			return err
		}
		return fmt.Errorf("%w: threshold DAC: %v", ErrInterface, err)
	}
	*shadow = t.Apply(applied)
	*stored = *shadow
	return nil
}

// OutputInterlockThreshold returns the shadow output power interlock
// threshold in dBm.
func (ch *Channel) OutputInterlockThreshold() float64 { return ch.outputThreshold }

// ReflectedInterlockThreshold returns the shadow reflected power
// interlock threshold in dBm.
func (ch *Channel) ReflectedInterlockThreshold() float64 { return ch.reflectedThreshold }

// IsOverdriven reports whether either overdrive sense line is asserted.
// Both lines are active low.
func (ch *Channel) IsOverdriven() (bool, error) {
	in, err := ch.pins.InputOverdrive.Get()
	if err != nil {
		return false, fmt.Errorf("%w: input-overdrive: %v", ErrInterface, err)
	}
	out, err := ch.pins.OutputOverdrive.Get()
	if err != nil {
		return false, fmt.Errorf("%w: output-overdrive: %v", ErrInterface, err)
	}
	return !in || !out, nil
}

// IsAlarmed reports whether the power monitor alert line is asserted
// (active low).
func (ch *Channel) IsAlarmed() (bool, error) {
	v, err := ch.pins.Alert.Get()
	if err != nil {
		return false, fmt.Errorf("%w: alert: %v", ErrInterface, err)
	}
	return !v, nil
}

// State derives the operating state of the channel from the pin levels
// and the shadow bias.
func (ch *Channel) State() (ChannelState, error) {
	if !ch.powered {
		return Disabled, nil
	}
	over, err := ch.IsOverdriven()
	if err != nil {
		return Disabled, err
	}
	alarm, err := ch.IsAlarmed()
	if err != nil {
		return Disabled, err
	}
	switch {
	case over || alarm:
		return Tripped, nil
	case ch.signalOn && ch.biasVoltage > pinchOffBias:
		return Enabled, nil
	}
	return Powered, nil
}

// Update polls the interlock sense lines once and, if a fault is
// asserted while the channel is powered, forces the channel to the
// disabled state. It reports whether a trip occurred.
func (ch *Channel) Update() (bool, error) {
	if !ch.powered {
		return false, nil
	}
	over, err := ch.IsOverdriven()
	if err != nil {
		return false, err
	}
	alarm, err := ch.IsAlarmed()
	if err != nil {
		return false, err
	}
	if !over && !alarm {
		return false, nil
	}
	if err := ch.Disable(); err != nil {
		return true, err
	}
	return true, nil
}

// Temperature returns the channel temperature in degrees Celsius.
func (ch *Channel) Temperature() (float64, error) {
	t, err := ch.dev.Temperature.RemoteTemperature()
	if err != nil {
		return 0, fmt.Errorf("%w: temperature sensor: %v", ErrInterface, err)
	}
	return t, nil
}

// InputPower returns the channel input power in dBm.
func (ch *Channel) InputPower() (float64, error) {
	v, err := ch.dev.InputPower.Voltage()
	if err != nil {
		return 0, fmt.Errorf("%w: input power ADC: %v", ErrInterface, err)
	}
	return ch.settings.Data.InputTransform.Apply(v), nil
}

// OutputPower samples the output power detector through the shared ADC
// and returns the output power in dBm.
func (ch *Channel) OutputPower(adc Sampler) (float64, error) {
	return ch.detectorPower(adc, ch.pins.TxPower, ch.settings.Data.OutputTransform)
}

// ReflectedPower samples the reflected power detector through the
// shared ADC and returns the reflected power in dBm.
func (ch *Channel) ReflectedPower(adc Sampler) (float64, error) {
	return ch.detectorPower(adc, ch.pins.ReflectedPower, ch.settings.Data.ReflectedTransform)
}

func (ch *Channel) detectorPower(adc Sampler, pin AnalogPin, t LinearTransformation) (float64, error) {
	raw, err := adc.Sample(pin)
	if err != nil {
		return 0, fmt.Errorf("%w: analog sample %v: %v", ErrInterface, pin, err)
	}
	volts := adc.Millivolts(raw) / 1e3
	return t.Apply(volts), nil
}

// PowerMeasurements reads the three supply rail inputs of the power
// monitor and applies the fixed sense geometry.
func (ch *Channel) PowerMeasurements() (PowerMeasurements, error) {
	var m PowerMeasurements

	v, err := ch.dev.Monitor.Voltage(MonP5VVoltage)
	if err != nil {
		return m, fmt.Errorf("%w: power monitor: %v", ErrInterface, err)
	}
	m.VP5v0mp = v * p5vDividerRatio

	v, err = ch.dev.Monitor.Voltage(MonP28VCurrent)
	if err != nil {
		return m, fmt.Errorf("%w: power monitor: %v", ErrInterface, err)
	}
	m.IP28v0ch = v * senseInputRes / senseResistance / p28vSenseOutputRes

	v, err = ch.dev.Monitor.Voltage(MonP5VCurrent)
	if err != nil {
		return m, fmt.Errorf("%w: power monitor: %v", ErrInterface, err)
	}
	m.IP5v0ch = v * senseInputRes / senseResistance / p5vSenseOutputRes

	return m, nil
}

// P28vCurrent returns the 28 V rail drain current in amperes.
func (ch *Channel) P28vCurrent() (float64, error) {
	v, err := ch.dev.Monitor.Voltage(MonP28VCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: power monitor: %v", ErrInterface, err)
	}
	return v * senseInputRes / senseResistance / p28vSenseOutputRes, nil
}

// Status assembles the full telemetry snapshot of the channel.
func (ch *Channel) Status(adc Sampler) (ChannelStatus, error) {
	var (
		st  ChannelStatus
		err error
	)
	if st.State, err = ch.State(); err != nil {
		return st, err
	}

	in, err := ch.pins.InputOverdrive.Get()
	if err != nil {
		return st, fmt.Errorf("%w: input-overdrive: %v", ErrInterface, err)
	}
	out, err := ch.pins.OutputOverdrive.Get()
	if err != nil {
		return st, fmt.Errorf("%w: output-overdrive: %v", ErrInterface, err)
	}
	alert, err := ch.pins.Alert.Get()
	if err != nil {
		return st, fmt.Errorf("%w: alert: %v", ErrInterface, err)
	}
	st.InputOverdrive = !in
	st.OutputOverdrive = !out
	st.Alert = !alert

	if st.Temperature, err = ch.Temperature(); err != nil {
		return st, err
	}
	if st.InputPower, err = ch.InputPower(); err != nil {
		return st, err
	}
	if st.OutputPower, err = ch.OutputPower(adc); err != nil {
		return st, err
	}
	if st.ReflectedPower, err = ch.ReflectedPower(adc); err != nil {
		return st, err
	}

	pm, err := ch.PowerMeasurements()
	if err != nil {
		return st, err
	}
	st.VP5v0mp = pm.VP5v0mp
	st.IP28v0ch = pm.IP28v0ch
	st.IP5v0ch = pm.IP5v0ch

	st.OutputInterlockThreshold = ch.outputThreshold
	st.ReflectedInterlockThreshold = ch.reflectedThreshold
	st.BiasVoltage = ch.biasVoltage
	return st, nil
}

// Save persists the channel settings to EEPROM.
func (ch *Channel) Save() error { return ch.settings.Save() }

// TuneBias walks the gate bias up from pinch-off until the 28 V rail
// drain current reaches target (in amperes), settling for one power
// monitor cycle before each readback. The search runs in two phases:
// 100 mV steps to bracket the target, then 10 mV steps from one coarse
// step below. On failure the bias is restored to pinch-off.
func (ch *Channel) TuneBias(target float64) (vgs, ids float64, err error) {
	if target <= 0 || target > p28vCurrentLimit {
		return 0, 0, fmt.Errorf("%w: target drain current %v A", ErrBounds, target)
	}
	if !ch.powered {
		return 0, 0, fmt.Errorf("%w: channel not powered", ErrInvalid)
	}

	const (
		coarseStep = 0.100
		fineStep   = 0.010
		maxSteps   = 64
	)

	step := func(v float64) (float64, error) {
		if err := ch.SetBias(v); err != nil {
			return 0, err
		}
		ch.delay.Delay(biasSettleTime)
		return ch.P28vCurrent()
	}
	abort := func(err error) (float64, float64, error) {
		if _, serr := ch.dev.Bias.SetVoltage(-pinchOffBias); serr == nil {
			ch.biasVoltage = pinchOffBias
		}
		return 0, 0, err
	}

	v := pinchOffBias
	ids, err = step(v)
	if err != nil {
		return abort(err)
	}

	n := 0
	for phase, incr := range []float64{coarseStep, fineStep} {
		if phase == 1 {
			// Back off one coarse step and re-approach at fine
			// resolution.
			if v-coarseStep >= pinchOffBias {
				v -= coarseStep
				if ids, err = step(v); err != nil {
					return abort(err)
				}
			}
		}
		for ids < target {
			v += incr
			if v > maxBias {
				return abort(fmt.Errorf("%w: drain current %v A not reachable", ErrBounds, target))
			}
			if n++; n > maxSteps {
				return abort(fmt.Errorf("%w: bias tuning did not converge", ErrBounds))
			}
			if ids, err = step(v); err != nil {
				return abort(err)
			}
		}
	}

	return ch.biasVoltage, ids, nil
}
