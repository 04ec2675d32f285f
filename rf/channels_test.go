// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"errors"
	"math"
	"testing"
)

type testRig struct {
	bus   *fakeBus
	adc   *fakeSampler
	sets  [NumChannels]*fakePinSet
	delay *fakeDelayer
}

func newTestRegistry(t *testing.T, absent ...ChannelID) (*Channels, *testRig) {
	t.Helper()
	rig := &testRig{
		bus:   newFakeBus(),
		adc:   &fakeSampler{raw: make(map[AnalogPin]uint16)},
		delay: &fakeDelayer{},
	}
	for _, id := range absent {
		rig.bus.slots[id].absent()
	}

	var pins [NumChannels]*ChannelPins
	for i := range pins {
		tx := AnalogPin(2 * i)
		rig.sets[i], pins[i] = newFakePins(tx, tx+1)
		rig.adc.raw[tx] = 2048
		rig.adc.raw[tx+1] = 1024
	}

	reg, err := New(rig.bus, rig.adc, rig.bus, pins,
		WithLogger(testMsg), WithDelayer(rig.delay))
	if err != nil {
		t.Fatalf("could not create registry: %+v", err)
	}
	return reg, rig
}

func TestRegistryEnumeration(t *testing.T) {
	reg, _ := newTestRegistry(t, 2, 5)

	got := reg.Present()
	want := []ChannelID{0, 1, 3, 4, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("invalid present set: got=%v, want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invalid present set: got=%v, want=%v", got, want)
		}
	}
}

func TestRegistryAbsentChannel(t *testing.T) {
	reg, rig := newTestRegistry(t, 2)

	n := rig.bus.slots[2].transactions()
	sel := rig.bus.selects

	for name, err := range map[string]error{
		"enable":  reg.Enable(2),
		"disable": reg.Disable(2),
		"save":    reg.Save(2),
	} {
		if !errors.Is(err, ErrNotPresent) {
			t.Fatalf("%s: invalid error: got=%v, want=%v", name, err, ErrNotPresent)
		}
	}
	if _, err := reg.Temperature(2); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("temperature: invalid error: got=%v", err)
	}
	if _, _, err := reg.SetBias(2, -1.6); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("set-bias: invalid error: got=%v", err)
	}

	// Operations on an absent slot must not touch the bus, not even to
	// select it.
	if got := rig.bus.slots[2].transactions(); got != n {
		t.Fatalf("absent channel saw %d bus transactions", got-n)
	}
	if rig.bus.selects != sel {
		t.Fatalf("absent channel operation selected the bus")
	}
}

func TestRegistryInvalidChannel(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Enable(8); !errors.Is(err, ErrInvalid) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrInvalid)
	}
}

func TestRegistryBusSelection(t *testing.T) {
	reg, rig := newTestRegistry(t)

	// Every operation selects the channel bus before any transaction.
	for _, id := range []ChannelID{3, 6, 0} {
		if _, err := reg.Temperature(id); err != nil {
			t.Fatalf("channel %d: could not read temperature: %+v", id, err)
		}
		if got := rig.bus.cur; got != id {
			t.Fatalf("invalid bus selection: got=%d, want=%d", got, id)
		}
	}
}

func TestRegistrySetBias(t *testing.T) {
	reg, rig := newTestRegistry(t)
	slot := rig.bus.slots[4]
	slot.mon.volts[MonP28VCurrent] = 0.15 * senseResistance * p28vSenseOutputRes / senseInputRes

	calls := rig.delay.calls
	vgs, ids, err := reg.SetBias(4, -1.6)
	if err != nil {
		t.Fatalf("could not set bias: %+v", err)
	}
	if math.Abs(vgs-(-1.6)) > 1e-9 {
		t.Fatalf("invalid bias: got=%v, want=-1.6", vgs)
	}
	if math.Abs(ids-0.15) > 1e-9 {
		t.Fatalf("invalid drain current: got=%v, want=0.15", ids)
	}
	// The current readback waits out one monitor acquisition cycle.
	if rig.delay.calls == calls {
		t.Fatalf("no settling delay before the current readback")
	}
}

func TestRegistryTripSweep(t *testing.T) {
	reg, rig := newTestRegistry(t, 7)

	for _, id := range []ChannelID{1, 3} {
		if err := reg.Enable(id); err != nil {
			t.Fatalf("could not enable channel %d: %+v", id, err)
		}
	}

	if tripped := reg.Update(); len(tripped) != 0 {
		t.Fatalf("spurious trips: %v", tripped)
	}

	// Channel 3 overdrives; channel 1 stays healthy.
	rig.sets[3].inOvd.high = false
	tripped := reg.Update()
	if len(tripped) != 1 || tripped[0] != 3 {
		t.Fatalf("invalid trip set: got=%v, want=[3]", tripped)
	}
	if st, _ := reg.State(3); st != Disabled {
		t.Fatalf("tripped channel not disabled: got=%v", st)
	}
	if st, _ := reg.State(1); st != Enabled {
		t.Fatalf("healthy channel disturbed: got=%v", st)
	}
}

func TestRegistrySaveReload(t *testing.T) {
	reg, rig := newTestRegistry(t)

	if _, _, err := reg.SetBias(6, -1.6); err != nil {
		t.Fatalf("could not set bias: %+v", err)
	}
	if err := reg.Enable(6); err != nil {
		t.Fatalf("could not enable channel: %+v", err)
	}
	if err := reg.Save(6); err != nil {
		t.Fatalf("could not save channel: %+v", err)
	}

	// Re-enumerate against the same EEPROM contents: the channel comes
	// back enabled with its saved bias.
	var pins [NumChannels]*ChannelPins
	var sets [NumChannels]*fakePinSet
	for i := range pins {
		sets[i], pins[i] = newFakePins(AnalogPin(2*i), AnalogPin(2*i+1))
	}
	reg2, err := New(rig.bus, rig.adc, rig.bus, pins,
		WithLogger(testMsg), WithDelayer(rig.delay))
	if err != nil {
		t.Fatalf("could not re-enumerate: %+v", err)
	}
	if st, _ := reg2.State(6); st != Enabled {
		t.Fatalf("saved channel did not come back enabled: got=%v", st)
	}
	if got, want := rig.bus.slots[6].bias.v, 1.6; math.Abs(got-want) > 1e-6 {
		t.Fatalf("saved bias not restored: got=%v V, want=%v V", got, want)
	}
	if !sets[6].signal.high {
		t.Fatalf("signal path not re-enabled at boot")
	}
}

func TestRegistryStatus(t *testing.T) {
	reg, _ := newTestRegistry(t)
	st, err := reg.Status(0)
	if err != nil {
		t.Fatalf("could not read status: %+v", err)
	}
	if st.State != Disabled {
		t.Fatalf("invalid state: got=%v, want=%v", st.State, Disabled)
	}
	if math.Abs(st.Temperature-30.5) > 1e-9 {
		t.Fatalf("invalid temperature: got=%v", st.Temperature)
	}
}

func TestRegistryProperties(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if err := reg.WriteProperty(0, PropInterlockThresholds, []byte(`{"output":20,"reflected":10}`)); err != nil {
		t.Fatalf("could not write property: %+v", err)
	}
	raw, err := reg.ReadProperty(0, PropInterlockThresholds)
	if err != nil {
		t.Fatalf("could not read property: %+v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("empty property payload")
	}
}

func TestRegistryEmergencyStop(t *testing.T) {
	reg, rig := newTestRegistry(t, 4)

	for _, id := range []ChannelID{0, 1} {
		if err := reg.Enable(id); err != nil {
			t.Fatalf("could not enable channel %d: %+v", id, err)
		}
	}
	// One pin refusing to switch must not stop the others.
	rig.sets[0].signal.fail = true

	reg.EmergencyStop()
	for i, set := range rig.sets {
		if i == 0 {
			continue
		}
		if set.signal.high || set.enable.high {
			t.Fatalf("channel %d outputs still on after emergency stop", i)
		}
	}
	// Absent slots are swept too.
	if got := rig.sets[4].signal.sets; got < 2 {
		t.Fatalf("absent slot pins not driven: %d sets", got)
	}
}
