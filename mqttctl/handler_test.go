// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mqttctl

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/b787abel/booster/rf"
)

type fakeController struct {
	calls   []string
	props   map[rf.PropertyID][]byte
	fail    error
	panicv  interface{}
	stopped bool
}

func newFakeController() *fakeController {
	return &fakeController{
		props: map[rf.PropertyID][]byte{
			rf.PropInterlockThresholds: []byte(`{"output":20,"reflected":15}`),
		},
	}
}

func (c *fakeController) call(format string, args ...interface{}) error {
	if c.panicv != nil {
		panic(c.panicv)
	}
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
	return c.fail
}

func (c *fakeController) Enable(id rf.ChannelID) error  { return c.call("enable %d", id) }
func (c *fakeController) Power(id rf.ChannelID) error   { return c.call("power %d", id) }
func (c *fakeController) Disable(id rf.ChannelID) error { return c.call("disable %d", id) }
func (c *fakeController) Save(id rf.ChannelID) error    { return c.call("save %d", id) }

func (c *fakeController) Tune(id rf.ChannelID, current float64) (float64, float64, error) {
	return -1.2, current, c.call("tune %d %v", id, current)
}

func (c *fakeController) ReadProperty(id rf.ChannelID, prop rf.PropertyID) ([]byte, error) {
	if err := c.call("read %d %s", id, prop); err != nil {
		return nil, err
	}
	return c.props[prop], nil
}

func (c *fakeController) WriteProperty(id rf.ChannelID, prop rf.PropertyID, data []byte) error {
	c.props[prop] = append([]byte(nil), data...)
	return c.call("write %d %s", id, prop)
}

func (c *fakeController) Status(id rf.ChannelID) (rf.ChannelStatus, error) {
	return rf.ChannelStatus{}, c.call("status %d", id)
}

func (c *fakeController) Present() []rf.ChannelID { return []rf.ChannelID{0} }

func (c *fakeController) EmergencyStop() { c.stopped = true }

func newTestHandler() (*Handler, *fakeController) {
	ctl := newFakeController()
	return NewHandler(ctl, log.New(io.Discard, "", 0)), ctl
}

func TestHandlerChannelActions(t *testing.T) {
	for _, tc := range []struct {
		action string
		want   string
	}{
		{ActionEnable, "enable 3"},
		{ActionDisable, "disable 3"},
		{ActionPowerup, "power 3"},
		{ActionSave, "save 3"},
	} {
		t.Run(tc.action, func(t *testing.T) {
			h, ctl := newTestHandler()
			raw := h.Handle("channel/state",
				[]byte(fmt.Sprintf(`{"channel":3,"action":%q}`, tc.action)))

			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				t.Fatalf("could not unmarshal response: %+v", err)
			}
			if resp.Code != 200 {
				t.Fatalf("invalid code: got=%d, want=200 (%s)", resp.Code, resp.Msg)
			}
			if len(ctl.calls) != 1 || ctl.calls[0] != tc.want {
				t.Fatalf("invalid calls: got=%v, want=[%s]", ctl.calls, tc.want)
			}
		})
	}
}

func TestHandlerErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		topic   string
		payload string
	}{
		{"bad-json", "channel/state", `not json`},
		{"bad-channel", "channel/state", `{"channel":8,"action":"Enable"}`},
		{"neg-channel", "channel/state", `{"channel":-1,"action":"Enable"}`},
		{"bad-action", "channel/state", `{"channel":0,"action":"Explode"}`},
		{"bad-prop", "channel/read", `{"channel":0,"prop":"NoSuchProp"}`},
		{"bad-topic", "channel/nope", `{}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, ctl := newTestHandler()
			raw := h.Handle(tc.topic, []byte(tc.payload))
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				t.Fatalf("could not unmarshal response: %+v", err)
			}
			if resp.Code != 400 {
				t.Fatalf("invalid code: got=%d, want=400", resp.Code)
			}
			if len(ctl.calls) != 0 {
				t.Fatalf("invalid request reached the controller: %v", ctl.calls)
			}
		})
	}
}

func TestHandlerControllerFailure(t *testing.T) {
	h, ctl := newTestHandler()
	ctl.fail = rf.ErrNotPresent

	raw := h.Handle("channel/state", []byte(`{"channel":5,"action":"Enable"}`))
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("could not unmarshal response: %+v", err)
	}
	if resp.Code != 400 {
		t.Fatalf("invalid code: got=%d, want=400", resp.Code)
	}
	if !strings.Contains(resp.Msg, "not present") {
		t.Fatalf("invalid message: %q", resp.Msg)
	}
}

func TestHandlerFaultForcesOutputsOff(t *testing.T) {
	h, ctl := newTestHandler()
	ctl.panicv = fmt.Errorf("mqttctl: could not select bus for channel 5")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected the fault to resume as a panic")
		}
		if !ctl.stopped {
			t.Fatalf("outputs were not forced off before the fault resumed")
		}
	}()
	h.Handle("channel/state", []byte(`{"channel":5,"action":"Enable"}`))
}

func TestHandlerTune(t *testing.T) {
	h, _ := newTestHandler()
	raw := h.Handle("channel/bias", []byte(`{"channel":2,"current":0.2}`))

	var resp TuneResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("could not unmarshal response: %+v", err)
	}
	if resp.Code != 200 {
		t.Fatalf("invalid code: got=%d, want=200", resp.Code)
	}
	if resp.Vgs != -1.2 || resp.Ids != 0.2 {
		t.Fatalf("invalid tune result: got=%+v", resp)
	}
}

func TestHandlerPropertyRead(t *testing.T) {
	h, _ := newTestHandler()
	raw := h.Handle("channel/read", []byte(`{"channel":0,"prop":"InterlockThresholds"}`))

	var resp PropertyReadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("could not unmarshal response: %+v", err)
	}
	if resp.Code != 200 {
		t.Fatalf("invalid code: got=%d (%s)", resp.Code, resp.Data)
	}
	// The embedded payload is quote-swapped on the wire.
	want := `{'output':20,'reflected':15}`
	if resp.Data != want {
		t.Fatalf("invalid data field:\ngot= %q\nwant=%q", resp.Data, want)
	}
}

func TestHandlerPropertyWrite(t *testing.T) {
	h, ctl := newTestHandler()
	req := `{"channel":1,"prop":"OutputPowerTransform","data":"{'slope':30,'offset':-6}"}`
	raw := h.Handle("channel/write", []byte(req))

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("could not unmarshal response: %+v", err)
	}
	if resp.Code != 200 {
		t.Fatalf("invalid code: got=%d (%s)", resp.Code, resp.Msg)
	}
	got := string(ctl.props[rf.PropOutputPowerTransform])
	if want := `{"slope":30,"offset":-6}`; got != want {
		t.Fatalf("invalid inbound payload:\ngot= %q\nwant=%q", got, want)
	}
}

func TestQuoteSwapCodec(t *testing.T) {
	raw := []byte(`{"slope":28.571,"offset":-5.8}`)
	wire := Embed(raw)
	if strings.ContainsRune(wire, '"') {
		t.Fatalf("double quote survived embedding: %q", wire)
	}
	if got := Extract(wire); string(got) != string(raw) {
		t.Fatalf("invalid round-trip:\ngot= %q\nwant=%q", got, raw)
	}
}

func TestQuoteSwapLossy(t *testing.T) {
	// A literal apostrophe in the payload does not survive the wire:
	// that is the documented contract, not a defect.
	raw := []byte(`{"msg":"it's fine"}`)
	got := Extract(Embed(raw))
	if want := `{"msg":"it"s fine"}`; string(got) != want {
		t.Fatalf("invalid lossy round-trip:\ngot= %q\nwant=%q", got, want)
	}
}
