// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mqttctl

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/b787abel/booster/rf"
)

// Controller is the channel control surface the protocol layer drives.
// *rf.Channels implements it.
type Controller interface {
	Enable(id rf.ChannelID) error
	Power(id rf.ChannelID) error
	Disable(id rf.ChannelID) error
	Save(id rf.ChannelID) error
	Tune(id rf.ChannelID, current float64) (vgs, ids float64, err error)
	ReadProperty(id rf.ChannelID, prop rf.PropertyID) ([]byte, error)
	WriteProperty(id rf.ChannelID, prop rf.PropertyID, data []byte) error
	Status(id rf.ChannelID) (rf.ChannelStatus, error)
	Present() []rf.ChannelID
	// EmergencyStop forces every channel output off at the pin level.
	// It must be callable from a fault path: no locks, no bus traffic.
	EmergencyStop()
}

var _ Controller = (*rf.Channels)(nil)

// Handler validates and executes control requests against a Controller
// and produces the serialized response payloads.
type Handler struct {
	msg *log.Logger
	ctl Controller
}

// NewHandler creates a request handler driving ctl.
func NewHandler(ctl Controller, msg *log.Logger) *Handler {
	if msg == nil {
		msg = log.New(os.Stdout, "mqttctl: ", 0)
	}
	return &Handler{msg: msg, ctl: ctl}
}

// Topics returns the request topic suffixes the handler serves, in the
// order state, bias, read, write.
func Topics() []string {
	return []string{"channel/state", "channel/bias", "channel/read", "channel/write"}
}

// Handle dispatches one request payload received on the given topic
// suffix and returns the serialized response.
//
// Requests are served on transport goroutines where no other fault
// handler runs: a panic escaping the controller forces every output off
// at the pin level before it resumes and kills the process.
func (h *Handler) Handle(topic string, payload []byte) []byte {
	defer func() {
		if r := recover(); r != nil {
			h.ctl.EmergencyStop()
			panic(r)
		}
	}()

	switch topic {
	case "channel/state":
		return h.handleState(payload)
	case "channel/bias":
		return h.handleBias(payload)
	case "channel/read":
		return h.handleRead(payload)
	case "channel/write":
		return h.handleWrite(payload)
	}
	return marshal(ErrorResponse(fmt.Errorf("unknown topic %q", topic)))
}

func (h *Handler) handleState(payload []byte) []byte {
	var req ChannelRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return marshal(ErrorResponse(fmt.Errorf("invalid request: %v", err)))
	}
	id, err := channelID(req.Channel)
	if err != nil {
		return marshal(ErrorResponse(err))
	}

	switch req.Action {
	case ActionEnable:
		err = h.ctl.Enable(id)
	case ActionDisable:
		err = h.ctl.Disable(id)
	case ActionPowerup:
		err = h.ctl.Power(id)
	case ActionSave:
		err = h.ctl.Save(id)
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		return marshal(ErrorResponse(err))
	}
	return marshal(Ok(fmt.Sprintf("channel %d: %s ok", req.Channel, req.Action)))
}

func (h *Handler) handleBias(payload []byte) []byte {
	var req TuneRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return marshal(ErrorResponse(fmt.Errorf("invalid request: %v", err)))
	}
	id, err := channelID(req.Channel)
	if err != nil {
		return marshal(ErrorResponse(err))
	}

	vgs, ids, err := h.ctl.Tune(id, req.Current)
	if err != nil {
		return marshal(ErrorResponse(err))
	}
	return marshal(TuneResponse{Code: 200, Vgs: vgs, Ids: ids})
}

func (h *Handler) handleRead(payload []byte) []byte {
	var req PropertyReadRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return marshal(ErrorResponse(fmt.Errorf("invalid request: %v", err)))
	}
	id, err := channelID(req.Channel)
	if err != nil {
		return marshal(ErrorResponse(err))
	}
	prop, err := rf.ParsePropertyID(req.Prop)
	if err != nil {
		return marshal(ErrorResponse(err))
	}

	raw, err := h.ctl.ReadProperty(id, prop)
	if err != nil {
		return marshal(ErrorResponse(err))
	}
	return marshal(PropertyReadResponse{Code: 200, Data: Embed(raw)})
}

func (h *Handler) handleWrite(payload []byte) []byte {
	var req PropertyWriteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return marshal(ErrorResponse(fmt.Errorf("invalid request: %v", err)))
	}
	id, err := channelID(req.Channel)
	if err != nil {
		return marshal(ErrorResponse(err))
	}
	prop, err := rf.ParsePropertyID(req.Prop)
	if err != nil {
		return marshal(ErrorResponse(err))
	}

	if err := h.ctl.WriteProperty(id, prop, Extract(req.Data)); err != nil {
		return marshal(ErrorResponse(err))
	}
	return marshal(Ok(fmt.Sprintf("channel %d: %s updated", req.Channel, req.Prop)))
}
