// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mqttctl implements the Booster control and telemetry protocol:
// the request/response payload schemas, their validation, the topic
// routing and the MQTT plumbing.
//
// A Booster listens on four request topics below its identifier prefix:
//
//	<id>/channel/state  channel action (enable, disable, powerup, save)
//	<id>/channel/bias   bias tuning to a target drain current
//	<id>/channel/read   property read
//	<id>/channel/write  property write
//
// Responses go to <id>/log and periodic telemetry snapshots to
// <id>/ch<N>.
package mqttctl // import "github.com/b787abel/booster/mqttctl"

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/b787abel/booster/rf"
)

// Channel actions understood by the state topic.
const (
	ActionEnable  = "Enable"
	ActionDisable = "Disable"
	ActionPowerup = "Powerup"
	ActionSave    = "Save"
)

// ChannelRequest is a channel action request.
type ChannelRequest struct {
	Channel int    `json:"channel"`
	Action  string `json:"action"`
}

// Response is the generic command response.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// PropertyReadRequest asks for the serialized value of a channel
// property.
type PropertyReadRequest struct {
	Channel int    `json:"channel"`
	Prop    string `json:"prop"`
}

// PropertyReadResponse carries the serialized property in its data
// field, quote-swapped per the wire contract.
type PropertyReadResponse struct {
	Code int    `json:"code"`
	Data string `json:"data"`
}

// PropertyWriteRequest carries a quote-swapped serialized property.
type PropertyWriteRequest struct {
	Channel int    `json:"channel"`
	Prop    string `json:"prop"`
	Data    string `json:"data"`
}

// TuneRequest asks for the channel bias to be tuned to the given drain
// current, in amperes.
type TuneRequest struct {
	Channel int     `json:"channel"`
	Current float64 `json:"current"`
}

// TuneResponse reports the gate voltage and drain current reached.
type TuneResponse struct {
	Code int     `json:"code"`
	Vgs  float64 `json:"vgs"`
	Ids  float64 `json:"ids"`
}

// Ok and ErrorResponse build the two response shapes of the state and
// write topics.
func Ok(msg string) Response           { return Response{Code: 200, Msg: msg} }
func ErrorResponse(err error) Response { return Response{Code: 400, Msg: err.Error()} }

// Embed prepares a serialized payload for embedding in a data field:
// every double quote becomes a single quote. The embedded JSON encoder
// of the original firmware cannot escape an interior double quote; the
// substitution is a wire-format contract and is intentionally lossy for
// payloads containing a literal apostrophe.
func Embed(raw []byte) string {
	return strings.ReplaceAll(string(raw), `"`, `'`)
}

// Extract undoes Embed on an inbound data field.
func Extract(data string) []byte {
	return []byte(strings.ReplaceAll(data, `'`, `"`))
}

func channelID(n int) (rf.ChannelID, error) {
	if n < 0 || n >= rf.NumChannels {
		return 0, fmt.Errorf("mqttctl: invalid channel %d: %w", n, rf.ErrInvalid)
	}
	return rf.ChannelID(n), nil
}

func marshal(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// All response types marshal by construction.
		panic(fmt.Errorf("mqttctl: could not marshal response: %w", err))
	}
	return raw
}
