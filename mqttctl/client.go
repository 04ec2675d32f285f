// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mqttctl

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client binds a Handler to an MQTT broker: it subscribes to the
// request topics below the device identifier prefix, publishes the
// responses to <id>/log and periodically publishes per-channel
// telemetry to <id>/ch<N>.
type Client struct {
	msg *log.Logger
	id  string
	ctl Controller
	hdl *Handler
	cli mqtt.Client
}

// NewClient connects to the broker and subscribes the control topics.
// The id is the device identifier prefixing every topic.
func NewClient(broker, id string, ctl Controller, msg *log.Logger) (*Client, error) {
	if msg == nil {
		msg = log.New(os.Stdout, "mqttctl: ", 0)
	}
	cli := &Client{
		msg: msg,
		id:  id,
		ctl: ctl,
		hdl: NewHandler(ctl, msg),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("booster-" + id).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	cli.cli = mqtt.NewClient(opts)

	if tok := cli.cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqttctl: could not connect to broker %q: %w", broker, tok.Error())
	}

	for _, suffix := range Topics() {
		suffix := suffix
		topic := id + "/" + suffix
		tok := cli.cli.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
			cli.serve(suffix, m.Payload())
		})
		if tok.Wait() && tok.Error() != nil {
			cli.cli.Disconnect(250)
			return nil, fmt.Errorf("mqttctl: could not subscribe to %q: %w", topic, tok.Error())
		}
	}

	return cli, nil
}

func (cli *Client) serve(suffix string, payload []byte) {
	resp := cli.hdl.Handle(suffix, payload)
	if tok := cli.cli.Publish(cli.id+"/log", 1, false, resp); tok.Wait() && tok.Error() != nil {
		cli.msg.Printf("could not publish response: %+v", tok.Error())
	}
}

// Telemetry publishes the status snapshot of every present channel to
// <id>/ch<N> once per period until the context is cancelled.
func (cli *Client) Telemetry(ctx context.Context, period time.Duration) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			cli.publishStatus()
		}
	}
}

func (cli *Client) publishStatus() {
	for _, id := range cli.ctl.Present() {
		st, err := cli.ctl.Status(id)
		if err != nil {
			cli.msg.Printf("channel %d: could not read status: %+v", id, err)
			continue
		}
		topic := fmt.Sprintf("%s/ch%d", cli.id, id)
		raw := marshal(st)
		if tok := cli.cli.Publish(topic, 0, false, raw); tok.Wait() && tok.Error() != nil {
			cli.msg.Printf("channel %d: could not publish telemetry: %+v", id, tok.Error())
		}
	}
}

// Close disconnects from the broker.
func (cli *Client) Close() error {
	cli.cli.Disconnect(250)
	return nil
}

// Request publishes one request payload and waits for the next response
// on <id>/log. It is the client-side counterpart used by the operator
// tools.
func Request(broker, id, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("booster-op-%d", time.Now().UnixNano()))
	cli := mqtt.NewClient(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqttctl: could not connect to broker %q: %w", broker, tok.Error())
	}
	defer cli.Disconnect(250)

	resp := make(chan []byte, 1)
	logTopic := id + "/log"
	tok := cli.Subscribe(logTopic, 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case resp <- m.Payload():
		default:
		}
	})
	if tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqttctl: could not subscribe to %q: %w", logTopic, tok.Error())
	}

	full := id + "/" + topic
	if tok := cli.Publish(full, 1, false, payload); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqttctl: could not publish to %q: %w", full, tok.Error())
	}

	select {
	case raw := <-resp:
		return raw, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("mqttctl: no response from %q after %v", id, timeout)
	}
}
