// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command booster-cli is an interactive operator console for a Booster
// channel controller reachable over MQTT.
//
// Example session:
//
//	$> booster-cli -id booster-lab-01
//	booster> enable 0
//	{"code":200,"msg":"channel 0: Enable ok"}
//	booster> tune 0 0.2
//	{"code":200,"vgs":-1.19,"ids":0.205}
//	booster> read 0 InterlockThresholds
//	{"code":200,"data":"{'output':20,'reflected':15}"}
//	booster> quit
package main // import "github.com/b787abel/booster/cmd/booster-cli"

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/peterh/liner"

	"github.com/b787abel/booster/mqttctl"
)

func main() {
	var (
		broker  = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		id      = flag.String("id", "booster", "device identifier of the Booster")
		timeout = flag.Duration("timeout", 5*time.Second, "request timeout")
	)

	flag.Parse()

	log.SetPrefix("booster-cli: ")
	log.SetFlags(0)

	if err := run(*broker, *id, *timeout); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(broker, id string, timeout time.Duration) error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("booster> ")
		switch err {
		case nil:
			// ok
		case io.EOF, liner.ErrPromptAborted:
			fmt.Println()
			return nil
		default:
			return fmt.Errorf("could not read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		if line == "quit" || line == "exit" {
			return nil
		}
		if line == "help" {
			usage()
			continue
		}

		resp, err := eval(broker, id, timeout, strings.Fields(line))
		if err != nil {
			log.Printf("%+v", err)
			continue
		}
		fmt.Printf("%s\n", resp)
	}
}

func usage() {
	fmt.Print(`commands:
  enable  <ch>              power a channel up, output live
  power   <ch>              power a channel up, output muted
  disable <ch>              power a channel down
  save    <ch>              persist the channel settings to EEPROM
  tune    <ch> <amps>       tune the bias to a target drain current
  read    <ch> <prop>       read a channel property
  write   <ch> <prop> <json> write a channel property
  status  <ch>              wait for the next telemetry snapshot
  help                      this help
  quit                      exit
`)
}

func eval(broker, id string, timeout time.Duration, args []string) ([]byte, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("missing channel argument (try \"help\")")
	}
	ch, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid channel %q: %w", args[1], err)
	}

	switch args[0] {
	case "enable", "power", "disable", "save":
		action := map[string]string{
			"enable":  mqttctl.ActionEnable,
			"power":   mqttctl.ActionPowerup,
			"disable": mqttctl.ActionDisable,
			"save":    mqttctl.ActionSave,
		}[args[0]]
		req, _ := json.Marshal(mqttctl.ChannelRequest{Channel: ch, Action: action})
		return mqttctl.Request(broker, id, "channel/state", req, timeout)

	case "tune":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: tune <ch> <amps>")
		}
		cur, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid current %q: %w", args[2], err)
		}
		req, _ := json.Marshal(mqttctl.TuneRequest{Channel: ch, Current: cur})
		return mqttctl.Request(broker, id, "channel/bias", req, timeout)

	case "read":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: read <ch> <prop>")
		}
		req, _ := json.Marshal(mqttctl.PropertyReadRequest{Channel: ch, Prop: args[2]})
		return mqttctl.Request(broker, id, "channel/read", req, timeout)

	case "write":
		if len(args) < 4 {
			return nil, fmt.Errorf("usage: write <ch> <prop> <json>")
		}
		data := strings.Join(args[3:], " ")
		req, _ := json.Marshal(mqttctl.PropertyWriteRequest{
			Channel: ch,
			Prop:    args[2],
			Data:    mqttctl.Embed([]byte(data)),
		})
		return mqttctl.Request(broker, id, "channel/write", req, timeout)

	case "status":
		return status(broker, id, ch, timeout)
	}
	return nil, fmt.Errorf("unknown command %q (try \"help\")", args[0])
}

// status waits for the next telemetry snapshot of the given channel.
func status(broker, id string, ch int, timeout time.Duration) ([]byte, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("booster-cli-%d", time.Now().UnixNano()))
	cli := mqtt.NewClient(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("could not connect to broker %q: %w", broker, tok.Error())
	}
	defer cli.Disconnect(250)

	topic := fmt.Sprintf("%s/ch%d", id, ch)
	snap := make(chan []byte, 1)
	tok := cli.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case snap <- m.Payload():
		default:
		}
	})
	if tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("could not subscribe to %q: %w", topic, tok.Error())
	}

	select {
	case raw := <-snap:
		return raw, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no telemetry on %q after %v", topic, timeout)
	}
}
