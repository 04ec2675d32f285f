// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command booster-calibrate reads and modifies the power transforms of
// a Booster RF channel over MQTT, and optionally archives the channel
// calibration in the calibration database.
//
// Usage:
//
//	$> booster-calibrate -id booster-lab-01 0 OutputPowerTransform
//	channel 0: OutputPowerTransform slope=28.571429, offset=-5.800000
//
//	$> booster-calibrate -id booster-lab-01 0 OutputPowerTransform 28.6 -5.9
//	channel 0: OutputPowerTransform slope=28.600000, offset=-5.900000
//
//	$> booster-calibrate -db boosterdb -eui 04:91:62:01:02:03 -history
//	2024-05-02 10:12:03 +0000 UTC  bias=-1.19  out=28.60/-5.90 ...
package main // import "github.com/b787abel/booster/cmd/booster-calibrate"

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/b787abel/booster/caldb"
	"github.com/b787abel/booster/mqttctl"
	"github.com/b787abel/booster/rf"
)

func main() {
	var (
		broker  = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		id      = flag.String("id", "booster", "device identifier of the Booster")
		timeout = flag.Duration("timeout", 5*time.Second, "request timeout")

		dbname  = flag.String("db", "", "calibration database name (archive after a write)")
		eui     = flag.String("eui", "", "EUI-48 of the RF module, aa:bb:cc:dd:ee:ff")
		history = flag.Bool("history", false, "print the calibration history of -eui and exit")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: booster-calibrate [options] <channel> <transform> [<slope> <offset>]

transform is one of: InputPowerTransform, OutputPowerTransform,
ReflectedPowerTransform. With <slope> <offset> the transform is written,
otherwise it is read back.

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	log.SetPrefix("booster-calibrate: ")
	log.SetFlags(0)

	if *history {
		if err := printHistory(*dbname, *eui); err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	if err := run(*broker, *id, *timeout, *dbname, *eui, flag.Args()); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(broker, id string, timeout time.Duration, dbname, eui string, args []string) error {
	if len(args) != 2 && len(args) != 4 {
		flag.Usage()
		return fmt.Errorf("invalid number of arguments")
	}

	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid channel %q: %w", args[0], err)
	}
	prop, err := rf.ParsePropertyID(args[1])
	if err != nil {
		return err
	}
	if prop == rf.PropInterlockThresholds {
		return fmt.Errorf("property %v is not a power transform", prop)
	}

	if len(args) == 4 {
		slope, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid slope %q: %w", args[2], err)
		}
		offset, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[3], err)
		}
		if slope == 0 {
			return fmt.Errorf("invalid zero slope")
		}
		t := rf.NewLinearTransformation(slope, offset)
		if err := writeTransform(broker, id, timeout, ch, prop, t); err != nil {
			return err
		}
	}

	t, err := readTransform(broker, id, timeout, ch, prop)
	if err != nil {
		return err
	}
	fmt.Printf("channel %d: %v slope=%f, offset=%f\n", ch, prop, t.Slope, t.Offset)

	if dbname != "" {
		if eui == "" {
			return fmt.Errorf("missing -eui for the calibration archive")
		}
		return archive(broker, id, timeout, dbname, eui, ch)
	}
	return nil
}

// wireResponse is the union of the response shapes published to
// <id>/log.
type wireResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

func request(broker, id string, timeout time.Duration, topic string, req interface{}) (wireResponse, error) {
	var resp wireResponse

	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("could not marshal request: %w", err)
	}
	raw, err := mqttctl.Request(broker, id, topic, payload, timeout)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("could not parse response %q: %w", raw, err)
	}
	if resp.Code != 200 {
		return resp, fmt.Errorf("request failed: %s", resp.Msg)
	}
	return resp, nil
}

func readTransform(broker, id string, timeout time.Duration, ch int, prop rf.PropertyID) (rf.LinearTransformation, error) {
	var t rf.LinearTransformation

	resp, err := request(broker, id, timeout, "channel/read", mqttctl.PropertyReadRequest{
		Channel: ch,
		Prop:    string(prop),
	})
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(mqttctl.Extract(resp.Data), &t); err != nil {
		return t, fmt.Errorf("could not parse property %v: %w", prop, err)
	}
	return t, nil
}

func writeTransform(broker, id string, timeout time.Duration, ch int, prop rf.PropertyID, t rf.LinearTransformation) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("could not marshal transform: %w", err)
	}
	_, err = request(broker, id, timeout, "channel/write", mqttctl.PropertyWriteRequest{
		Channel: ch,
		Prop:    string(prop),
		Data:    mqttctl.Embed(raw),
	})
	return err
}

func readThresholds(broker, id string, timeout time.Duration, ch int) (rf.InterlockThresholds, error) {
	var thr rf.InterlockThresholds

	resp, err := request(broker, id, timeout, "channel/read", mqttctl.PropertyReadRequest{
		Channel: ch,
		Prop:    string(rf.PropInterlockThresholds),
	})
	if err != nil {
		return thr, err
	}
	if err := json.Unmarshal(mqttctl.Extract(resp.Data), &thr); err != nil {
		return thr, fmt.Errorf("could not parse thresholds: %w", err)
	}
	return thr, nil
}

// archive snapshots the channel calibration and appends it to the
// calibration database.
func archive(broker, id string, timeout time.Duration, dbname, eui string, ch int) error {
	cal := caldb.Calibration{EUI: eui}

	var err error
	if cal.Input, err = readTransform(broker, id, timeout, ch, rf.PropInputPowerTransform); err != nil {
		return err
	}
	if cal.Output, err = readTransform(broker, id, timeout, ch, rf.PropOutputPowerTransform); err != nil {
		return err
	}
	if cal.Reflected, err = readTransform(broker, id, timeout, ch, rf.PropReflectedPowerTransform); err != nil {
		return err
	}

	thr, err := readThresholds(broker, id, timeout, ch)
	if err != nil {
		return err
	}
	cal.OutputThreshold = thr.Output
	cal.ReflectedThreshold = thr.Reflected

	st, err := snapshot(broker, id, timeout, ch)
	if err != nil {
		return err
	}
	cal.BiasVoltage = st.BiasVoltage

	db, err := caldb.Open(dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	cid, err := db.StoreCalibration(context.Background(), cal)
	if err != nil {
		return err
	}
	fmt.Printf("archived calibration %d for module %s\n", cid, eui)
	return nil
}

// snapshot waits for the next telemetry snapshot of the channel.
func snapshot(broker, id string, timeout time.Duration, ch int) (rf.ChannelStatus, error) {
	var st rf.ChannelStatus

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("booster-calibrate-%d", time.Now().UnixNano()))
	cli := mqtt.NewClient(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return st, fmt.Errorf("could not connect to broker %q: %w", broker, tok.Error())
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
		return st, fmt.Errorf("could not subscribe to %q: %w", topic, tok.Error())
	}

	select {
	case raw := <-snap:
		if err := json.Unmarshal(raw, &st); err != nil {
			return st, fmt.Errorf("could not parse telemetry: %w", err)
		}
		return st, nil
	case <-time.After(timeout):
		return st, fmt.Errorf("no telemetry on %q after %v", topic, timeout)
	}
}

func printHistory(dbname, eui string) error {
	if dbname == "" || eui == "" {
		return fmt.Errorf("-history needs both -db and -eui")
	}

	db, err := caldb.Open(dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	cals, err := db.Calibrations(context.Background(), eui)
	if err != nil {
		return err
	}
	if len(cals) == 0 {
		return fmt.Errorf("no calibration for module %q", eui)
	}

	for _, cal := range cals {
		fmt.Printf(
			"%v  bias=%.2f  thr=%.1f/%.1f  in=%.4f/%.4f  out=%.4f/%.4f  refl=%.4f/%.4f\n",
			cal.CreatedAt, cal.BiasVoltage,
			cal.OutputThreshold, cal.ReflectedThreshold,
			cal.Input.Slope, cal.Input.Offset,
			cal.Output.Slope, cal.Output.Offset,
			cal.Reflected.Slope, cal.Reflected.Offset,
		)
	}
	return nil
}
