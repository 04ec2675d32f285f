// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"

	"github.com/b787abel/booster/rf"
)

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

// alertMail notifies the operators of an interlock trip.
func alertMail(tripped []rf.ChannelID) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	chans := make([]string, len(tripped))
	for i, id := range tripped {
		chans[i] = strconv.Itoa(int(id))
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[boosterd] interlock trip: channel(s) %s",
		strings.Join(chans, ", "),
	))
	msg.SetBody("text/plain", fmt.Sprintf(
		"interlock tripped on channel(s): %s\nthe channels were disabled and their bias forced to pinch-off.",
		strings.Join(chans, ", "),
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	if err := dial.DialAndSend(msg); err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
