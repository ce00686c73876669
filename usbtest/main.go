// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	gonrflink "github.com/bbnote/gonrflink"
)

// Exercises an FT232H bridge without a target attached: opens the
// bank, wiggles one pin and reads the port back so wiring problems
// show up before the programmer is pointed at real hardware.
func main() {
	log.Info("Starting usb pin bank test-software...")

	flagPin := pflag.Int("pin", 0, "ADBUS pin to toggle")
	pflag.Parse()

	err := gonrflink.InitializeUSB()

	if err != nil {
		log.Panic(err)
	}

	bank, err := gonrflink.OpenFtdiBank()

	if bank != nil {
		log.Info("Found FT232H bridge on your computer! :)")
	} else {
		log.Fatal("Could not find any FT232H bridge on your computer: ", err)
	}

	pin, err := bank.Pin(*flagPin)
	if err != nil {
		log.Fatal(err)
	}

	sigs := make(chan os.Signal, 1)
	done := make(chan bool, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		done <- true
	}()

	exiting := false

	pin.Drive()

	for i := 0; i < 30000 && exiting == false; i++ {

		pin.Set(i%2 == 0)

		if err := pin.Err(); err != nil {
			log.Error(err)
			break
		}

		if i%20 == 0 {
			log.Infof("pin %d level now %v", *flagPin, pin.Get())
		}

		select {
		case <-done:
			exiting = true
		default:

		}

		time.Sleep(50 * time.Millisecond)
	}

	pin.Release()
	bank.Close()
	gonrflink.CloseUSB()
}
