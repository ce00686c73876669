// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	gonrflink "github.com/bbnote/gonrflink"
)

var (
	exitProgram chan bool

	logger      *logrus.Logger
	flagChannel *int
	fileHandle  *os.File
)

func rttDataHandler(channel int, data []byte) error {
	if channel != *flagChannel {
		return nil
	}

	if fileHandle != nil {
		fileHandle.Write(data)
	} else {
		fmt.Printf("%d: %s", channel, data)
	}

	return nil
}

func setUpSignalHandler() {
	signals := make(chan os.Signal, 1)
	exitProgram = make(chan bool, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		exitProgram <- true
	}()

}

func initLogger() {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger = logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stderr)
}

func main() {
	initLogger()
	gonrflink.SetLogger(logger)

	logger.Info("Welcome to nrflink rtt logger...")

	flagBackend := pflag.String("backend", "cdev", "Pin bank backend (ftdi or cdev)")
	flagChip := pflag.String("chip", "gpiochip0", "GPIO chip for the cdev backend")
	flagSwclk := pflag.Int("swclk", 25, "SWCLK pin number")
	flagSwdio := pflag.Int("swdio", 24, "SWDIO pin number")
	flagDelay := pflag.Int("delay", 0, "Extra delay cycles per clock phase")
	flagKhz := pflag.Int("khz", 0, "SWD clock in kHz, overrides --delay")
	flagChannel = pflag.Int("channel", 0, "RTT channel to log")
	flagLogLevel := pflag.Int("log-level", int(logrus.InfoLevel), "Logging verbosity [0 - 7]")

	pflag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	fileHandle = nil

	if pflag.NArg() == 1 {
		file, err := os.OpenFile(pflag.Arg(0), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			logger.Fatal(err)
		}

		fileHandle = file

		defer fileHandle.Close()
	}

	var bank gonrflink.PinBank
	var err error
	if *flagBackend == "ftdi" {
		bank, err = gonrflink.OpenFtdiBank()
		if err != nil {
			logger.Fatal(err)
		}
	} else {
		bank = gonrflink.OpenCdevBank(*flagChip)
	}
	defer bank.Close()

	swclk, err := bank.Pin(*flagSwclk)
	if err != nil {
		logger.Fatal(err)
	}
	swdio, err := bank.Pin(*flagSwdio)
	if err != nil {
		logger.Fatal(err)
	}

	driver := gonrflink.NewLineDriver(swclk, swdio, nil, *flagDelay)
	if *flagKhz > 0 {
		driver.SetSpeed(*flagKhz)
	}

	session := gonrflink.NewSession(driver)

	session.Lock()
	defer session.Unlock()

	if err := session.Connect(); err != nil {
		logger.Fatal(err)
	}
	defer session.Disconnect()

	ramSize := uint32(64 * 1024)
	if part, err := session.ReadPartInfo(); err == nil {
		logger.Infof("Target: %s", part)
		ramSize = part.RamBytes()
	}

	rtt, err := gonrflink.FindRtt(session, gonrflink.Nrf52RamBase, ramSize)
	if err != nil {
		logger.Fatal(err)
	}

	if err := rtt.UpdateChannels(); err != nil {
		logger.Fatal(err)
	}
	if name, err := rtt.ChannelName(*flagChannel); err == nil && name != "" {
		logger.Infof("Logging channel %d (%s)", *flagChannel, name)
	}

	setUpSignalHandler()

	exitLoop := false

	for exitLoop == false {

		err := rtt.UpdateChannels()

		if err != nil {
			logger.Error(err)

		}

		err = rtt.ReadChannels(rttDataHandler)

		if err != nil {
			logger.Error(err)
		}

		select {
		case <-exitProgram:
			exitLoop = true
		default:

		}

		time.Sleep(50 * time.Millisecond)
	}
}
