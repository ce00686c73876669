// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	gonrflink "github.com/bbnote/gonrflink"
)

var (
	logger *logrus.Logger
)

func initLogger() {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger = logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stdout)
}

func main() {
	initLogger()
	gonrflink.SetLogger(logger)

	logger.Info("Welcome to nrflink hex flasher...")

	flagBackend := pflag.String("backend", "cdev", "Pin bank backend (ftdi or cdev)")
	flagChip := pflag.String("chip", "gpiochip0", "GPIO chip for the cdev backend")
	flagSwclk := pflag.Int("swclk", 25, "SWCLK pin number")
	flagSwdio := pflag.Int("swdio", 24, "SWDIO pin number")
	flagNreset := pflag.Int("nreset", -1, "nRESET pin number, -1 when not wired")
	flagDelay := pflag.Int("delay", 0, "Extra delay cycles per clock phase")
	flagKhz := pflag.Int("khz", 0, "SWD clock in kHz, overrides --delay")
	flagKind := pflag.String("type", "full", "Image type (full, softdevice, app, bootloader)")
	flagReset := pflag.Bool("reset", true, "Reset the target after flashing")
	flagLogLevel := pflag.Int("log-level", int(logrus.InfoLevel), "Logging verbosity [0 - 7]")

	pflag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	if pflag.NArg() != 1 {
		logger.Fatalf("usage: %s [flags] <image.hex>", os.Args[0])
	}

	kind := gonrflink.ImageKind(*flagKind)
	if _, err := kind.BaseAddr(); err != nil {
		logger.Fatal(err)
	}

	file, err := os.Open(pflag.Arg(0))
	if err != nil {
		logger.Fatal(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		logger.Fatal(err)
	}

	var bank gonrflink.PinBank
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

	var nreset gonrflink.Pin
	if *flagNreset >= 0 {
		nreset, err = bank.Pin(*flagNreset)
		if err != nil {
			logger.Fatal(err)
		}
	}

	driver := gonrflink.NewLineDriver(swclk, swdio, nreset, *flagDelay)
	if *flagKhz > 0 {
		khz := driver.SetSpeed(*flagKhz)
		logger.Infof("SWD clock %d kHz selected, %d kHz measured", khz, driver.MeasureClockKhz())
	}
	session := gonrflink.NewSession(driver)

	session.Lock()
	if err := session.Connect(); err != nil {
		session.Unlock()
		logger.Fatal(err)
	}
	logger.Infof("Connected, IDCODE 0x%08x", session.IDCode())

	if part, err := session.ReadPartInfo(); err == nil {
		logger.Infof("Target: %s", part)
	}

	approtect, _, err := session.ReadApprotect()
	if err != nil {
		session.Unlock()
		logger.Fatal(err)
	}
	logger.Infof("Access port protection: %s", approtect)
	session.Unlock()

	programmer := gonrflink.NewProgrammer(session)

	start := time.Now()
	if err := programmer.FlashHex(file, kind, info.Size()); err != nil {
		logger.Fatal(err)
	}
	elapsed := time.Since(start)

	progress := programmer.Progress()
	logger.Infof("Flashed %d bytes in %s (%.1f kB/s)",
		progress.Flashed, elapsed.Round(time.Millisecond),
		float64(progress.Flashed)/1000/elapsed.Seconds())

	session.Lock()
	if *flagReset {
		if err := session.SysResetRequest(); err != nil {
			logger.Warnf("could not reset target: %v", err)
		}
	}
	session.Disconnect()
	session.Unlock()
}
