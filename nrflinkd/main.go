// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	gonrflink "github.com/bbnote/gonrflink"
	"github.com/bbnote/gonrflink/bridge"
	"github.com/bbnote/gonrflink/config"
	"github.com/bbnote/gonrflink/kv"
	"github.com/bbnote/gonrflink/power"
	"github.com/bbnote/gonrflink/web"
)

var (
	exitProgram chan bool

	logger *logrus.Logger
)

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
	logger.SetOutput(os.Stdout)
}

func openBank(cfg *config.Config) (gonrflink.PinBank, error) {
	if cfg.Swd.Backend == "ftdi" {
		return gonrflink.OpenFtdiBank()
	}
	return gonrflink.OpenCdevBank(cfg.Swd.Chip), nil
}

func main() {
	initLogger()
	gonrflink.SetLogger(logger)
	bridge.SetLogger(logger)
	web.SetLogger(logger)

	logger.Info("Welcome to nrflink field programmer...")

	flagConfig := pflag.String("config", "/etc/nrflink.yml", "Path to the configuration file")
	flagListen := pflag.String("listen", "", "HTTP listen address, overrides the config file")
	flagLogLevel := pflag.Int("log-level", int(logrus.InfoLevel), "Logging verbosity [0 - 7]")

	pflag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		logger.Fatal(err)
	}
	if *flagListen != "" {
		cfg.HTTP.Listen = *flagListen
	}

	store, err := kv.Open(cfg.KvPath)
	if err != nil {
		logger.Fatal(err)
	}
	defer store.Close()

	bank, err := openBank(cfg)
	if err != nil {
		logger.Fatal(err)
	}
	defer bank.Close()

	swclk, err := bank.Pin(cfg.Swd.SwclkPin)
	if err != nil {
		logger.Fatal(err)
	}
	swdio, err := bank.Pin(cfg.Swd.SwdioPin)
	if err != nil {
		logger.Fatal(err)
	}

	var nreset gonrflink.Pin
	if cfg.Swd.NresetPin >= 0 {
		nreset, err = bank.Pin(cfg.Swd.NresetPin)
		if err != nil {
			logger.Fatal(err)
		}
	}

	driver := gonrflink.NewLineDriver(swclk, swdio, nreset, cfg.Swd.DelayCycles)
	if cfg.Swd.ClockKhz > 0 {
		khz := driver.SetSpeed(cfg.Swd.ClockKhz)
		logger.Infof("SWD clock %d kHz requested, %d kHz measured", khz, driver.MeasureClockKhz())
	}
	session := gonrflink.NewSession(driver)
	programmer := gonrflink.NewProgrammer(session)

	var rail *power.Rail
	if cfg.Power.Pin >= 0 {
		pin, err := bank.Pin(cfg.Power.Pin)
		if err != nil {
			logger.Fatal(err)
		}
		rail = power.NewRail(pin, cfg.Power.ActiveHigh)
	}

	stack := bridge.NewTinygoStack()
	central := bridge.NewCentral(stack, store)
	central.SetPasskey(cfg.Ble.Passkey)
	defer central.Close()

	proxy := bridge.NewProxy(central, cfg.Proxy.Port, cfg.Proxy.MaxClients)
	if err := proxy.Start(); err != nil {
		logger.Fatal(err)
	}

	server := &web.Server{
		Session:    session,
		Programmer: programmer,
		Central:    central,
		Rail:       rail,
		Store:      store,
	}

	hs := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: server.Handler(),
	}

	go func() {
		logger.Infof("Listening on %s ...", cfg.HTTP.Listen)
		if err := hs.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()

	setUpSignalHandler()
	<-exitProgram

	logger.Info("Shutting down...")

	hs.Close()
	proxy.Stop()
	central.Disconnect()

	session.Lock()
	session.Disconnect()
	session.Unlock()
}
