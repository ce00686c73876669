// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package config loads the daemon configuration from a YAML file.
// Missing fields keep their defaults so a partial file is fine.
package config

import (
	"io/ioutil"
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

type SwdConfig struct {
	// Backend selects the pin bank: "ftdi" for an FT232H in async
	// bit-bang mode, "cdev" for the Linux GPIO character device.
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`

	SwclkPin  int `yaml:"swclk_pin"`
	SwdioPin  int `yaml:"swdio_pin"`
	NresetPin int `yaml:"nreset_pin"`

	// DelayCycles stretches every clock phase; 0 runs flat out.
	DelayCycles int `yaml:"delay_cycles"`

	// ClockKhz picks the delay from the speed table instead; 0 keeps
	// DelayCycles as configured.
	ClockKhz int `yaml:"clock_khz"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type ProxyConfig struct {
	Port       int `yaml:"port"`
	MaxClients int `yaml:"max_clients"`
}

type BleConfig struct {
	Passkey uint32 `yaml:"passkey"`
}

type PowerConfig struct {
	// Pin below 0 means no power rail is wired.
	Pin        int  `yaml:"pin"`
	ActiveHigh bool `yaml:"active_high"`
}

type Config struct {
	Swd   SwdConfig   `yaml:"swd"`
	HTTP  HTTPConfig  `yaml:"http"`
	Proxy ProxyConfig `yaml:"proxy"`
	Ble   BleConfig   `yaml:"ble"`
	Power PowerConfig `yaml:"power"`

	KvPath string `yaml:"kv_path"`
}

func Default() *Config {
	return &Config{
		Swd: SwdConfig{
			Backend:     "cdev",
			Chip:        "gpiochip0",
			SwclkPin:    25,
			SwdioPin:    24,
			NresetPin:   -1,
			DelayCycles: 0,
		},
		HTTP:  HTTPConfig{Listen: ":80"},
		Proxy: ProxyConfig{Port: 4403, MaxClients: 4},
		Ble:   BleConfig{Passkey: 123456},
		Power: PowerConfig{Pin: -1, ActiveHigh: true},

		KvPath: "nrflink.db",
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotatef(err, "parse config %s", path)
	}
	if cfg.Ble.Passkey > 999999 {
		return nil, errors.Errorf("passkey %d is not a 6-digit PIN", cfg.Ble.Passkey)
	}
	return cfg, nil
}
