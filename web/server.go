// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package web exposes the programmer and the BLE bridge over HTTP. The
// handlers are thin adapters; everything real happens in the core.
package web

import (
	"encoding/json"
	"net/http"

	goji "goji.io"
	"goji.io/pat"

	gonrflink "github.com/bbnote/gonrflink"
	"github.com/bbnote/gonrflink/bridge"
	"github.com/bbnote/gonrflink/kv"
	"github.com/bbnote/gonrflink/power"
)

// Server bundles the subsystems the handlers act on. Rail may be nil
// when no power pin is wired.
type Server struct {
	Session    *gonrflink.Session
	Programmer *gonrflink.Programmer
	Central    *bridge.Central
	Rail       *power.Rail
	Store      *kv.Store
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()

	mux.HandleFunc(pat.Get("/"), s.handleIndex)

	mux.HandleFunc(pat.Get("/check_swd"), s.handleCheckSwd)
	mux.HandleFunc(pat.Get("/release_swd"), s.handleReleaseSwd)
	mux.HandleFunc(pat.Get("/mass_erase"), s.handleMassErase)
	mux.HandleFunc(pat.Get("/disable_protection"), s.handleDisableProtection)
	mux.HandleFunc(pat.Get("/erase_all"), s.handleEraseAll)
	mux.HandleFunc(pat.Post("/upload"), s.handleUpload)
	mux.HandleFunc(pat.Get("/progress"), s.handleProgress)

	mux.HandleFunc(pat.Post("/ble/connect"), s.handleBleConnect)
	mux.HandleFunc(pat.Post("/ble/disconnect"), s.handleBleDisconnect)
	mux.HandleFunc(pat.Get("/ble/conn_status"), s.handleBleConnStatus)
	mux.HandleFunc(pat.Post("/ble/passkey"), s.handleBlePasskey)
	mux.HandleFunc(pat.Post("/ble/scan"), s.handleBleScan)
	mux.HandleFunc(pat.Post("/ble/stop_scan"), s.handleBleStopScan)
	mux.HandleFunc(pat.Get("/ble/devices"), s.handleBleDevices)
	mux.HandleFunc(pat.Post("/ble/devices"), s.handleBleDevices)
	mux.HandleFunc(pat.Post("/ble/clear"), s.handleBleClear)

	mux.HandleFunc(pat.Post("/power_on"), s.handlePowerOn)
	mux.HandleFunc(pat.Post("/power_off"), s.handlePowerOff)
	mux.HandleFunc(pat.Post("/power_reboot"), s.handlePowerReboot)

	return mux
}

// errorCode maps an error to the short code sent in JSON bodies.
func errorCode(err error) string {
	switch e := err.(type) {
	case *gonrflink.SwdError:
		switch e.SwdErrorCode {
		case gonrflink.ErrorBusWait:
			return "bus_wait"
		case gonrflink.ErrorBusFault:
			return "bus_fault"
		case gonrflink.ErrorProtocol:
			return "protocol"
		case gonrflink.ErrorLinkLost:
			return "link_lost"
		case gonrflink.ErrorPowerUpTimeout:
			return "powerup_timeout"
		case gonrflink.ErrorUnlockTimeout:
			return "unlock_timeout"
		case gonrflink.ErrorInvalidState:
			return "invalid_state"
		case gonrflink.ErrorInvalidArgument:
			return "invalid_argument"
		}
		return "swd"
	case *gonrflink.FlashError:
		return "flash_" + e.Phase.String()
	case *gonrflink.HexError:
		return "hex"
	case *bridge.BleError:
		return "ble_" + e.Phase.String()
	case *bridge.ProxyError:
		return "proxy_" + e.Op.String()
	}
	return "error"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("encode response: %v", err)
	}
}

// ok reports an application-level success.
func (s *Server) ok(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// appError reports an application-level failure. The transport worked,
// so the status stays 200 and the body carries the outcome.
func (s *Server) appError(w http.ResponseWriter, err error) {
	logger.Errorf("request failed: %v", err)
	if s.Store != nil {
		if kerr := s.Store.SetLastError(err.Error()); kerr != nil {
			logger.Warnf("persist last error: %v", kerr)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": false,
		"message": err.Error(),
		"code":    errorCode(err),
	})
}

// badRequest reports malformed input.
func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>nrflink</title></head>
<body>
<h1>nrflink</h1>
<p>SWD programmer and BLE serial bridge.</p>
<ul>
<li><a href="/check_swd">/check_swd</a></li>
<li><a href="/progress">/progress</a></li>
<li><a href="/ble/conn_status">/ble/conn_status</a></li>
<li><a href="/ble/devices">/ble/devices</a></li>
</ul>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}
