// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bbnote/gonrflink/bridge"
)

// validBleAddr accepts the colon-separated form XX:XX:XX:XX:XX:XX.
func validBleAddr(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 6 {
		return false
	}
	for _, p := range parts {
		if len(p) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(p, 16, 8); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) handleBleConnect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, "malformed form body")
		return
	}
	addr := r.FormValue("addr")
	if !validBleAddr(addr) {
		s.badRequest(w, "addr must be of the form XX:XX:XX:XX:XX:XX")
		return
	}

	if err := s.Central.Connect(addr); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "connecting to "+addr)
}

func (s *Server) handleBleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Central.Disconnect(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "disconnecting")
}

func (s *Server) handleBleConnStatus(w http.ResponseWriter, r *http.Request) {
	state := s.Central.State()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": state == bridge.StateReady,
		"state":     state.String(),
		"peer_addr": s.Central.PeerAddr(),
		"mtu":       s.Central.MTU(),
	})
}

func (s *Server) handleBlePasskey(w http.ResponseWriter, r *http.Request) {
	pinStr := r.URL.Query().Get("pin")
	if pinStr == "" {
		if err := r.ParseForm(); err == nil {
			pinStr = r.FormValue("pin")
		}
	}
	pin, err := strconv.ParseUint(pinStr, 10, 32)
	if err != nil || pin > 999999 {
		s.badRequest(w, "pin must be a 6-digit number")
		return
	}

	s.Central.SetPasskey(uint32(pin))
	s.ok(w, "passkey set")
}

func (s *Server) handleBleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.Central.StartScan(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "scanning")
}

func (s *Server) handleBleStopScan(w http.ResponseWriter, r *http.Request) {
	if err := s.Central.StopScan(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "scan stopped")
}

func (s *Server) handleBleDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": s.Central.Devices().Snapshot(),
	})
}

func (s *Server) handleBleClear(w http.ResponseWriter, r *http.Request) {
	s.Central.Devices().Clear()
	s.ok(w, "device table cleared")
}
