// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package web

import (
	"net/http"

	"github.com/juju/errors"
)

func (s *Server) railOrError(w http.ResponseWriter) bool {
	if s.Rail == nil {
		s.appError(w, errors.New("no power rail pin configured"))
		return false
	}
	return true
}

func (s *Server) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	if !s.railOrError(w) {
		return
	}
	if err := s.Rail.On(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "power on")
}

func (s *Server) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	if !s.railOrError(w) {
		return
	}
	if err := s.Rail.Off(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "power off")
}

func (s *Server) handlePowerReboot(w http.ResponseWriter, r *http.Request) {
	if !s.railOrError(w) {
		return
	}
	if err := s.Rail.Reboot(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "power cycled")
}
