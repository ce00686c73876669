// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package web

import (
	"fmt"
	"net/http"

	gonrflink "github.com/bbnote/gonrflink"
)

func (s *Server) handleCheckSwd(w http.ResponseWriter, r *http.Request) {
	s.Session.Lock()
	defer s.Session.Unlock()

	if !s.Session.IsConnected() {
		if err := s.Session.Connect(); err != nil {
			s.appError(w, err)
			return
		}
	}

	body := map[string]interface{}{
		"connected": true,
		"idcode":    fmt.Sprintf("0x%08x", s.Session.IDCode()),
		"status":    "ok",
	}

	if part, err := s.Session.ReadPartInfo(); err == nil {
		body["part"] = part.String()
	} else {
		logger.Warnf("read part info: %v", err)
	}

	approtect, raw, err := s.Session.ReadApprotect()
	if err != nil {
		s.appError(w, err)
		return
	}
	body["approtect"] = approtect.String()
	body["approtect_raw"] = fmt.Sprintf("0x%08x", raw)

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReleaseSwd(w http.ResponseWriter, r *http.Request) {
	s.Session.Lock()
	defer s.Session.Unlock()

	s.Session.Disconnect()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("SWD released\n"))
}

// connectLocked brings the session up for handlers that already hold
// the op lock.
func (s *Server) connectLocked() error {
	if s.Session.IsConnected() {
		return nil
	}
	return s.Session.Connect()
}

func (s *Server) handleMassErase(w http.ResponseWriter, r *http.Request) {
	s.Session.Lock()
	defer s.Session.Unlock()

	if err := s.connectLocked(); err != nil {
		s.appError(w, err)
		return
	}
	if err := s.Session.CtrlApMassErase(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "mass erase complete, target unlocked")
}

func (s *Server) handleDisableProtection(w http.ResponseWriter, r *http.Request) {
	s.Session.Lock()
	defer s.Session.Unlock()

	if err := s.connectLocked(); err != nil {
		s.appError(w, err)
		return
	}
	if err := s.Session.DisableApprotect(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "access port protection disabled")
}

func (s *Server) handleEraseAll(w http.ResponseWriter, r *http.Request) {
	s.Session.Lock()
	defer s.Session.Unlock()

	if err := s.connectLocked(); err != nil {
		s.appError(w, err)
		return
	}
	if err := s.Session.NvmcMassErase(); err != nil {
		s.appError(w, err)
		return
	}
	s.ok(w, "flash erased")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind := gonrflink.ImageKind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = gonrflink.ImageFull
	}
	if _, err := kind.BaseAddr(); err != nil {
		s.badRequest(w, fmt.Sprintf("unknown image type %q", kind))
		return
	}

	if err := s.Programmer.FlashHex(r.Body, kind, r.ContentLength); err != nil {
		s.appError(w, err)
		return
	}

	progress := s.Programmer.Progress()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": progress.Message,
		"flashed": progress.Flashed,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Programmer.Progress())
}
