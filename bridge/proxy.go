// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	DefaultProxyPort = 4403
	MaxProxyClients  = 4

	// Largest ATT payload a single write-without-response can carry
	// regardless of negotiated MTU.
	maxAttPayload   = 244
	interChunkPause = 5 * time.Millisecond

	acceptPollTimeout = 1 * time.Second
)

// Proxy fans one BLE serial link out to plain TCP clients. Bytes from
// any client go to the peripheral; every notification goes to every
// connected client once.
type Proxy struct {
	central    *Central
	port       int
	maxClients int

	mu       sync.Mutex
	listener net.Listener
	clients  []net.Conn
	closing  bool

	wg sync.WaitGroup
}

func NewProxy(central *Central, port, maxClients int) *Proxy {
	if port == 0 {
		port = DefaultProxyPort
	}
	if maxClients <= 0 {
		maxClients = MaxProxyClients
	}
	p := &Proxy{central: central, port: port, maxClients: maxClients}
	central.SetNotifyHandler(p.broadcast)
	return p
}

// Start binds the listen socket and begins accepting clients.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p.port))
	if err != nil {
		return NewProxyError(ProxyOpBind, err.Error())
	}

	p.mu.Lock()
	p.listener = ln
	p.closing = false
	p.mu.Unlock()

	logger.Infof("proxy listening on :%d", p.port)

	p.wg.Add(1)
	go p.acceptLoop(ln)
	return nil
}

// Stop closes the listener and all client connections. Returns once the
// accept and reader goroutines have drained, bounded by their 1s read
// deadlines.
func (p *Proxy) Stop() {
	p.mu.Lock()
	p.closing = true
	ln := p.listener
	p.listener = nil
	conns := append([]net.Conn(nil), p.clients...)
	p.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	p.wg.Wait()
	logger.Infof("proxy stopped")
}

// ClientCount reports the number of connected TCP clients.
func (p *Proxy) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Proxy) acceptLoop(ln net.Listener) {
	defer p.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			p.mu.Lock()
			closing := p.closing
			p.mu.Unlock()
			if closing {
				return
			}
			logger.Errorf("%v", NewProxyError(ProxyOpAccept, err.Error()))
			return
		}

		p.mu.Lock()
		if len(p.clients) >= p.maxClients {
			p.mu.Unlock()
			logger.Warnf("%v", NewProxyError(ProxyOpClientLimit,
				fmt.Sprintf("refusing %s, %d clients connected",
					conn.RemoteAddr(), p.maxClients)))
			conn.Close()
			continue
		}
		p.clients = append(p.clients, conn)
		n := len(p.clients)
		p.mu.Unlock()

		logger.Infof("proxy client %s connected (%d/%d)",
			conn.RemoteAddr(), n, p.maxClients)

		p.wg.Add(1)
		go p.readLoop(conn)
	}
}

func (p *Proxy) readLoop(conn net.Conn) {
	defer p.wg.Done()
	defer p.dropClient(conn)

	buf := make([]byte, 1024)
	for {
		conn.SetReadDeadline(time.Now().Add(acceptPollTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			if serr := p.central.Send(buf[:n]); serr != nil {
				logger.Warnf("proxy to BLE: %v", serr)
			}
		}
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				p.mu.Lock()
				closing := p.closing
				p.mu.Unlock()
				if closing {
					return
				}
				continue
			}
			return
		}
	}
}

func (p *Proxy) dropClient(conn net.Conn) {
	conn.Close()

	p.mu.Lock()
	for i, c := range p.clients {
		if c == conn {
			p.clients = append(p.clients[:i], p.clients[i+1:]...)
			break
		}
	}
	n := len(p.clients)
	closing := p.closing
	p.mu.Unlock()

	if !closing {
		logger.Infof("proxy client %s disconnected (%d/%d)",
			conn.RemoteAddr(), n, p.maxClients)
	}
}

// broadcast delivers one notification to every client. A write error
// only logs; the reader goroutine notices the dead socket and drops the
// client.
func (p *Proxy) broadcast(data []byte) {
	p.mu.Lock()
	conns := append([]net.Conn(nil), p.clients...)
	p.mu.Unlock()

	for _, c := range conns {
		if _, err := c.Write(data); err != nil {
			logger.Debugf("%v", NewProxyError(ProxyOpSend,
				fmt.Sprintf("%s: %v", c.RemoteAddr(), err)))
		}
	}
}
