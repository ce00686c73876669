package bridge

import (
	"fmt"
)

type BlePhase int

const (
	BlePhaseConnect BlePhase = iota
	BlePhasePair
	BlePhaseEncrypt
	BlePhaseDiscover
	BlePhaseSubscribe
	BlePhaseSend
)

func (p BlePhase) String() string {
	switch p {
	case BlePhaseConnect:
		return "connect"
	case BlePhasePair:
		return "pair"
	case BlePhaseEncrypt:
		return "encrypt"
	case BlePhaseDiscover:
		return "discover"
	case BlePhaseSubscribe:
		return "subscribe"
	case BlePhaseSend:
		return "send"
	default:
		return "unknown"
	}
}

// BleError reports which phase of the central state machine failed.
type BleError struct {
	Phase BlePhase
	msg   string
}

func (e *BleError) Error() string {
	return fmt.Sprintf("ble %s failed: %s", e.Phase, e.msg)
}

func NewBleError(phase BlePhase, msg string) error {
	return &BleError{phase, msg}
}

type ProxyOp int

const (
	ProxyOpBind ProxyOp = iota
	ProxyOpAccept
	ProxyOpClientLimit
	ProxyOpSend
	ProxyOpRecv
)

func (o ProxyOp) String() string {
	switch o {
	case ProxyOpBind:
		return "bind"
	case ProxyOpAccept:
		return "accept"
	case ProxyOpClientLimit:
		return "client limit"
	case ProxyOpSend:
		return "send"
	case ProxyOpRecv:
		return "recv"
	default:
		return "unknown"
	}
}

// ProxyError reports a TCP proxy failure.
type ProxyError struct {
	Op  ProxyOp
	msg string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s failed: %s", e.Op, e.msg)
}

func NewProxyError(op ProxyOp, msg string) error {
	return &ProxyError{op, msg}
}
