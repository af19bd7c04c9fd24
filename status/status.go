// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package status implements the driver's packed 64-bit status type,
// the sole internal error currency shared by the codec, connection,
// and cell layers: bits 48-55 carry an Action, 40-47 a Domain, 32-39
// a Code, and 0-31 an auxiliary native error number or protocol
// sub-code.
package status

import "fmt"

// Action says what the caller should do in response to a Status.
type Action uint8

const (
	Ok Action = iota
	HasMore
	Wait
	Retry
	Reset
	Reroute
	Flush
	Fail
)

func (a Action) String() string {
	switch a {
	case Ok:
		return "Ok"
	case HasMore:
		return "HasMore"
	case Wait:
		return "Wait"
	case Retry:
		return "Retry"
	case Reset:
		return "Reset"
	case Reroute:
		return "Reroute"
	case Flush:
		return "Flush"
	case Fail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Domain says which subsystem a non-Ok status originated in.
type Domain uint8

const (
	DomainNone Domain = iota
	DomainSyscall
	DomainTLS
	DomainWireProto
	DomainServer
	DomainRouting
	DomainMemory
	DomainInternalState
)

func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "None"
	case DomainSyscall:
		return "Syscall"
	case DomainTLS:
		return "TLS"
	case DomainWireProto:
		return "WireProto"
	case DomainServer:
		return "Server"
	case DomainRouting:
		return "Routing"
	case DomainMemory:
		return "Memory"
	case DomainInternalState:
		return "InternalState"
	default:
		return "Unknown"
	}
}

// Code refines Domain with a more specific reason.
type Code uint8

const (
	CodeNone Code = iota
	CodeVersion
	CodeDecode
	CodeEncode
	CodeServerConnect
	CodeServerQuery
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodeVersion:
		return "Version"
	case CodeDecode:
		return "Decode"
	case CodeEncode:
		return "Encode"
	case CodeServerConnect:
		return "ServerConnect"
	case CodeServerQuery:
		return "ServerQuery"
	default:
		return "Unknown"
	}
}

// Status is the packed 64-bit outcome value: the top byte is
// unused, followed by Action, Domain, Code, and a 32-bit Aux field.
type Status uint64

// Make packs action, domain, code, and aux into a Status.
func Make(action Action, domain Domain, code Code, aux uint32) Status {
	return Status(uint64(action)<<48 | uint64(domain)<<40 | uint64(code)<<32 | uint64(aux))
}

// OKWithInfo returns an Ok status carrying aux as extra context.
func OKWithInfo(aux uint32) Status {
	return Make(Ok, DomainNone, CodeNone, aux)
}

// OK is the zero-value, no-quirks success status.
var OK = Make(Ok, DomainNone, CodeNone, 0)

// Action extracts the packed Action.
func (s Status) Action() Action { return Action(s >> 48 & 0xFF) }

// Domain extracts the packed Domain.
func (s Status) Domain() Domain { return Domain(s >> 40 & 0xFF) }

// Code extracts the packed Code.
func (s Status) Code() Code { return Code(s >> 32 & 0xFF) }

// Aux extracts the packed auxiliary value.
func (s Status) Aux() uint32 { return uint32(s & 0xFFFFFFFF) }

// IsOK reports whether s is success with no quirks attached
// (Action == Ok and Domain == None; HasMore and Flush are "good"
// but not "nothing is going on", so they don't count).
func (s Status) IsOK() bool {
	return s.Action() == Ok && s.Domain() == DomainNone
}

func (s Status) String() string {
	return fmt.Sprintf("Status{action:%s domain:%s code:%s aux:%d}",
		s.Action(), s.Domain(), s.Code(), s.Aux())
}

// Error implements the error interface directly on Status, so a
// Status returned as an error can still be recovered with a type
// assertion or errors.As by code that wants to run it through
// Handle instead of just printing it.
func (s Status) Error() string { return s.String() }

// Err returns s as an error, or nil if s is OK. Because Status
// implements error itself, the concrete Status value survives the
// conversion and a caller can type-assert the returned error back to
// Status to recover Action/Domain/Code/Aux.
func (s Status) Err() error {
	if s.IsOK() {
		return nil
	}
	return s
}

// Handler is whatever holds retry/reset state for a single
// connection worker; Handle dispatches a Status's Action against it.
// Implemented by *cell.Cell.
type Handler interface {
	CanRetry() bool
	BeginRetry()
	SendReset() error
	RequestReroute() error
	Stop()
}

// Handle executes the action prescribed by status against h: Ok and
// HasMore are no-ops, Retry records one more attempt via BeginRetry
// if the handler is still under its retry budget (re-issuing the
// command is left to the caller) and otherwise stops it, Reset
// sends a protocol RESET, Reroute asks for a fresh routing table,
// and Fail stops the handler outright.
func Handle(s Status, h Handler) error {
	switch s.Action() {
	case Ok, HasMore, Wait, Flush:
		return nil
	case Retry:
		if h.CanRetry() {
			h.BeginRetry()
			return nil
		}
		h.Stop()
		return s.Err()
	case Reset:
		return h.SendReset()
	case Reroute:
		return h.RequestReroute()
	case Fail:
		h.Stop()
		return s.Err()
	default:
		h.Stop()
		return s.Err()
	}
}
