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

package conn

// State is one node of the connection's protocol state machine.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Logon
	Ready
	Run
	Pull
	Streaming
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Logon:
		return "Logon"
	case Ready:
		return "Ready"
	case Run:
		return "Run"
	case Pull:
		return "Pull"
	case Streaming:
		return "Streaming"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// legalFrom reports whether the state machine may transition from s
// to next. setState consults it on every validated transition; the
// restricted-state operations (discard/telemetry/logoff/goodbye/
// ack_failure) check the current state themselves instead.
func legalFrom(s State, next State) bool {
	switch s {
	case Disconnected:
		return next == Connecting
	case Connecting:
		return next == Logon || next == Ready || next == Error || next == Disconnected
	case Logon:
		return next == Ready || next == Error || next == Disconnected
	case Ready:
		return next == Run || next == Error || next == Disconnected || next == Ready
	case Run:
		return next == Run || next == Pull || next == Ready || next == Error || next == Disconnected
	case Pull:
		return next == Pull || next == Ready || next == Streaming || next == Error || next == Disconnected
	case Streaming:
		return next == Pull || next == Ready || next == Streaming || next == Error || next == Disconnected
	case Error:
		return next == Ready || next == Disconnected
	default:
		return false
	}
}
