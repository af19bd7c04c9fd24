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

// Message tags, client to server.
const (
	tagHello      = 0x01
	tagGoodbye    = 0x02
	tagAckFailure = 0x0E
	tagReset      = 0x0F
	tagRun        = 0x10
	tagBegin      = 0x11
	tagCommit     = 0x12
	tagRollback   = 0x13
	tagDiscard    = 0x2F
	tagPull       = 0x3F
	tagTelemetry  = 0x54
	tagRoute      = 0x66
	tagLogon      = 0x6A
	tagLogoff     = 0x6B
)

// Reply tags, server to client.
const (
	tagSuccess = 0x70
	tagRecord  = 0x71
	tagIgnored = 0x7E
	tagFailure = 0x7F
)
