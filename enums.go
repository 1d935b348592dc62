// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asyncsocket

// AddressFamily reproduces the POSIX/Winsock address-family integer values
// the wire-level socket syscalls expect. Only the values this module's
// TCP-stream scope needs are given names; others are left to the caller as
// raw ints.
type AddressFamily int

const (
	AddressFamilyUnspecified     AddressFamily = 0
	AddressFamilyLocalToHost     AddressFamily = 1
	AddressFamilyInternetworkV4  AddressFamily = 2
	AddressFamilyInternetworkV6  AddressFamily = 23
)

// SocketType reproduces the POSIX/Winsock socket-type integer values.
type SocketType int

const (
	SocketTypeStream          SocketType = 1
	SocketTypeDatagram        SocketType = 2
	SocketTypeRaw             SocketType = 3
	SocketTypeReliablyDeliver SocketType = 4
	SocketTypeSequencedPacket SocketType = 5
)

// ProtocolType reproduces the POSIX/Winsock protocol integer values.
type ProtocolType int

const (
	ProtocolTypeIP   ProtocolType = 0
	ProtocolTypeICMP ProtocolType = 1
	ProtocolTypeIGMP ProtocolType = 2
	ProtocolTypeTCP  ProtocolType = 6
	ProtocolTypeUDP  ProtocolType = 17
	ProtocolTypeRaw  ProtocolType = 255
)
