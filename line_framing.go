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

import "bytes"

// LineTerminator selects the byte sequence ReceiveLineAsync scans for.
type LineTerminator int

const (
	LineTerminatorCR LineTerminator = iota
	LineTerminatorLF
	LineTerminatorCRLF
)

// ReceiveLineAsync issues one-byte-wide ReceiveAsync calls against s in a
// loop, appending each received byte to the accumulated line until the
// chosen terminator is observed. The terminator bytes themselves are
// included in the settled result.
//
// An unknown terminator value fails synchronously with a logic error,
// since the caller has not yet awaited anything.
func ReceiveLineAsync(s *Socket, terminator LineTerminator) *Awaiter[string] {
	awaitable := NewAwaitable[string]()
	awaiter := awaitable.GetAwaiter()

	switch terminator {
	case LineTerminatorCR, LineTerminatorLF, LineTerminatorCRLF:
	default:
		awaitable.SetError(newLogicError("unknown line terminator %v", terminator))
		return awaiter
	}

	go receiveLine(s, terminator, awaitable)
	return awaiter
}

func receiveLine(s *Socket, terminator LineTerminator, awaitable *Awaitable[string]) {
	var line bytes.Buffer
	one := make([]byte, 1)

	for {
		if _, err := s.ReceiveAsync(one, 1).Get(); err != nil {
			awaitable.SetError(err)
			return
		}
		b := one[0]
		line.WriteByte(b)

		switch terminator {
		case LineTerminatorCR:
			if b == '\r' {
				awaitable.SetResult(line.String())
				return
			}

		case LineTerminatorLF:
			if b == '\n' {
				awaitable.SetResult(line.String())
				return
			}

		case LineTerminatorCRLF:
			if b != '\r' {
				continue
			}
			if _, err := s.ReceiveAsync(one, 1).Get(); err != nil {
				awaitable.SetError(err)
				return
			}
			line.WriteByte(one[0])
			if one[0] == '\n' {
				awaitable.SetResult(line.String())
				return
			}
			// The lookahead byte did not complete a CRLF match. It has
			// already been appended; simply keep scanning rather than
			// failing the request (the control-path bug flagged in the
			// design notes this module fixes).
		}
	}
}
