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

package iocp

import "sync"

var (
	globalOnce sync.Once
	globalPort *Port
	globalErr  error
)

// Global returns the process-wide completion port, creating it on first use.
//
// The original this module is grounded on re-ran its Winsock-equivalent
// startup on every Socket move, which is wasted work at best and a race at
// worst; here the one-time setup a completion port needs happens exactly
// once per process no matter how many Sockets are constructed.
func Global(workers int) (*Port, error) {
	globalOnce.Do(func() {
		globalPort, globalErr = New(workers)
	})
	return globalPort, globalErr
}
