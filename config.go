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

import "flag"

// Ambient tunables, registered as flags the same way fEnableDebug is in
// debug.go rather than through a separate config-loading layer.
var (
	fDispatchWorkers = flag.Int(
		"asyncsocket.dispatch_workers",
		4,
		"Number of background goroutines used to invoke ResultCell callbacks.")

	fCompletionWorkers = flag.Int(
		"asyncsocket.completion_workers",
		4,
		"Number of background goroutines used to dispatch completion-port callbacks.")

	fDefaultBacklog = flag.Int(
		"asyncsocket.default_backlog",
		128,
		"Backlog passed to Listen when the caller does not specify one.")
)
