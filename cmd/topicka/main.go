// Copyright 2026 The TopicKA Authors
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

// Command topicka runs the knowledge-grounded generation engine.
//
// Usage:
//
//	topicka decode --input requests.jsonl    # Decode a file of requests
//	topicka train --input examples.jsonl     # Run the training forward pass
package main

import "github.com/SixingPKU/IJCAI2020-TopicKA/cmd/topicka/cmd"

// Set by the release pipeline via ldflags.
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
