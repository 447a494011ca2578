// Copyright 2025 Poiesic Systems
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


package query

import (
	"time"

	"github.com/poiesic/docqa/vecstore"
)

// Monitor provides hooks to observe one Ask call.
// Implement this interface to track intermediate steps during answering.
type Monitor interface {
	Start(question string)
	AfterRetrieval(hits []vecstore.ScoredDocument)
	AfterGeneration(answer string)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                          {}
func (n *noopMonitor) AfterRetrieval(_ []vecstore.ScoredDocument) {}
func (n *noopMonitor) AfterGeneration(_ string)                {}
func (n *noopMonitor) Finish(_ *Result)                        {}

// TimingMonitor records stage durations for one Ask call. Not safe for
// concurrent use; create one per call.
type TimingMonitor struct {
	started        time.Time
	retrievalDone  time.Time
	generationDone time.Time
	finished       time.Time
}

var _ Monitor = (*TimingMonitor)(nil)

func (m *TimingMonitor) Start(_ string) {
	m.started = time.Now()
}

func (m *TimingMonitor) AfterRetrieval(_ []vecstore.ScoredDocument) {
	m.retrievalDone = time.Now()
}

func (m *TimingMonitor) AfterGeneration(_ string) {
	m.generationDone = time.Now()
}

func (m *TimingMonitor) Finish(_ *Result) {
	m.finished = time.Now()
}

// RetrievalTime returns the elapsed retrieval stage duration.
func (m *TimingMonitor) RetrievalTime() time.Duration {
	if m.retrievalDone.IsZero() {
		return 0
	}
	return m.retrievalDone.Sub(m.started)
}

// GenerationTime returns the elapsed generation stage duration. Zero
// when retrieval short-circuited to the fallback answer.
func (m *TimingMonitor) GenerationTime() time.Duration {
	if m.generationDone.IsZero() {
		return 0
	}
	return m.generationDone.Sub(m.retrievalDone)
}

// TotalTime returns the wall-clock duration of the whole call.
func (m *TimingMonitor) TotalTime() time.Duration {
	if m.finished.IsZero() {
		return time.Since(m.started)
	}
	return m.finished.Sub(m.started)
}
