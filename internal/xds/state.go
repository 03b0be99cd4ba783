/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package xds

// phase names a type URL's position in the ACK/NACK state machine:
//
//	Uninitialized -> (send initial)       -> Pending
//	Pending       -> (response accepted)  -> Synced
//	Synced        -> (response accepted)  -> Synced (new version/nonce)
//	Pending|Synced -> (response rejected) -> Synced, retains prior version, NACK sent
//	Any           -> (stream error)       -> Uninitialized
type phase int

const (
	uninitialized phase = iota
	pending
	synced
)

// typeState tracks one type URL's subscription bookkeeping across the
// lifetime of a single stream. It is reset to the zero value on every
// reconnect, which is what forces the next initial request for that
// type to be a fresh wildcard subscription.
type typeState struct {
	phase             phase
	lastAcceptedVer   string
	lastNonce         string
	pendingResources  []string
	lastError         string
}

func newTypeState() *typeState {
	return &typeState{phase: uninitialized}
}

// accept transitions the state to Synced with the new version/nonce.
func (s *typeState) accept(version, nonce string) {
	s.phase = synced
	s.lastAcceptedVer = version
	s.lastNonce = nonce
	s.lastError = ""
}

// reject retains the previously accepted version (possibly empty, if
// this is the first response) but advances the nonce, and records the
// rejection detail for the NACK.
func (s *typeState) reject(nonce string, detail string) {
	s.phase = synced
	s.lastNonce = nonce
	s.lastError = detail
}

// markPending records that the initial wildcard request for this type
// has been sent and a response is awaited.
func (s *typeState) markPending() {
	s.phase = pending
}

// reset returns the state to Uninitialized, as happens on every
// reconnect.
func (s *typeState) reset() {
	*s = typeState{phase: uninitialized}
}
