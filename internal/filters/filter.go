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

// Package filters defines the FilterChain runtime contract: the
// polymorphic Filter interface, the ordered chain that evaluates
// filters head-to-tail on read and tail-to-head on write, and the
// per-datagram error taxonomy filters may return.
package filters

import (
	"errors"
	"fmt"

	"github.com/quilkin-proxy/quilkin/internal/endpoint"
)

// ErrorKind classifies a FilterError for accounting and logging
// purposes. Every kind other than Custom maps to spec.md's fixed
// taxonomy; Custom carries a filter-specific name and detail.
type ErrorKind int

const (
	// Dropped silently discards the datagram; increments the drop
	// counter without a log line.
	Dropped ErrorKind = iota
	// RateLimitExceeded discards the datagram and increments the drop
	// counter; no log line is written for it.
	RateLimitExceeded
	// FirewallDenied discards the datagram and increments the drop
	// counter; no log line is written for it.
	FirewallDenied
	// NoTokenFound is returned by TokenRouter when no token can be
	// captured from the datagram.
	NoTokenFound
	// NoEndpointMatch is returned by TokenRouter when a token was
	// captured but no endpoint advertises it.
	NoEndpointMatch
	// Custom wraps a filter-specific error that does not fit the
	// fixed taxonomy above.
	Custom
)

func (k ErrorKind) String() string {
	switch k {
	case Dropped:
		return "Dropped"
	case RateLimitExceeded:
		return "RateLimitExceeded"
	case FirewallDenied:
		return "FirewallDenied"
	case NoTokenFound:
		return "NoTokenFound"
	case NoEndpointMatch:
		return "NoEndpointMatch"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Error is the error type every Filter's Read/Write may return. It
// never propagates above the single datagram that produced it: the
// FilterChain and the dataplane both stop at accounting for it.
type Error struct {
	Kind       ErrorKind
	FilterName string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.FilterName, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.FilterName, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a FilterError for kind, naming the filter that
// produced it.
func NewError(filterName string, kind ErrorKind, detail string) *Error {
	return &Error{FilterName: filterName, Kind: kind, Detail: detail}
}

// NewCustomError wraps an arbitrary filter-specific failure.
func NewCustomError(filterName string, err error) *Error {
	return &Error{FilterName: filterName, Kind: Custom, Detail: err.Error(), Err: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *Error, and reports whether one was found.
func KindOf(err error) (ErrorKind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// ReadContext is threaded through every filter's Read call. Filters
// may mutate Payload in place and append to Destinations; an initially
// empty Destinations list signals the dataplane to fall back to the
// default cluster once the chain completes.
type ReadContext struct {
	Source       endpoint.Address
	Payload      []byte
	Destinations []endpoint.Endpoint
}

// WriteContext is threaded through every filter's Write call, in
// reverse filter order, on the return path from an endpoint to the
// originating client.
type WriteContext struct {
	Source  endpoint.Address // the upstream endpoint that sent this datagram
	Dest    endpoint.Address // the original client
	Payload []byte
}

// Filter is a polymorphic unit in a FilterChain. Implementations must
// be side-effect-free with respect to any shared mutable state except
// through capabilities explicitly passed at construction (metrics,
// a cluster-view, a token store).
type Filter interface {
	// Name returns the filter's stable dotted identifier.
	Name() string
	// Read evaluates the filter on the forward path.
	Read(ctx *ReadContext) error
	// Write evaluates the filter on the return path.
	Write(ctx *WriteContext) error
}

// ConfigSchema lets a filter expose its typed configuration; it is
// optional. No built-in filter implements it, and the admin /config
// dump does not consult it.
type ConfigSchema interface {
	ConfigSchema() any
}
