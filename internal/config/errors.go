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

package config

import "fmt"

// ErrorKind classifies why a configuration failed to load or
// validate. All kinds are fatal at startup.
type ErrorKind int

const (
	// ParseFailure covers invalid YAML syntax and strict-decode failures
	// (unknown top-level field, wrong field type).
	ParseFailure ErrorKind = iota
	// EmptyList covers a required list field with zero entries.
	EmptyList
	// NotUnique covers a list field whose entries must be pairwise
	// distinct (endpoint addresses).
	NotUnique
	// InvalidURL covers an unparseable management server address.
	InvalidURL
	// InvalidToken covers a base64-encoded endpoint token that fails
	// to decode.
	InvalidToken
	// BothOrNeither covers specifying zero or both of static/dynamic.
	BothOrNeither
)

func (k ErrorKind) String() string {
	switch k {
	case ParseFailure:
		return "Parse"
	case EmptyList:
		return "EmptyList"
	case NotUnique:
		return "NotUnique"
	case InvalidURL:
		return "InvalidURL"
	case InvalidToken:
		return "InvalidToken"
	case BothOrNeither:
		return "BothOrNeither"
	default:
		return "Unknown"
	}
}

// Error is returned by Load and Parse. Field names the offending
// configuration path (e.g. "static.endpoints", "static.endpoints.address").
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s(%q): %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("config: %s(%q)", e.Kind, e.Field)
}

func (e *Error) Unwrap() error { return e.Err }

func emptyListErr(field string) *Error     { return &Error{Kind: EmptyList, Field: field} }
func notUniqueErr(field string) *Error     { return &Error{Kind: NotUnique, Field: field} }
func invalidURLErr(field string, err error) *Error {
	return &Error{Kind: InvalidURL, Field: field, Err: err}
}
func invalidTokenErr(field string, err error) *Error {
	return &Error{Kind: InvalidToken, Field: field, Err: err}
}
func parseErr(err error) *Error { return &Error{Kind: ParseFailure, Field: "", Err: err} }
