// Copyright 2026 Blink Labs Software
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

package typeddata

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMessageKind = errors.New("unsupported message kind")
	ErrMissingField           = errors.New("missing field")
	ErrInvalidField           = errors.New("invalid field")
	ErrNoActionForKind        = errors.New("no action address bound for message kind")
)

type UnsupportedMessageKindError struct {
	Kind string
}

func (e *UnsupportedMessageKindError) Error() string {
	return "unsupported message kind: " + e.Kind
}

func (e *UnsupportedMessageKindError) Is(target error) bool {
	return target == ErrUnsupportedMessageKind
}

// MissingFieldError reports a schema field absent from the raw payload.
// Name is the dotted path of the field, e.g. "payload.choice".
type MissingFieldError struct {
	Kind Kind
	Name string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s message: missing field %q", e.Kind, e.Name)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

type InvalidFieldError struct {
	Err  error
	Name string
	Type string
	Kind Kind
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf(
		"%s message: invalid value for field %q (%s): %s",
		e.Kind,
		e.Name,
		e.Type,
		e.Err,
	)
}

func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrInvalidField
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}
