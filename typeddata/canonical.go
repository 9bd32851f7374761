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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// contentHashFields maps a canonical digest field to the raw free-text field
// it is computed from
var contentHashFields = map[string]string{
	"spaceHash": "space",
	"nameHash":  "name",
	"bodyHash":  "body",
}

var (
	errWrongType   = errors.New("unexpected value type")
	errOutOfRange  = errors.New("value out of range")
	errBadLength   = errors.New("unexpected byte length")
	errBadAddress  = errors.New("not a hex address")
	errUnsupported = errors.New("unsupported field type")
)

// Canonical is the normalized form of a message: exactly the schema fields,
// with integers as decimal strings, addresses as checksummed hex, byte
// strings as 0x hex and free text replaced by its keccak256 digest. A
// Canonical is never modified after construction.
type Canonical struct {
	fields map[string]any
	kind   Kind
}

func (c Canonical) Kind() Kind {
	return c.kind
}

// Fields returns a copy of the canonical field values
func (c Canonical) Fields() map[string]any {
	return copyFields(c.fields)
}

// Message returns the canonical value as a raw message. Canonicalizing the
// result yields an identical Canonical.
func (c Canonical) Message() Message {
	return Message{Kind: c.kind, Payload: Payload(copyFields(c.fields))}
}

// String returns the value of a top-level string-encoded field
func (c Canonical) String(name string) (string, bool) {
	v, ok := c.fields[name].(string)
	return v, ok
}

func (c Canonical) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message map[string]any `json:"message"`
		Kind    Kind           `json:"type"`
	}{
		Kind:    c.kind,
		Message: c.fields,
	})
}

// Canonicalize converts a raw message into its canonical form. The input is
// not modified.
func Canonicalize(msg Message) (Canonical, error) {
	schema, err := SchemaFor(msg.Kind)
	if err != nil {
		return Canonical{}, err
	}
	cz := canonicalizer{schema: schema}
	fields, err := cz.structValue(PrimaryType, "", msg.Payload)
	if err != nil {
		return Canonical{}, err
	}
	return Canonical{kind: msg.Kind, fields: fields}, nil
}

type canonicalizer struct {
	schema Schema
}

func (cz canonicalizer) structValue(
	typeName string,
	prefix string,
	raw map[string]any,
) (map[string]any, error) {
	fields := cz.schema.Types[typeName]
	ret := make(map[string]any, len(fields))
	for _, field := range fields {
		path := prefix + field.Name
		val, ok := raw[field.Name]
		if !ok || isNil(val) {
			src, hashed := contentHashFields[field.Name]
			if !hashed {
				return nil, &MissingFieldError{Kind: cz.schema.Kind, Name: path}
			}
			text, ok := raw[src]
			if !ok || isNil(text) {
				return nil, &MissingFieldError{Kind: cz.schema.Kind, Name: prefix + src}
			}
			str, ok := text.(string)
			if !ok {
				return nil, cz.invalid(prefix+src, "string", errWrongType)
			}
			ret[field.Name] = contentHash(str)
			continue
		}
		if cz.schema.isStruct(field.Type) {
			nested, ok := asMap(val)
			if !ok {
				return nil, cz.invalid(path, field.Type, errWrongType)
			}
			tmp, err := cz.structValue(field.Type, path+".", nested)
			if err != nil {
				return nil, err
			}
			ret[field.Name] = tmp
			continue
		}
		tmp, err := normalizeValue(field.Type, val)
		if err != nil {
			return nil, cz.invalid(path, field.Type, err)
		}
		ret[field.Name] = tmp
	}
	return ret, nil
}

func (cz canonicalizer) invalid(name, typ string, err error) error {
	return &InvalidFieldError{
		Kind: cz.schema.Kind,
		Name: name,
		Type: typ,
		Err:  err,
	}
}

// contentHash returns the digest that replaces a free text field
func contentHash(text string) string {
	return crypto.Keccak256Hash([]byte(text)).Hex()
}

func normalizeValue(typ string, val any) (any, error) {
	switch {
	case typ == "address":
		return normalizeAddress(val)
	case typ == "string":
		return normalizeString(val)
	case typ == "string[]":
		return normalizeStringArray(val)
	case typ == "bytes":
		b, err := toBytes(val)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(b), nil
	case strings.HasPrefix(typ, "bytes"):
		size, err := strconv.Atoi(strings.TrimPrefix(typ, "bytes"))
		if err != nil || size < 1 || size > 32 {
			return nil, errUnsupported
		}
		b, err := toBytes(val)
		if err != nil {
			return nil, err
		}
		if len(b) != size {
			return nil, fmt.Errorf("%w: %d", errBadLength, len(b))
		}
		return hexutil.Encode(b), nil
	case strings.HasPrefix(typ, "uint"):
		bits, err := strconv.Atoi(strings.TrimPrefix(typ, "uint"))
		if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
			return nil, errUnsupported
		}
		n, err := toBigInt(val)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || n.BitLen() > bits {
			return nil, errOutOfRange
		}
		return n.String(), nil
	default:
		return nil, errUnsupported
	}
}

func normalizeAddress(val any) (string, error) {
	switch v := val.(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		return v.Hex(), nil
	case [20]byte:
		return common.Address(v).Hex(), nil
	case []byte:
		if len(v) != common.AddressLength {
			return "", fmt.Errorf("%w: %d", errBadLength, len(v))
		}
		return common.BytesToAddress(v).Hex(), nil
	case string:
		if !common.IsHexAddress(v) {
			return "", errBadAddress
		}
		return common.HexToAddress(v).Hex(), nil
	default:
		return "", errWrongType
	}
}

func normalizeString(val any) (string, error) {
	if s, ok := val.(string); ok {
		return s, nil
	}
	// Numeric values (e.g. a proposal snapshot block) are carried as text
	n, err := toBigInt(val)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func normalizeStringArray(val any) ([]any, error) {
	switch v := val.(type) {
	case []string:
		ret := make([]any, 0, len(v))
		for _, s := range v {
			ret = append(ret, s)
		}
		return ret, nil
	case []any:
		ret := make([]any, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errWrongType
			}
			ret = append(ret, s)
		}
		return ret, nil
	default:
		return nil, errWrongType
	}
}

func toBytes(val any) ([]byte, error) {
	switch v := val.(type) {
	case []byte:
		return append([]byte{}, v...), nil
	case hexutil.Bytes:
		return append([]byte{}, v...), nil
	case common.Hash:
		return v.Bytes(), nil
	case *common.Hash:
		return v.Bytes(), nil
	case [32]byte:
		return append([]byte{}, v[:]...), nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errWrongType
	}
}

func toBigInt(val any) (*big.Int, error) {
	switch v := val.(type) {
	case int:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case *uint256.Int:
		return v.ToBig(), nil
	case uint256.Int:
		return v.ToBig(), nil
	case float64:
		// encoding/json decodes numbers into float64
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return nil, errOutOfRange
		}
		return big.NewInt(int64(v)), nil
	case json.Number:
		n, ok := gmath.ParseBig256(string(v))
		if !ok {
			return nil, errWrongType
		}
		return n, nil
	case string:
		n, ok := gmath.ParseBig256(v)
		if !ok {
			return nil, errWrongType
		}
		return n, nil
	default:
		return nil, errWrongType
	}
}

func asMap(val any) (map[string]any, bool) {
	switch v := val.(type) {
	case map[string]any:
		return v, true
	case Payload:
		return v, true
	default:
		return nil, false
	}
}

func isNil(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case *big.Int:
		return v == nil
	case *uint256.Int:
		return v == nil
	case *common.Address:
		return v == nil
	case *common.Hash:
		return v == nil
	default:
		return false
	}
}

func copyFields(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	ret := make(map[string]any, len(src))
	for k, v := range src {
		ret[k] = copyValue(v)
	}
	return ret
}

func copyValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return copyFields(v)
	case []any:
		ret := make([]any, len(v))
		for i, item := range v {
			ret[i] = copyValue(item)
		}
		return ret
	default:
		return v
	}
}
