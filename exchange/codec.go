// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exchange

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Record wire form: one type tag byte followed by a fixed or length
// prefixed payload. Integers decode canonically as int64, floats as
// float64.
const (
	tagNil    byte = 0
	tagFalse  byte = 1
	tagTrue   byte = 2
	tagInt    byte = 3 // 8 bytes, big endian two's complement
	tagFloat  byte = 4 // 8 bytes, IEEE 754 bits
	tagString byte = 5 // 4 byte length then bytes
	tagBytes  byte = 6 // 4 byte length then bytes
)

func appendFixed[T constraints.Unsigned](dst []byte, v T, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

func readFixed[T constraints.Unsigned](src []byte, width int) T {
	var v T
	for i := 0; i < width; i++ {
		v = v<<8 | T(src[i])
	}
	return v
}

func appendRecord(dst []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(dst, tagNil), nil
	case bool:
		if v {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil
	case int:
		return appendInt(dst, int64(v)), nil
	case int8:
		return appendInt(dst, int64(v)), nil
	case int16:
		return appendInt(dst, int64(v)), nil
	case int32:
		return appendInt(dst, int64(v)), nil
	case int64:
		return appendInt(dst, v), nil
	case uint8:
		return appendInt(dst, int64(v)), nil
	case uint16:
		return appendInt(dst, int64(v)), nil
	case uint32:
		return appendInt(dst, int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, errors.Errorf("uint64 value %d overflows the integer wire form", v)
		}
		return appendInt(dst, int64(v)), nil
	case float32:
		return appendFloat(dst, float64(v)), nil
	case float64:
		return appendFloat(dst, v), nil
	case string:
		dst = append(dst, tagString)
		dst = appendFixed(dst, uint32(len(v)), 4)
		return append(dst, v...), nil
	case []byte:
		dst = append(dst, tagBytes)
		dst = appendFixed(dst, uint32(len(v)), 4)
		return append(dst, v...), nil
	default:
		return nil, errors.Errorf("unsupported record type %T", v)
	}
}

func appendInt(dst []byte, v int64) []byte {
	dst = append(dst, tagInt)
	return appendFixed(dst, uint64(v), 8)
}

func appendFloat(dst []byte, v float64) []byte {
	dst = append(dst, tagFloat)
	return appendFixed(dst, math.Float64bits(v), 8)
}

// decodeRecord decodes one record from the front of src, returning the
// value and the number of bytes consumed.
func decodeRecord(src []byte) (any, int, error) {
	if len(src) == 0 {
		return nil, 0, errors.New("truncated record: missing type tag")
	}
	tag, payload := src[0], src[1:]
	switch tag {
	case tagNil:
		return nil, 1, nil
	case tagFalse:
		return false, 1, nil
	case tagTrue:
		return true, 1, nil
	case tagInt:
		if len(payload) < 8 {
			return nil, 0, errors.New("truncated integer record")
		}
		return int64(readFixed[uint64](payload, 8)), 9, nil
	case tagFloat:
		if len(payload) < 8 {
			return nil, 0, errors.New("truncated float record")
		}
		return math.Float64frombits(readFixed[uint64](payload, 8)), 9, nil
	case tagString, tagBytes:
		if len(payload) < 4 {
			return nil, 0, errors.New("truncated length prefix")
		}
		n := int(readFixed[uint32](payload, 4))
		if len(payload) < 4+n {
			return nil, 0, errors.Errorf("truncated record: want %d payload bytes, have %d", n, len(payload)-4)
		}
		body := payload[4 : 4+n]
		if tag == tagString {
			return string(body), 5 + n, nil
		}
		out := make([]byte, n)
		copy(out, body)
		return out, 5 + n, nil
	default:
		return nil, 0, errors.Errorf("unknown record tag %d", tag)
	}
}
