package value

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Encode produces a deterministic binary encoding of v, in the teacher's
// BSON-flavored style: [1-byte kind][payload]. Objects are written with
// their keys sorted so that two structurally equal objects always produce
// identical bytes, even though Go map iteration order is not stable.
func Encode(v Value) []byte {
	buf := new(bytes.Buffer)
	encodeInto(buf, v)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindNumber:
		var bits [8]byte
		binary.LittleEndian.PutUint64(bits[:], float64Bits(v.Number))
		buf.Write(bits[:])
	case KindString:
		writeString(buf, v.Str)
	case KindList:
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(v.List)))
		buf.Write(count[:])
		for _, item := range v.List {
			encodeInto(buf, item)
		}
	case KindObject:
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(keys)))
		buf.Write(count[:])
		for _, k := range keys {
			writeString(buf, k)
			encodeInto(buf, v.Object[k])
		}
	}
}

func writeString(buf *bytes.Buffer, s string) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
}

// Decode parses the bytes produced by Encode back into a Value.
func Decode(data []byte) (Value, error) {
	r := bytes.NewReader(data)
	v, err := decodeFrom(r)
	if err != nil {
		return Value{}, err
	}
	if r.Len() != 0 {
		return Value{}, fmt.Errorf("value: %d trailing bytes after decode", r.Len())
	}
	return v, nil
}

func decodeFrom(r *bytes.Reader) (Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Value{}, fmt.Errorf("value: read kind: %w", err)
	}
	switch Kind(kindByte) {
	case KindNull:
		return Null, nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, fmt.Errorf("value: read bool: %w", err)
		}
		return NewBool(b != 0), nil
	case KindNumber:
		var bits [8]byte
		if _, err := io.ReadFull(r, bits[:]); err != nil {
			return Value{}, fmt.Errorf("value: read number: %w", err)
		}
		return NewNumber(float64FromBits(binary.LittleEndian.Uint64(bits[:]))), nil
	case KindString:
		s, err := readString(r)
		if err != nil {
			return Value{}, fmt.Errorf("value: read string: %w", err)
		}
		return NewString(s), nil
	case KindList:
		count, err := readCount(r)
		if err != nil {
			return Value{}, fmt.Errorf("value: read list count: %w", err)
		}
		items := make([]Value, count)
		for i := range items {
			items[i], err = decodeFrom(r)
			if err != nil {
				return Value{}, err
			}
		}
		return NewList(items), nil
	case KindObject:
		count, err := readCount(r)
		if err != nil {
			return Value{}, fmt.Errorf("value: read object count: %w", err)
		}
		fields := make(map[string]Value, count)
		for i := uint32(0); i < count; i++ {
			key, err := readString(r)
			if err != nil {
				return Value{}, fmt.Errorf("value: read object key: %w", err)
			}
			fields[key], err = decodeFrom(r)
			if err != nil {
				return Value{}, err
			}
		}
		return NewObject(fields), nil
	default:
		return Value{}, fmt.Errorf("value: unknown kind tag %d", kindByte)
	}
}

func readCount(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	length, err := readCount(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
