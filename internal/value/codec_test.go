package value

import "testing"

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []Value{
		Null,
		NewBool(true),
		NewBool(false),
		NewNumber(42),
		NewNumber(-3.14159),
		NewString(""),
		NewString("hello world"),
	}

	for _, want := range cases {
		data := Encode(want)
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed for %v: %v", want, err)
		}
		if !Equal(want, got) {
			t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
		}
	}
}

func TestEncodeDecodeNested(t *testing.T) {
	v := NewObject(map[string]Value{
		"name": NewString("agent-1"),
		"tags": NewList([]Value{NewString("a"), NewString("b")}),
		"meta": NewObject(map[string]Value{
			"count":   NewNumber(3),
			"enabled": NewBool(true),
			"parent":  Null,
		}),
	})

	data := Encode(v)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !Equal(v, got) {
		t.Errorf("round-trip mismatch: want %+v, got %+v", v, got)
	}
}

func TestEncodeObjectIsDeterministic(t *testing.T) {
	v := NewObject(map[string]Value{
		"z": NewNumber(1),
		"a": NewNumber(2),
		"m": NewNumber(3),
	})

	first := Encode(v)
	for i := 0; i < 10; i++ {
		if got := Encode(v); string(got) != string(first) {
			t.Fatalf("encoding of the same object differed across calls")
		}
	}
}

func TestFromNativeToNativeRoundTrip(t *testing.T) {
	native := map[string]interface{}{
		"n":     float64(7),
		"s":     "hi",
		"b":     true,
		"null":  nil,
		"list":  []interface{}{float64(1), "x", false},
		"child": map[string]interface{}{"k": "v"},
	}

	v, err := FromNative(native)
	if err != nil {
		t.Fatalf("FromNative failed: %v", err)
	}

	back := v.ToNative()
	backMap, ok := back.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map[string]interface{}, got %T", back)
	}
	if backMap["s"] != "hi" || backMap["b"] != true {
		t.Errorf("unexpected round-trip result: %+v", backMap)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data := append(Encode(NewNumber(1)), 0xFF)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xFE}); err == nil {
		t.Fatal("expected error for unknown kind tag")
	}
}
