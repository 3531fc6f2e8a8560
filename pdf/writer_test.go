package pdf

import (
	"bytes"
	"reflect"
	"testing"
)

type encodeTest struct {
	object   Object
	expected string
}

func runEncodeTests(t *testing.T, tests []encodeTest) {
	for n, test := range tests {
		encoded, err := EncodeValue(test.object)
		if err != nil {
			t.Errorf("test %v\nEncode Error:\n\t%v\n", n, err)
			continue
		}
		if string(encoded) != test.expected {
			t.Errorf("test %v\nExpected:\n\t%q\nGot:\n\t%q\n", n, test.expected, encoded)
		}
	}
}

func TestEncodeBasicObjects(t *testing.T) {
	runEncodeTests(t, []encodeTest{
		{Boolean(true), "true"},
		{Boolean(false), "false"},
		{Integer(-42), "-42"},
		{Real(3.5), "3.5"},
		{String("Ralph (the second)"), `(Ralph \(the second\))`},
		{Name("Catalog"), "/Catalog"},
		{Null{}, "null"},
		{ObjectReference{ObjectNumber: 12, GenerationNumber: 3}, "12 3 R"},
		{Array{Integer(1), Name("Two"), String("three")}, "[1 /Two (three)]"},
	})
}

// Keys are written in sorted order, so equal dictionaries always
// serialize to the same bytes.
func TestEncodeDictionaryIsDeterministic(t *testing.T) {
	dict := Dictionary{
		"Type":  Name("Catalog"),
		"Pages": ObjectReference{ObjectNumber: 2},
		"Names": ObjectReference{ObjectNumber: 7},
	}

	expected := "<</Names 7 0 R/Pages 2 0 R/Type /Catalog>>"
	first, err := EncodeValue(dict)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != expected {
		t.Fatalf("Expected:\n\t%q\nGot:\n\t%q\n", expected, first)
	}

	for i := 0; i < 16; i++ {
		again, err := EncodeValue(dict)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d produced different bytes:\n\t%q\n\t%q\n", i, first, again)
		}
	}
}

// The Length entry always reflects the exact number of stream bytes
// written, no matter what the dictionary claimed.
func TestEncodeStreamForcesLength(t *testing.T) {
	stream := Stream{
		Dictionary: Dictionary{"Length": Integer(9999)},
		Stream:     []byte("hello"),
	}

	expected := "<</Length 5>>\nstream\nhello\nendstream"
	encoded, err := EncodeValue(stream)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != expected {
		t.Fatalf("Expected:\n\t%q\nGot:\n\t%q\n", expected, encoded)
	}
}

func TestEncodeIndirectObjectFraming(t *testing.T) {
	obj := IndirectObject{
		ObjectReference: ObjectReference{ObjectNumber: 12},
		Object:          String("Brillig"),
	}

	expected := "12 0 obj\n(Brillig)\nendobj\n"
	encoded, err := EncodeValue(obj)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != expected {
		t.Fatalf("Expected:\n\t%q\nGot:\n\t%q\n", expected, encoded)
	}
}

func TestFlateRoundTrip(t *testing.T) {
	data := []byte("some data that should survive a round trip through zlib")

	encoded, err := FlateEncode(data)
	if err != nil {
		t.Fatal(err)
	}

	stream := Stream{
		Dictionary: Dictionary{"Filter": Name("FlateDecode")},
		Stream:     encoded,
	}
	decoded, err := stream.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("Expected:\n\t%q\nGot:\n\t%q\n", data, decoded)
	}
}

func TestDecodeWithoutFilterIsIdentity(t *testing.T) {
	stream := Stream{Stream: []byte("raw bytes")}
	decoded, err := stream.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, stream.Stream) {
		t.Fatalf("Expected:\n\t%q\nGot:\n\t%q\n", stream.Stream, decoded)
	}
}

// Rows predicted with the PNG Up filter, the common layout for
// cross-reference stream data.
func TestDecodeFlateWithPredictor(t *testing.T) {
	predicted := []byte{
		2, 1, 2, 3, 4,
		2, 4, 4, 4, 4,
	}
	encoded, err := FlateEncode(predicted)
	if err != nil {
		t.Fatal(err)
	}

	stream := Stream{
		Dictionary: Dictionary{
			"Filter": Name("FlateDecode"),
			"DecodeParms": Dictionary{
				"Predictor": Integer(12),
				"Columns":   Integer(4),
			},
		},
		Stream: encoded,
	}
	decoded, err := stream.Decode()
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(decoded, expected) {
		t.Fatalf("Expected:\n\t%v\nGot:\n\t%v\n", expected, decoded)
	}
}

func TestDecodeRejectsShortPredictorRows(t *testing.T) {
	encoded, err := FlateEncode([]byte{2, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	stream := Stream{
		Dictionary: Dictionary{
			"Filter": Name("FlateDecode"),
			"DecodeParms": Dictionary{
				"Predictor": Integer(12),
				"Columns":   Integer(4),
			},
		},
		Stream: encoded,
	}
	if _, err := stream.Decode(); err == nil {
		t.Error("expected an error for truncated predictor rows")
	}
}

// Strings the serializer escapes must decode back to the same bytes.
func TestStringRoundTrip(t *testing.T) {
	strings := []String{
		String("a(b"),
		String(")b("),
		String(`back\slash`),
		String("\\("),
		String("cr\rlf\nboth\r\n"),
		String([]byte{0, 1, 2, 0x28, 0x29, 0x5c, 0x7f, 0x80, 0xdc, 0xff}),
	}

	for n, s := range strings {
		encoded, err := EncodeValue(s)
		if err != nil {
			t.Fatalf("test %v: %v", n, err)
		}

		decoded, length, err := ParseObject(encoded)
		if err != nil {
			t.Fatalf("test %v: parsing %q: %v", n, encoded, err)
		}
		if length != len(encoded) {
			t.Errorf("test %v: consumed %d of %d bytes of %q", n, length, len(encoded), encoded)
		}
		if !reflect.DeepEqual(decoded, s) {
			t.Errorf("test %v\nExpected Object:\n\t%#v\nGot Object:\n\t%#v\n", n, s, decoded)
		}
	}
}

func TestEncodeStreamLeavesDictionaryUntouched(t *testing.T) {
	dict := Dictionary{"Type": Name("ObjStm")}
	stream := Stream{Dictionary: dict, Stream: []byte("hello")}

	if _, err := EncodeValue(stream); err != nil {
		t.Fatal(err)
	}

	if _, ok := dict["Length"]; ok {
		t.Error("serializing a stream must not write Length into the caller's dictionary")
	}
	if len(dict) != 1 {
		t.Errorf("caller's dictionary changed: %#v", dict)
	}
}
