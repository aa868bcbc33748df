package frame

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	body := map[string]any{"token": "secret", "sn": 42}

	encoded, err := Encode(OpIdentify, body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	f, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Op != OpIdentify {
		t.Errorf("op: got %s, want %s", f.Op, OpIdentify)
	}

	var got struct {
		Token string `json:"token"`
		SN    int64  `json:"sn"`
	}
	if err := f.Unmarshal(&got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Token != "secret" || got.SN != 42 {
		t.Errorf("body mismatch: %+v", got)
	}
}

func TestRoundTripAllOpcodes(t *testing.T) {
	ops := []Opcode{OpEvent, OpPing, OpPong, OpIdentify, OpReady, OpMeta}

	for _, op := range ops {
		encoded, err := Encode(op, nil)
		if err != nil {
			t.Fatalf("encode %s: %v", op, err)
		}
		f, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode %s: %v", op, err)
		}
		if f.Op != op {
			t.Errorf("op mismatch: got %s, want %s", f.Op, op)
		}
	}
}

func TestPingWireFormat(t *testing.T) {
	encoded, err := Encode(OpPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != `{"op":1,"body":{}}` {
		t.Errorf("unexpected ping encoding %s", encoded)
	}
}

func TestDecodeWithoutBody(t *testing.T) {
	for _, in := range []string{`{"op":2}`, `{"op":2,"body":null}`} {
		f, err := Decode([]byte(in))
		if err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		if f.Op != OpPong || f.Body != nil {
			t.Errorf("decode %s: got %+v", in, f)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, err := Decode([]byte(`{"body":{}}`)); !errors.Is(err, ErrMissingOpcode) {
		t.Errorf("expected ErrMissingOpcode, got %v", err)
	}
	if _, err := Decode([]byte(`{"op":0,"body":"x"}`)); !errors.Is(err, ErrBadBody) {
		t.Errorf("expected ErrBadBody, got %v", err)
	}
}

func TestOversizedPayload(t *testing.T) {
	big := strings.Repeat("x", MaxPayloadLen+1)
	_, err := Encode(OpEvent, map[string]string{"content": big})
	if err != ErrPayloadTooLarge {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestSequence(t *testing.T) {
	f, err := Decode([]byte(`{"op":0,"body":{"sn":42,"type":"message-created"}}`))
	if err != nil {
		t.Fatal(err)
	}
	sn, ok, err := f.Sequence()
	if err != nil || !ok || sn != 42 {
		t.Errorf("sequence: got %d %v %v", sn, ok, err)
	}

	f, _ = Decode([]byte(`{"op":0,"body":{"type":"internal"}}`))
	if _, ok, _ := f.Sequence(); ok {
		t.Error("did not expect a sequence number")
	}

	f, _ = Decode([]byte(`{"op":4,"body":{"sn":1}}`))
	if _, ok, _ := f.Sequence(); ok {
		t.Error("only EVENT frames carry a sequence number")
	}
}

func TestOpcodeString(t *testing.T) {
	if OpMeta.String() != "META" {
		t.Errorf("got %s", OpMeta)
	}
	if Opcode(9).String() != "OP(9)" {
		t.Errorf("got %s", Opcode(9))
	}
}

func TestDedupWindow(t *testing.T) {
	d := NewDedupWindow()

	if d.IsDuplicate(1) {
		t.Error("first sn should not be duplicate")
	}
	if !d.IsDuplicate(1) {
		t.Error("second check of same sn should be duplicate")
	}
	if d.IsDuplicate(2) {
		t.Error("different sn should not be duplicate")
	}
	if d.Len() != 2 {
		t.Errorf("expected len 2, got %d", d.Len())
	}

	d.Reset()
	if d.Len() != 0 || d.IsDuplicate(1) {
		t.Error("reset should forget every sn")
	}
}

func TestDedupWindowEviction(t *testing.T) {
	d := NewDedupWindow()

	// Fill beyond capacity
	for i := 0; i < dedupWindowSize+100; i++ {
		d.IsDuplicate(int64(i))
	}

	if d.Len() > dedupWindowSize {
		t.Errorf("window should not exceed %d, got %d", dedupWindowSize, d.Len())
	}
	if d.IsDuplicate(0) {
		t.Error("oldest sn should have been evicted")
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	d := NewDedupWindow()
	now := time.Now()
	d.now = func() time.Time { return now }

	d.IsDuplicate(7)
	now = now.Add(dedupWindowTTL + time.Second)
	if d.IsDuplicate(7) {
		t.Error("expired sn should not be duplicate")
	}
}
