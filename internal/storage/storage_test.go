package storage

import "testing"

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultQueryLimit, -1: DefaultQueryLimit, 50: 50, MaxQueryLimit + 1: MaxQueryLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	v := struct{ A int }{A: 7}
	if err := (Row{Payload: []byte("null")}).Decode(&v); err != nil || v.A != 7 {
		t.Errorf("expected untouched value, got %+v %v", v, err)
	}
	if err := (Row{Topic: "x", Payload: []byte("{")}).Decode(&v); err == nil {
		t.Error("expected decode error")
	}
}
