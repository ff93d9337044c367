package viewer

import (
	"reflect"
	"testing"
)

func TestClientMessageRoundTrip(t *testing.T) {
	shellID := uint32(7)
	cases := []struct {
		name string
		in   *ClientMessage
	}{
		{"authenticate", &ClientMessage{Authenticate: &Authenticate{EncryptedZeros: []byte{1, 2, 3}}}},
		{"subscribe", &ClientMessage{Subscribe: &Subscribe{ID: 1, Chunknum: 4}}},
		{"offer", &ClientMessage{Offer: &Offer{ShellID: shellID, SDP: "v=0 offer"}}},
		{"fallback", &ClientMessage{Fallback: &shellID}},
		{"data", &ClientMessage{Data: &ClientData{ID: 1, Ciphertext: []byte("ct"), Offset: 42}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := Encode(c.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			var out ClientMessage
			if err := Decode(data, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(c.in, &out) {
				t.Fatalf("round trip mismatch: got %+v want %+v", out, c.in)
			}
		})
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	shellID := uint32(3)
	cases := []struct {
		name string
		in   *ServerMessage
	}{
		{"hello", &ServerMessage{Hello: &Hello{UserID: 1, ServerName: "abc123"}}},
		{"answer", &ServerMessage{Answer: &Answer{ShellID: shellID, SDP: "v=0 answer"}}},
		{"migrated", &ServerMessage{Migrated: &shellID}},
		{"invalid auth", &ServerMessage{InvalidAuth: true}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := Encode(c.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			var out ServerMessage
			if err := Decode(data, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(c.in, &out) {
				t.Fatalf("round trip mismatch: got %+v want %+v", out, c.in)
			}
		})
	}
}
