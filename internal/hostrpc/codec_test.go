package hostrpc

import (
	"reflect"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	var codec jsonCodec

	cases := []struct {
		name string
		in   *ClientUpdate
	}{
		{"data frame", &ClientUpdate{Data: &DataFrame{ShellID: 1, Ciphertext: []byte("hi")}}},
		{"answer frame", &ClientUpdate{Answer: &AnswerFrame{UserID: 2, ShellID: 1, SDP: "v=0..."}}},
		{"migrated frame", &ClientUpdate{Migrated: &MigratedFrame{UserID: 2, ShellID: 1}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := codec.Marshal(c.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var out ClientUpdate
			if err := codec.Unmarshal(data, &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(c.in, &out) {
				t.Fatalf("round trip mismatch: got %+v want %+v", out, c.in)
			}
		})
	}
}

func TestJSONCodecName(t *testing.T) {
	var codec jsonCodec
	if codec.Name() != CodecName {
		t.Fatalf("codec.Name() = %q, want %q", codec.Name(), CodecName)
	}
}
