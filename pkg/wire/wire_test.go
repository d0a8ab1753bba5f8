package wire

import (
	"bytes"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		in   any
		out  any
	}{
		{"PairRequest", TypePairRequest, &PairRequest{PairCode: "7AK3Q9", Hostname: "joiner-host"}, &PairRequest{}},
		{"PairAccept", TypePairAccept, &PairAccept{Hostname: "host-host"}, &PairAccept{}},
		{"PairReject", TypePairReject, &PairReject{Reason: "配对码错误"}, &PairReject{}},
		{"FileInfo", TypeFileInfo, &FileInfo{Filename: "a.txt", FileSize: 5, Hash: "5eb63bbbe01eeed093cb22bb8f5acdc3"}, &FileInfo{}},
		{"FileAck", TypeFileAck, &FileAck{ChunkIndex: 3, Success: true}, &FileAck{}},
		{"FileResume", TypeFileResume, &FileResume{FileHash: "abc", ReceivedChunks: []uint32{0, 1, 2}}, &FileResume{}},
		{"Heartbeat", TypeHeartbeat, &Heartbeat{Timestamp: 1234567890}, &Heartbeat{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodeJSON(&buf, tc.typ, tc.in); err != nil {
				t.Fatalf("encode: %v", err)
			}
			gotType, length, err := DecodeHeader(&buf)
			if err != nil {
				t.Fatalf("decode header: %v", err)
			}
			if gotType != tc.typ {
				t.Fatalf("type = %v, want %v", gotType, tc.typ)
			}
			if err := DecodeJSON(&buf, length, tc.out); err != nil {
				t.Fatalf("decode json: %v", err)
			}
		})
	}
}

func TestFileDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte("hello ")
	if err := EncodeFileData(&buf, 42, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	typ, length, err := DecodeHeader(&buf)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if typ != TypeFileData {
		t.Fatalf("type = %v, want FileData", typ)
	}
	idx, data, err := DecodeFileData(&buf, length)
	if err != nil {
		t.Fatalf("decode file data: %v", err)
	}
	if idx != 42 {
		t.Fatalf("chunk index = %d, want 42", idx)
	}
	if !bytes.Equal(data, want) {
		t.Fatalf("data = %q, want %q", data, want)
	}
}

func TestDecodeHeaderRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeHeader(&buf, TypeFileInfo, MaxPayloadSize+1); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if _, _, err := DecodeHeader(&buf); err == nil {
		t.Fatal("expected error for oversized payload length")
	}
}

func TestDecodeFileDataRejectsShortPayload(t *testing.T) {
	buf := bytes.NewReader([]byte{0x01, 0x02})
	if _, _, err := DecodeFileData(buf, 2); err == nil {
		t.Fatal("expected error for FileData payload shorter than 4 bytes")
	}
}
