package bencode

import (
	"bytes"
	"testing"
)

type trackerError struct {
	FailureReason string `bencode:"failure reason"`
}

type announceResponse struct {
	Interval   int64  `bencode:"interval"`
	Complete   int64  `bencode:"complete"`
	Incomplete int64  `bencode:"incomplete"`
	Peers      []byte `bencode:"peers"`
}

func TestMarshal_Struct(t *testing.T) {
	resp := announceResponse{Interval: 10, Complete: 2, Incomplete: 3, Peers: []byte{1, 2, 3, 4, 5, 6}}
	enc, err := Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var got announceResponse
	if err := Unmarshal(enc, &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if got.Interval != resp.Interval || got.Complete != resp.Complete || got.Incomplete != resp.Incomplete {
		t.Errorf("got = %+v, want %+v", got, resp)
	}
	if !bytes.Equal(got.Peers, resp.Peers) {
		t.Errorf("peers = %v, want %v", got.Peers, resp.Peers)
	}
}

func TestMarshal_TrackerError(t *testing.T) {
	enc, err := Marshal(trackerError{FailureReason: "unknown torrent"})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	want := "d14:failure reason15:unknown torrente"
	if string(enc) != want {
		t.Errorf("Marshal = %q, want %q", enc, want)
	}
}

func TestUnmarshal_MissingFieldLeavesZeroValue(t *testing.T) {
	var got announceResponse
	if err := Unmarshal([]byte("d8:intervali5ee"), &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if got.Interval != 5 {
		t.Errorf("Interval = %d, want 5", got.Interval)
	}
	if got.Complete != 0 || len(got.Peers) != 0 {
		t.Errorf("expected zero values for absent fields, got %+v", got)
	}
}
