package session

import (
	"errors"
	"testing"

	"netplay/input"
)

func TestInputPacketDropsOnlyMalformedRecords(t *testing.T) {
	p := inputPacket{Ack: 7, Records: []input.Record{
		{Frame: 3, Handle: 1, Actions: input.ActionUp},
		{Frame: 4, Handle: 1, Actions: input.ActionDown},
		{Frame: 5, Handle: 1, Actions: input.ActionJump},
	}}
	b := p.appendTo(nil)
	// Corrupt the reserved bytes of the second record.
	b[inputHeaderSize+input.RecordSize+6] = 0xff

	packet, bad, err := decodePacket(b)
	if err != nil {
		t.Fatalf("decodePacket: %v", err)
	}
	if len(bad) != 1 || !errors.Is(bad[0], input.ErrMalformedRecord) {
		t.Fatalf("bad = %v, want one malformed record", bad)
	}
	got := packet.(inputPacket)
	if got.Ack != 7 || len(got.Records) != 2 || got.Records[0].Frame != 3 || got.Records[1].Frame != 5 {
		t.Fatalf("packet = %+v", got)
	}
}

func TestDecodePacketRejects(t *testing.T) {
	full := inputPacket{Records: []input.Record{{Frame: 1}}}.appendTo(nil)
	for name, data := range map[string][]byte{
		"empty":          nil,
		"unknown kind":   {9},
		"short header":   {byte(packetInput), 0, 0},
		"count mismatch": full[:len(full)-1],
		"short checksum": {byte(packetChecksum), 1, 2, 3},
	} {
		if _, _, err := decodePacket(data); !errors.Is(err, errMalformedPacket) {
			t.Fatalf("%s: err = %v, want errMalformedPacket", name, err)
		}
	}
}

func TestChecksumAndQuitPackets(t *testing.T) {
	packet, _, err := decodePacket(checksumPacket{Frame: 120, Sum: 0xdeadbeef}.appendTo(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := packet.(checksumPacket); got.Frame != 120 || got.Sum != 0xdeadbeef {
		t.Fatalf("checksum = %+v", got)
	}
	packet, _, err = decodePacket(quitPacket{}.appendTo(nil))
	if _, ok := packet.(quitPacket); err != nil || !ok {
		t.Fatalf("quit = %T, %v", packet, err)
	}
}
