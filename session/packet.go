package session

import (
	"encoding/binary"
	"errors"
	"fmt"

	"netplay/input"
)

type packetKind uint8

const (
	packetInput packetKind = iota + 1
	packetChecksum
	packetQuit
)

// maxRecordsPerPacket is bounded by the one-byte record count.
const maxRecordsPerPacket = 255

const (
	inputHeaderSize = 1 + 4 + 1
	checksumSize    = 1 + 4 + 8
)

var errMalformedPacket = errors.New("malformed packet")

type inputPacket struct {
	// Ack is the newest frame up to which the sender has every record from the
	// receiver.
	Ack     input.Frame
	Records []input.Record
}

type checksumPacket struct {
	Frame input.Frame
	Sum   uint64
}

type quitPacket struct{}

func (p inputPacket) appendTo(b []byte) []byte {
	records := p.Records
	if len(records) > maxRecordsPerPacket {
		records = records[len(records)-maxRecordsPerPacket:]
	}
	b = append(b, byte(packetInput))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Ack))
	b = append(b, byte(len(records)))
	for _, r := range records {
		b = r.AppendBinary(b)
	}
	return b
}

func (p checksumPacket) appendTo(b []byte) []byte {
	b = append(b, byte(packetChecksum))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Frame))
	return binary.LittleEndian.AppendUint64(b, p.Sum)
}

func (quitPacket) appendTo(b []byte) []byte {
	return append(b, byte(packetQuit))
}

// decodePacket parses one datagram. A malformed record inside an input packet
// is dropped on its own and reported in bad; the rest of the packet stands.
func decodePacket(data []byte) (packet any, bad []error, err error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty", errMalformedPacket)
	}
	switch packetKind(data[0]) {
	case packetInput:
		if len(data) < inputHeaderSize {
			return nil, nil, fmt.Errorf("%w: short input header", errMalformedPacket)
		}
		p := inputPacket{Ack: input.Frame(int32(binary.LittleEndian.Uint32(data[1:5])))}
		count := int(data[5])
		body := data[inputHeaderSize:]
		if len(body) != count*input.RecordSize {
			return nil, nil, fmt.Errorf("%w: %d bytes for %d records", errMalformedPacket, len(body), count)
		}
		for i := 0; i < count; i++ {
			var r input.Record
			if err := r.UnmarshalBinary(body[i*input.RecordSize : (i+1)*input.RecordSize]); err != nil {
				bad = append(bad, err)
				continue
			}
			p.Records = append(p.Records, r)
		}
		return p, bad, nil

	case packetChecksum:
		if len(data) != checksumSize {
			return nil, nil, fmt.Errorf("%w: checksum is %d bytes", errMalformedPacket, len(data))
		}
		return checksumPacket{
			Frame: input.Frame(int32(binary.LittleEndian.Uint32(data[1:5]))),
			Sum:   binary.LittleEndian.Uint64(data[5:]),
		}, nil, nil

	case packetQuit:
		return quitPacket{}, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: kind %d", errMalformedPacket, data[0])
}
