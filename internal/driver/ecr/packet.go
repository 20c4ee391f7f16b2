// internal/driver/ecr/packet.go
package ecr

import "fmt"

// Frame control bytes and limits
const (
	// MaxDataSize is the largest payload a single packet may carry
	MaxDataSize = 218

	// FrameOverhead is the number of non-payload bytes in a frame
	FrameOverhead = 10

	STX        byte = 0x01
	ETX        byte = 0x03
	Terminator byte = 0x05

	// LengthOffset is added to the payload length to form the length byte
	LengthOffset byte = 0x24

	// FixedSequence is the sequence byte written into every frame by default
	FixedSequence byte = 0x20

	checksumDigitOffset = 0x30
)

// Packet is one complete encoded frame
type Packet []byte

// Text renders the packet through the legacy byte-to-text adapter
func (p Packet) Text() string {
	return LegacyText(p)
}

// Hex renders the packet as lowercase hex
func (p Packet) Hex() string {
	return HexString(p)
}

// Payload returns the data bytes carried by the frame
func (p Packet) Payload() []byte {
	if len(p) < FrameOverhead {
		return nil
	}
	return p[4 : len(p)-6]
}

// Command returns the command byte of the frame
func (p Packet) Command() byte {
	if len(p) < FrameOverhead {
		return 0
	}
	return p[3]
}

// Checksum sums body as unsigned bytes and renders the four nibble digits of the sum
func Checksum(body []byte) [4]byte {
	crc := 0
	for _, b := range body {
		crc += int(b)
	}

	return [4]byte{
		byte(((crc >> 12) & 0xF) + checksumDigitOffset),
		byte(((crc >> 8) & 0xF) + checksumDigitOffset),
		byte(((crc >> 4) & 0xF) + checksumDigitOffset),
		byte(((crc >> 0) & 0xF) + checksumDigitOffset),
	}
}

// BuildPacket frames a command and its raw payload.
//
// Frame structure:
//
//	[STX][0x24+LEN][SEQ][CMD][DATA(LEN)][0x05][CS3][CS2][CS1][CS0][ETX]
//
// The checksum covers everything from the length byte through 0x05.
func BuildPacket(seq byte, command byte, data []byte) (Packet, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(data), MaxDataSize)
	}

	frame := make([]byte, 0, len(data)+FrameOverhead)

	frame = append(frame, STX)
	frame = append(frame, LengthOffset+byte(len(data)))
	frame = append(frame, seq)
	frame = append(frame, command)
	frame = append(frame, data...)
	frame = append(frame, Terminator)

	checksum := Checksum(frame[1:])
	frame = append(frame, checksum[:]...)

	frame = append(frame, ETX)

	return frame, nil
}
