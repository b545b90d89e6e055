package audio

import (
	"encoding/binary"
	"io"
	"math/rand"
)

// Minimal ogg bitstream framing, enough to contain a single opus
// stream. Pages are written eagerly, one packet per page.

const oggCapturePattern = "OggS"

// Ogg page header type flags.
const (
	oggFlagContinued uint8 = 0x1
	oggFlagFirst     uint8 = 0x2
	oggFlagLast      uint8 = 0x4
)

var oggCRCTable = makeOggCRCTable()

// oggStream writes the pages of one logical ogg bitstream. The page
// sequence number is tracked internally, so pages must be written in
// order.
type oggStream struct {
	w       io.Writer
	serial  uint32
	pageSeq uint32
}

func newOggStream(w io.Writer) *oggStream {
	return &oggStream{
		w:      w,
		serial: rand.Uint32(),
	}
}

// segmentTable returns the lacing values for a packet laid out in a
// single page. A packet whose length is a multiple of 255 is
// terminated by a lacing value of 0.
func segmentTable(payloadLen int) []uint8 {
	st := make([]uint8, 0, payloadLen/255+1)
	for payloadLen >= 255 {
		st = append(st, 255)
		payloadLen -= 255
	}
	return append(st, uint8(payloadLen))
}

// writePage frames payload as one complete ogg page. The payload must
// be small enough for its lacing values to fit the 255 entry segment
// table.
func (o *oggStream) writePage(payload []byte, flags uint8, granulePosition uint64) error {
	st := segmentTable(len(payload))
	headerSize := 27 + len(st)

	buf := make([]byte, headerSize+len(payload))
	copy(buf[0:], oggCapturePattern)
	buf[4] = 0 // stream structure version
	buf[5] = flags
	binary.LittleEndian.PutUint64(buf[6:], granulePosition)
	binary.LittleEndian.PutUint32(buf[14:], o.serial)
	binary.LittleEndian.PutUint32(buf[18:], o.pageSeq)
	// buf[22:26] is the page checksum, filled in below.
	buf[26] = uint8(len(st))
	copy(buf[27:], st)
	copy(buf[headerSize:], payload)

	var crc uint32
	for _, b := range buf {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	binary.LittleEndian.PutUint32(buf[22:], crc)

	o.pageSeq++
	_, err := o.w.Write(buf)
	return err
}

// The ogg page CRC is a table driven CRC-32 with polynomial 0x04c11db7,
// no bit reversal and no final xor.
//
// https://github.com/pion/webrtc/blob/67826b19141ec9e6f1002a2267008a016a118934/pkg/media/oggwriter/oggwriter.go#L245-L261
func makeOggCRCTable() *[256]uint32 {
	const poly = 0x04c11db7

	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}
