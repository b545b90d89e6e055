package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ebailey78/scribe/internal/assert"
)

func TestSegmentTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want []uint8
	}{
		{0, []uint8{0}},
		{10, []uint8{10}},
		{254, []uint8{254}},
		{255, []uint8{255, 0}},
		{256, []uint8{255, 1}},
		{510, []uint8{255, 255, 0}},
		{600, []uint8{255, 255, 90}},
	}
	for _, tc := range tests {
		assert.DeepEqual(t, segmentTable(tc.n), tc.want)
	}
}

// oggTestPage is a decoded ogg page header plus payload, for asserting on
// writer output.
type oggTestPage struct {
	flags   byte
	granule uint64
	serial  uint32
	seq     uint32
	payload []byte
}

func parseOggPages(t testing.TB, raw []byte) []oggTestPage {
	t.Helper()

	var pages []oggTestPage
	for off := 0; off < len(raw); {
		if len(raw[off:]) < 27 {
			t.Fatalf("truncated page header at offset %d", off)
		}
		if string(raw[off:off+4]) != "OggS" {
			t.Fatalf("bad capture pattern at offset %d", off)
		}
		nseg := int(raw[off+26])
		headerLen := 27 + nseg
		payloadLen := 0
		for i := 0; i < nseg; i++ {
			payloadLen += int(raw[off+27+i])
		}
		if len(raw[off:]) < headerLen+payloadLen {
			t.Fatalf("truncated page payload at offset %d", off)
		}

		// The stored checksum must match one computed with the
		// checksum field zeroed.
		page := append([]byte(nil), raw[off:off+headerLen+payloadLen]...)
		stored := binary.LittleEndian.Uint32(page[22:])
		for i := 22; i < 26; i++ {
			page[i] = 0
		}
		var crc uint32
		for _, b := range page {
			crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
		}
		if crc != stored {
			t.Fatalf("page at offset %d has checksum %08x, want %08x",
				off, stored, crc)
		}

		pages = append(pages, oggTestPage{
			flags:   raw[off+5],
			granule: binary.LittleEndian.Uint64(raw[off+6:]),
			serial:  binary.LittleEndian.Uint32(raw[off+14:]),
			seq:     binary.LittleEndian.Uint32(raw[off+18:]),
			payload: raw[off+headerLen : off+headerLen+payloadLen],
		})
		off += headerLen + payloadLen
	}
	return pages
}

func TestOggPageLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	o := &oggStream{w: &buf, serial: 0x11223344}

	assert.NilErr(t, o.writePage([]byte{1, 2, 3}, oggFlagFirst, 0))
	assert.NilErr(t, o.writePage(bytes.Repeat([]byte{7}, 300), oggFlagLast, 960))

	pages := parseOggPages(t, buf.Bytes())
	if len(pages) != 2 {
		t.Fatalf("wrote %d pages, want 2", len(pages))
	}

	assert.DeepEqual(t, pages[0].flags, oggFlagFirst)
	assert.DeepEqual(t, pages[0].granule, uint64(0))
	assert.DeepEqual(t, pages[0].serial, uint32(0x11223344))
	assert.DeepEqual(t, pages[0].seq, uint32(0))
	assert.DeepEqual(t, pages[0].payload, []byte{1, 2, 3})

	assert.DeepEqual(t, pages[1].flags, oggFlagLast)
	assert.DeepEqual(t, pages[1].granule, uint64(960))
	assert.DeepEqual(t, pages[1].seq, uint32(1))
	assert.DeepEqual(t, pages[1].payload, bytes.Repeat([]byte{7}, 300))
}

// TestOpusStreamLayout tests the opus encapsulation headers and granule
// accounting.
func TestOpusStreamLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s, err := newOpusStream(&buf)
	assert.NilErr(t, err)

	pkt1 := bytes.Repeat([]byte{0xaa}, 120)
	pkt2 := bytes.Repeat([]byte{0xbb}, 90)
	assert.NilErr(t, s.writePacket(pkt1, 960, false))
	assert.NilErr(t, s.writePacket(pkt2, 960, true))

	pages := parseOggPages(t, buf.Bytes())
	if len(pages) != 4 {
		t.Fatalf("wrote %d pages, want 4", len(pages))
	}

	// Identification header page.
	head := pages[0]
	assert.DeepEqual(t, head.flags, oggFlagFirst)
	assert.DeepEqual(t, head.granule, uint64(0))
	if len(head.payload) != 19 {
		t.Fatalf("id header has %d bytes, want 19", len(head.payload))
	}
	assert.DeepEqual(t, string(head.payload[:8]), opusHeadMagic)
	assert.DeepEqual(t, head.payload[8], byte(1))
	assert.DeepEqual(t, head.payload[9], byte(channels))
	assert.DeepEqual(t, binary.LittleEndian.Uint16(head.payload[10:]), uint16(0))
	assert.DeepEqual(t, binary.LittleEndian.Uint32(head.payload[12:]), uint32(NativeRate))

	// Comment header page.
	tags := pages[1]
	assert.DeepEqual(t, tags.flags, byte(0))
	assert.DeepEqual(t, string(tags.payload[:8]), opusTagsMagic)
	vendorLen := binary.LittleEndian.Uint32(tags.payload[8:])
	assert.DeepEqual(t, vendorLen, uint32(len(opusVendor)))
	assert.DeepEqual(t, string(tags.payload[12:12+vendorLen]), opusVendor)
	assert.DeepEqual(t, binary.LittleEndian.Uint32(tags.payload[12+vendorLen:]), uint32(0))

	// Audio pages carry the packets with cumulative granules, page
	// sequence numbers continue from the headers.
	assert.DeepEqual(t, pages[2].payload, pkt1)
	assert.DeepEqual(t, pages[2].granule, uint64(960))
	assert.DeepEqual(t, pages[2].flags, byte(0))
	assert.DeepEqual(t, pages[2].seq, uint32(2))

	assert.DeepEqual(t, pages[3].payload, pkt2)
	assert.DeepEqual(t, pages[3].granule, uint64(1920))
	assert.DeepEqual(t, pages[3].flags, oggFlagLast)
	assert.DeepEqual(t, pages[3].seq, uint32(3))

	// All pages belong to the same logical bitstream.
	for i := 1; i < len(pages); i++ {
		assert.DeepEqual(t, pages[i].serial, pages[0].serial)
	}
}

func TestOpusPacketTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s, err := newOpusStream(&buf)
	assert.NilErr(t, err)
	assert.NonNilErr(t, s.writePacket(make([]byte, 255*255), 960, false))
}
