package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Opus-in-ogg encapsulation per RFC 7845: an identification header
// page, a comment header page, then one audio packet per page with the
// granule position counting 48kHz PCM samples.

const (
	opusHeadMagic = "OpusHead"
	opusTagsMagic = "OpusTags"

	opusVendor = "scribe"
)

type opusStream struct {
	ogg     *oggStream
	granule uint64
}

func newOpusStream(w io.Writer) (*opusStream, error) {
	s := &opusStream{ogg: newOggStream(w)}
	if err := s.writeHeaders(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *opusStream) writeHeaders() error {
	head := make([]byte, 19)
	copy(head, opusHeadMagic)
	head[8] = 1 // version
	head[9] = channels
	binary.LittleEndian.PutUint16(head[10:], 0) // pre-skip, ffmpeg / libopus like 0 here
	binary.LittleEndian.PutUint32(head[12:], NativeRate)
	binary.LittleEndian.PutUint16(head[16:], 0) // output gain
	head[18] = 0                                // channel mapping family (mono/stereo)

	if err := s.ogg.writePage(head, oggFlagFirst, 0); err != nil {
		return err
	}

	tags := make([]byte, 8+4+len(opusVendor)+4)
	copy(tags, opusTagsMagic)
	binary.LittleEndian.PutUint32(tags[8:], uint32(len(opusVendor)))
	copy(tags[12:], opusVendor)
	// Trailing uint32 is the user comment count, left at zero.

	return s.ogg.writePage(tags, 0, 0)
}

// writePacket appends one opus packet covering pcmSamples samples. The
// final packet must set last so the closing page carries the
// end-of-stream flag.
func (s *opusStream) writePacket(pkt []byte, pcmSamples uint64, last bool) error {
	if len(pkt) >= 255*255 {
		// Would need splitting across multiple pages.
		return fmt.Errorf("opus packet too large for one ogg page: %d bytes", len(pkt))
	}
	s.granule += pcmSamples
	var flags uint8
	if last {
		flags = oggFlagLast
	}
	return s.ogg.writePage(pkt, flags, s.granule)
}
