package metadata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

var jpegExifHeader = []byte("Exif\x00\x00")

// extractJPEGExif walks the segment stream and returns the TIFF payload
// of the first EXIF APP1 segment, or nil when there is none.
func extractJPEGExif(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	if err := readJPEGSOI(br); err != nil {
		return nil, err
	}

	for {
		marker, err := readJPEGMarker(br)
		if err != nil {
			return nil, err
		}

		if marker == 0xd9 { // EOI
			return nil, nil
		}
		if marker == 0xda { // SOS, no metadata past this point
			return nil, nil
		}
		if marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			continue
		}

		payload, err := readJPEGSegment(br)
		if err != nil {
			return nil, err
		}

		if marker == 0xe1 && hasPrefix(payload, jpegExifHeader) {
			return payload[len(jpegExifHeader):], nil
		}
	}
}

// spliceJPEG copies the segment stream from r to w, inserting an EXIF
// APP1 segment right after SOI and dropping any EXIF segment already
// present.
func spliceJPEG(r io.Reader, w io.Writer, tiff []byte) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	if err := readJPEGSOI(br); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{0xff, 0xd8}); err != nil {
		return err
	}

	payloadLen := len(jpegExifHeader) + len(tiff)
	if payloadLen+2 > 0xffff {
		return fmt.Errorf("EXIF block too large for a JPEG segment")
	}
	if _, err := bw.Write([]byte{0xff, 0xe1}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint16(payloadLen+2)); err != nil {
		return err
	}
	if _, err := bw.Write(jpegExifHeader); err != nil {
		return err
	}
	if _, err := bw.Write(tiff); err != nil {
		return err
	}

	for {
		marker, err := readJPEGMarker(br)
		if err != nil {
			return err
		}

		if marker == 0xd9 { // EOI
			if _, err := bw.Write([]byte{0xff, 0xd9}); err != nil {
				return err
			}
			break
		}

		if marker == 0xda { // SOS
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return err
			}
			if _, err := io.Copy(bw, br); err != nil {
				return err
			}
			break
		}

		if marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return err
			}
			continue
		}

		payload, err := readJPEGSegment(br)
		if err != nil {
			return err
		}

		if marker == 0xe1 && hasPrefix(payload, jpegExifHeader) {
			continue
		}

		if _, err := bw.Write([]byte{0xff, marker}); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint16(len(payload)+2)); err != nil {
			return err
		}
		if _, err := bw.Write(payload); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func readJPEGSOI(br *bufio.Reader) error {
	soi := make([]byte, 2)
	if _, err := io.ReadFull(br, soi); err != nil {
		return err
	}
	if soi[0] != 0xff || soi[1] != 0xd8 {
		return fmt.Errorf("invalid JPEG SOI")
	}
	return nil
}

func readJPEGMarker(br *bufio.Reader) (byte, error) {
	prefix, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	for prefix != 0xff {
		prefix, err = br.ReadByte()
		if err != nil {
			return 0, err
		}
	}

	marker, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	for marker == 0xff {
		marker, err = br.ReadByte()
		if err != nil {
			return 0, err
		}
	}
	return marker, nil
}

func readJPEGSegment(br *bufio.Reader) ([]byte, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(br, lenBuf); err != nil {
		return nil, err
	}
	segLen := int(binary.BigEndian.Uint16(lenBuf))
	if segLen < 2 {
		return nil, fmt.Errorf("invalid JPEG segment length")
	}

	payload := make([]byte, segLen-2)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
