package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// extractPNGExif walks the chunk stream and returns the payload of the
// first eXIf chunk, or nil when there is none.
func extractPNGExif(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	if err := readPNGSignature(br); err != nil {
		return nil, err
	}

	for {
		length, name, err := readPNGChunkHeader(br)
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}

		if name == "eXIf" {
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return nil, err
			}
			return data, nil
		}

		// Skip payload and CRC.
		if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
			return nil, err
		}
		if name == "IEND" {
			return nil, nil
		}
	}
}

// splicePNG copies the chunk stream from r to w, inserting an eXIf chunk
// right after IHDR and dropping any eXIf chunk already present.
func splicePNG(r io.Reader, w io.Writer, tiff []byte) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	if err := readPNGSignature(br); err != nil {
		return err
	}
	if _, err := bw.Write(pngSignature); err != nil {
		return err
	}

	inserted := false
	for {
		length, name, err := readPNGChunkHeader(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if name == "eXIf" {
			if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
				return err
			}
			continue
		}

		if err := copyPNGChunk(bw, br, length, name); err != nil {
			return err
		}

		if name == "IHDR" && !inserted {
			if err := writePNGChunk(bw, "eXIf", tiff); err != nil {
				return err
			}
			inserted = true
		}

		if name == "IEND" {
			break
		}
	}

	return bw.Flush()
}

func readPNGSignature(br *bufio.Reader) error {
	sig := make([]byte, 8)
	if _, err := io.ReadFull(br, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, pngSignature) {
		return fmt.Errorf("invalid PNG signature")
	}
	return nil
}

func readPNGChunkHeader(br *bufio.Reader) (uint32, string, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, lenBuf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, "", err
	}

	typeBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, typeBuf); err != nil {
		return 0, "", err
	}

	return binary.BigEndian.Uint32(lenBuf), string(typeBuf), nil
}

func copyPNGChunk(bw *bufio.Writer, br *bufio.Reader, length uint32, name string) error {
	if err := binary.Write(bw, binary.BigEndian, length); err != nil {
		return err
	}
	if _, err := bw.WriteString(name); err != nil {
		return err
	}
	if _, err := io.CopyN(bw, br, int64(length)+4); err != nil {
		return err
	}
	return nil
}

func writePNGChunk(bw *bufio.Writer, name string, data []byte) error {
	if err := binary.Write(bw, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	payload := append([]byte(name), data...)
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return binary.Write(bw, binary.BigEndian, crc32.ChecksumIEEE(payload))
}
