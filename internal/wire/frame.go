// Package wire implements the framed request/response protocol spoken on the
// strategy socket. Every message is a big-endian 8-byte length prefix followed
// by exactly that many bytes of JSON payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quantfold/tradecore/internal/domain"
)

// MaxFrameSize caps a single payload at 16 MiB. Anything larger is treated as
// a corrupted or hostile stream and the connection is dropped.
const MaxFrameSize = 16 << 20

const prefixLen = 8

// WriteFrame writes one length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("wire: payload %d bytes: %w", len(payload), domain.ErrFrameTooLarge)
	}

	var prefix [prefixLen]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: write prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r. A short read mid-frame
// surfaces as io.ErrUnexpectedEOF; an oversized prefix as ErrFrameTooLarge.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read prefix: %w", err)
	}

	size := binary.BigEndian.Uint64(prefix[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes: %w", size, domain.ErrFrameTooLarge)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}
