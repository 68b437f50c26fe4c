package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bytedance/sonic"
)

const (
	// HeaderSize is the length prefix size in bytes
	HeaderSize = 4

	// DefaultMaxFrameSize bounds payloads when the caller passes zero
	DefaultMaxFrameSize uint32 = 64 << 20

	// errorMarker announces an error frame
	errorMarker uint32 = math.MaxUint32
)

var (
	ErrFrameTooLarge     = errors.New("frame exceeds maximum size")
	ErrFrameTruncated    = errors.New("frame truncated")
	ErrConnectionFailure = errors.New("connection failure")
	ErrTimeout           = errors.New("timeout")
	ErrInternal          = errors.New("internal error")
)

// WriteFrame writes payload as one frame
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) >= uint64(errorMarker) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	return writeRaw(w, uint32(len(payload)), payload)
}

// ReadFrame reads one frame and returns its payload. A clean close before
// any header byte returns io.EOF. maxSize of zero means DefaultMaxFrameSize.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	length, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	if length == errorMarker {
		return nil, readError(r, maxSize)
	}
	if length > maxSize {
		return nil, fmt.Errorf("%w: %d bytes advertised, limit %d", ErrFrameTooLarge, length, maxSize)
	}
	return readPayload(r, length)
}

// WriteError sends err to the peer as an error frame
func WriteError(w io.Writer, err error) error {
	payload, merr := sonic.Marshal(errorPayload{
		Kind:    Classify(err),
		Message: err.Error(),
	})
	if merr != nil {
		return fmt.Errorf("failed to encode error frame: %w", merr)
	}

	var marker [HeaderSize]byte
	binary.BigEndian.PutUint32(marker[:], errorMarker)
	if _, werr := w.Write(marker[:]); werr != nil {
		return ioError("write error marker", werr)
	}
	return WriteFrame(w, payload)
}

func writeRaw(w io.Writer, length uint32, payload []byte) error {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], length)
	if _, err := w.Write(header[:]); err != nil {
		return ioError("write frame header", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return ioError("write frame payload", err)
		}
	}
	return nil
}

func readHeader(r io.Reader) (uint32, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: partial header", ErrFrameTruncated)
		}
		return 0, ioError("read frame header", err)
	}
	return binary.BigEndian.Uint32(header[:]), nil
}

func readPayload(r io.Reader, length uint32) ([]byte, error) {
	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrFrameTruncated, n, length)
		}
		return nil, ioError("read frame payload", err)
	}
	return payload, nil
}

func readError(r io.Reader, maxSize uint32) error {
	length, err := readHeader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: error frame without body", ErrFrameTruncated)
		}
		return err
	}
	if length > maxSize {
		return fmt.Errorf("%w: error frame of %d bytes", ErrFrameTooLarge, length)
	}

	payload, err := readPayload(r, length)
	if err != nil {
		return err
	}

	var body errorPayload
	if err := sonic.Unmarshal(payload, &body); err != nil {
		return &RemoteError{Kind: KindInternal, Message: fmt.Sprintf("unreadable error frame: %v", err)}
	}
	if body.Kind == "" {
		body.Kind = KindInternal
	}
	return &RemoteError{Kind: body.Kind, Message: body.Message}
}

// ioError wraps a transport error, tagging deadline expiry as ErrTimeout
func ioError(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
