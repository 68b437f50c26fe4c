package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

// Kind names a failure category carried in error frames
type Kind string

const (
	KindOK                Kind = "ok"
	KindInvalidPartition  Kind = "InvalidPartition"
	KindDimensionMismatch Kind = "DimensionMismatch"
	KindDecodeFailure     Kind = "DecodeFailure"
	KindConnectionFailure Kind = "ConnectionFailure"
	KindTimeout           Kind = "Timeout"
	KindFrameTruncated    Kind = "FrameTruncated"
	KindFrameTooLarge     Kind = "FrameTooLarge"
	KindInternal          Kind = "Internal"
)

var kindSentinels = map[Kind]error{
	KindInvalidPartition:  tiling.ErrInvalidPartition,
	KindDimensionMismatch: tiling.ErrDimensionMismatch,
	KindDecodeFailure:     imaging.ErrDecodeFailure,
	KindConnectionFailure: ErrConnectionFailure,
	KindTimeout:           ErrTimeout,
	KindFrameTruncated:    ErrFrameTruncated,
	KindFrameTooLarge:     ErrFrameTooLarge,
	KindInternal:          ErrInternal,
}

type errorPayload struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// RemoteError is a failure reported by the peer in an error frame
type RemoteError struct {
	Kind    Kind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// Is matches the sentinel registered for the error's kind
func (e *RemoteError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// Classify maps an error onto the kind reported to peers and used as the
// outcome label in metrics. nil classifies as KindOK.
func Classify(err error) Kind {
	if err == nil {
		return KindOK
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return KindTimeout
	case errors.Is(err, ErrFrameTruncated):
		return KindFrameTruncated
	case errors.Is(err, ErrFrameTooLarge):
		return KindFrameTooLarge
	case errors.Is(err, ErrConnectionFailure):
		return KindConnectionFailure
	case errors.Is(err, imaging.ErrDecodeFailure):
		return KindDecodeFailure
	case errors.Is(err, tiling.ErrInvalidPartition):
		return KindInvalidPartition
	case errors.Is(err, tiling.ErrDimensionMismatch):
		return KindDimensionMismatch
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnectionFailure
	}
	return KindInternal
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
