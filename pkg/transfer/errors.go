package transfer

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/rescp17/lanTFTP/pkg/packet"
	"github.com/rescp17/lanTFTP/pkg/storage"
)

var (
	// ErrProtocolViolation covers wrong opcodes, out-of-order blocks and unexpected ACK numbers.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrTimeout is returned when the peer stops answering.
	ErrTimeout = errors.New("timed out waiting for peer")
	// ErrInvalidConfiguration wraps Config.Validate failures.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// PeerError is an ERROR datagram received from the other side.
type PeerError struct {
	Code    packet.ErrorCode
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer error %d: %s", uint16(e.Code), e.Message)
}

// StorageError is a local read or write failure on the transferred file.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// ErrorPacket maps a local error onto the ERROR datagram sent to the peer.
func ErrorPacket(err error) packet.Error {
	var pe *PeerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return packet.NewError(packet.ErrFileNotFound, "")
	case errors.Is(err, storage.ErrInvalidFilename):
		return packet.NewError(packet.ErrAccessViolation, "")
	case errors.Is(err, storage.ErrBusy):
		return packet.NewError(packet.ErrNotDefined, "File is busy")
	case errors.Is(err, syscall.ENOSPC):
		return packet.NewError(packet.ErrDiskFull, "")
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return packet.NewError(packet.ErrAccessViolation, "")
	case errors.Is(err, packet.ErrMalformed), errors.Is(err, ErrProtocolViolation):
		return packet.NewError(packet.ErrIllegalOperation, "")
	case errors.As(err, &pe):
		return packet.NewError(pe.Code, pe.Message)
	default:
		return packet.NewError(packet.ErrNotDefined, err.Error())
	}
}

// Reason is a short label for a failure, used in logs and the transfer journal.
func Reason(err error) string {
	var pe *PeerError
	var se *StorageError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "peer-error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, packet.ErrMalformed):
		return "decode-error"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol-violation"
	case errors.Is(err, storage.ErrNotFound):
		return "not-found"
	case errors.As(err, &se):
		return "storage-error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
