package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rescp17/lanTFTP/pkg/packet"
	"github.com/rescp17/lanTFTP/pkg/storage"
)

func TestErrorPacket(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code packet.ErrorCode
		msg  string
	}{
		{"not found", fmt.Errorf("open: %w", storage.ErrNotFound), packet.ErrFileNotFound, "File not found"},
		{"bad name", storage.ErrInvalidFilename, packet.ErrAccessViolation, "Access violation"},
		{"busy", storage.ErrBusy, packet.ErrNotDefined, "File is busy"},
		{"disk full", &StorageError{Op: "write", Err: syscall.ENOSPC}, packet.ErrDiskFull, "Disk full or allocation exceeded"},
		{"permission", &os.PathError{Op: "open", Path: "x", Err: syscall.EACCES}, packet.ErrAccessViolation, "Access violation"},
		{"malformed", &packet.DecodeError{Op: packet.OpACK, Reason: "short"}, packet.ErrIllegalOperation, "Illegal TFTP operation"},
		{"violation", violation("DATA %d", 7), packet.ErrIllegalOperation, "Illegal TFTP operation"},
		{"peer", &PeerError{Code: packet.ErrUnknownTransferID, Message: "who?"}, packet.ErrUnknownTransferID, "who?"},
		{"other", errors.New("kaboom"), packet.ErrNotDefined, "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ErrorPacket(tt.err)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "peer-error", Reason(&PeerError{}))
	assert.Equal(t, "timeout", Reason(fmt.Errorf("%w after 3 retransmissions", ErrTimeout)))
	assert.Equal(t, "decode-error", Reason(&packet.DecodeError{Reason: "x"}))
	assert.Equal(t, "protocol-violation", Reason(violation("x")))
	assert.Equal(t, "not-found", Reason(storage.ErrNotFound))
	assert.Equal(t, "storage-error", Reason(&StorageError{Op: "read", Err: errors.New("eio")}))
	assert.Equal(t, "canceled", Reason(fmt.Errorf("transfer canceled: %w", context.Canceled)))
	assert.Equal(t, "error", Reason(errors.New("x")))
}
