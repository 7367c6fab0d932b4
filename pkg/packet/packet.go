package packet

import (
	"fmt"
	"strings"
)

// Opcode identifies the kind of a TFTP datagram.
type Opcode uint16

const (
	OpRRQ Opcode = iota + 1
	OpWRQ
	OpDATA
	OpACK
	OpERROR
)

// String returns the RFC 1350 mnemonic of the opcode
func (o Opcode) String() string {
	switch o {
	case OpRRQ:
		return "RRQ"
	case OpWRQ:
		return "WRQ"
	case OpDATA:
		return "DATA"
	case OpACK:
		return "ACK"
	case OpERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("opcode(%d)", uint16(o))
	}
}

// ErrorCode is the code carried by an ERROR datagram.
type ErrorCode uint16

const (
	ErrNotDefined ErrorCode = iota
	ErrFileNotFound
	ErrAccessViolation
	ErrDiskFull
	ErrIllegalOperation
	ErrUnknownTransferID
	ErrFileAlreadyExists
	ErrNoSuchUser
)

const (
	// BlockSize is the fixed DATA payload size. A shorter payload ends a transfer.
	BlockSize = 512
	// HeaderSize is the opcode plus the block number or error code.
	HeaderSize = 4
	// MaxDatagramSize is the largest datagram the protocol allows.
	MaxDatagramSize = HeaderSize + BlockSize
	// ModeOctet is the only transfer mode served.
	ModeOctet = "octet"
)

// Datagram is one of ReadRequest, WriteRequest, Data, Ack or Error.
type Datagram interface {
	Opcode() Opcode
}

// Request is implemented by ReadRequest and WriteRequest.
type Request interface {
	Datagram
	File() string
	TransferMode() string
}

type ReadRequest struct {
	Filename string
	Mode     string
}

type WriteRequest struct {
	Filename string
	Mode     string
}

type Data struct {
	Block   uint16
	Payload []byte
}

type Ack struct {
	Block uint16
}

type Error struct {
	Code    ErrorCode
	Message string
}

func (ReadRequest) Opcode() Opcode  { return OpRRQ }
func (WriteRequest) Opcode() Opcode { return OpWRQ }
func (Data) Opcode() Opcode         { return OpDATA }
func (Ack) Opcode() Opcode          { return OpACK }
func (Error) Opcode() Opcode        { return OpERROR }

func (r ReadRequest) File() string          { return r.Filename }
func (r ReadRequest) TransferMode() string  { return r.Mode }
func (r WriteRequest) File() string         { return r.Filename }
func (r WriteRequest) TransferMode() string { return r.Mode }

// IsFinal reports whether this block ends the transfer.
func (d Data) IsFinal() bool {
	return len(d.Payload) < BlockSize
}

// Error makes an ERROR datagram usable as a Go error.
func (e Error) Error() string {
	return fmt.Sprintf("tftp error %d: %s", uint16(e.Code), e.Message)
}

// IsOctet reports whether mode names binary transfer. Modes are case-insensitive.
func IsOctet(mode string) bool {
	return strings.EqualFold(mode, ModeOctet)
}

// NewError builds an ERROR datagram with the standard message for code when msg is empty.
func NewError(code ErrorCode, msg string) Error {
	if msg == "" {
		msg = code.DefaultMessage()
	}
	return Error{Code: code, Message: msg}
}

// DefaultMessage returns the conventional text for an error code.
func (c ErrorCode) DefaultMessage() string {
	switch c {
	case ErrFileNotFound:
		return "File not found"
	case ErrAccessViolation:
		return "Access violation"
	case ErrDiskFull:
		return "Disk full or allocation exceeded"
	case ErrIllegalOperation:
		return "Illegal TFTP operation"
	case ErrUnknownTransferID:
		return "Unknown transfer ID"
	case ErrFileAlreadyExists:
		return "File already exists"
	case ErrNoSuchUser:
		return "No such user"
	default:
		return "Not defined"
	}
}
