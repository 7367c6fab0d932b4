package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed packet")

// DecodeError describes why a datagram could not be decoded.
type DecodeError struct {
	Op     Opcode
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Op == 0 {
		return fmt.Sprintf("malformed packet: %s", e.Reason)
	}
	return fmt.Sprintf("malformed %s packet: %s", e.Op, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrMalformed }

func decodeErr(op Opcode, format string, args ...any) error {
	return &DecodeError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Encode serialises d into its wire representation.
func Encode(d Datagram) ([]byte, error) {
	switch p := d.(type) {
	case ReadRequest:
		return encodeRequest(OpRRQ, p.Filename, p.Mode)
	case *ReadRequest:
		return encodeRequest(OpRRQ, p.Filename, p.Mode)
	case WriteRequest:
		return encodeRequest(OpWRQ, p.Filename, p.Mode)
	case *WriteRequest:
		return encodeRequest(OpWRQ, p.Filename, p.Mode)
	case Data:
		return encodeData(p)
	case *Data:
		return encodeData(*p)
	case Ack:
		return encodeAck(p), nil
	case *Ack:
		return encodeAck(*p), nil
	case Error:
		return encodeError(p)
	case *Error:
		return encodeError(*p)
	default:
		return nil, fmt.Errorf("cannot encode %T", d)
	}
}

// MustEncode is Encode for datagrams known to be valid. It panics otherwise.
func MustEncode(d Datagram) []byte {
	b, err := Encode(d)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeRequest(op Opcode, filename, mode string) ([]byte, error) {
	if filename == "" {
		return nil, fmt.Errorf("%s: empty filename", op)
	}
	if mode == "" {
		return nil, fmt.Errorf("%s: empty mode", op)
	}
	if bytes.IndexByte([]byte(filename), 0) >= 0 || bytes.IndexByte([]byte(mode), 0) >= 0 {
		return nil, fmt.Errorf("%s: field contains NUL", op)
	}
	buf := make([]byte, 2, 2+len(filename)+1+len(mode)+1)
	binary.BigEndian.PutUint16(buf, uint16(op))
	buf = append(buf, filename...)
	buf = append(buf, 0)
	buf = append(buf, mode...)
	buf = append(buf, 0)
	return buf, nil
}

func encodeData(d Data) ([]byte, error) {
	if len(d.Payload) > BlockSize {
		return nil, fmt.Errorf("DATA payload of %d bytes exceeds %d", len(d.Payload), BlockSize)
	}
	buf := make([]byte, HeaderSize+len(d.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpDATA))
	binary.BigEndian.PutUint16(buf[2:4], d.Block)
	copy(buf[HeaderSize:], d.Payload)
	return buf, nil
}

func encodeAck(a Ack) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpACK))
	binary.BigEndian.PutUint16(buf[2:4], a.Block)
	return buf
}

func encodeError(e Error) ([]byte, error) {
	if bytes.IndexByte([]byte(e.Message), 0) >= 0 {
		return nil, errors.New("ERROR message contains NUL")
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(e.Message)+1)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpERROR))
	binary.BigEndian.PutUint16(buf[2:4], uint16(e.Code))
	buf = append(buf, e.Message...)
	buf = append(buf, 0)
	return buf, nil
}

// Decode parses a single datagram. It never panics on hostile input.
func Decode(b []byte) (Datagram, error) {
	if len(b) < 2 {
		return nil, decodeErr(0, "%d bytes is too short", len(b))
	}
	op := Opcode(binary.BigEndian.Uint16(b[0:2]))
	switch op {
	case OpRRQ, OpWRQ:
		filename, mode, err := decodeRequest(op, b[2:])
		if err != nil {
			return nil, err
		}
		if op == OpRRQ {
			return ReadRequest{Filename: filename, Mode: mode}, nil
		}
		return WriteRequest{Filename: filename, Mode: mode}, nil
	case OpDATA:
		if len(b) < HeaderSize {
			return nil, decodeErr(op, "%d bytes is too short", len(b))
		}
		if len(b) > MaxDatagramSize {
			return nil, decodeErr(op, "payload of %d bytes exceeds %d", len(b)-HeaderSize, BlockSize)
		}
		payload := make([]byte, len(b)-HeaderSize)
		copy(payload, b[HeaderSize:])
		return Data{Block: binary.BigEndian.Uint16(b[2:4]), Payload: payload}, nil
	case OpACK:
		if len(b) != HeaderSize {
			return nil, decodeErr(op, "expected %d bytes, got %d", HeaderSize, len(b))
		}
		return Ack{Block: binary.BigEndian.Uint16(b[2:4])}, nil
	case OpERROR:
		if len(b) < HeaderSize {
			return nil, decodeErr(op, "%d bytes is too short", len(b))
		}
		msg := b[HeaderSize:]
		// Some peers omit the trailing NUL; accept the message either way.
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		return Error{Code: ErrorCode(binary.BigEndian.Uint16(b[2:4])), Message: string(msg)}, nil
	default:
		return nil, decodeErr(0, "unknown opcode %d", uint16(op))
	}
}

func decodeRequest(op Opcode, body []byte) (string, string, error) {
	if len(body) < 2 {
		return "", "", decodeErr(op, "%d bytes is too short", len(body)+2)
	}
	i := bytes.IndexByte(body, 0)
	if i < 0 {
		return "", "", decodeErr(op, "filename is not NUL-terminated")
	}
	if i == 0 {
		return "", "", decodeErr(op, "empty filename")
	}
	filename := string(body[:i])
	rest := body[i+1:]
	j := bytes.IndexByte(rest, 0)
	if j < 0 {
		return "", "", decodeErr(op, "mode is not NUL-terminated")
	}
	if j == 0 {
		return "", "", decodeErr(op, "empty mode")
	}
	// Anything after the mode would be RFC 2347 options, which are not negotiated.
	return filename, string(rest[:j]), nil
}
