package protocol

// HandshakeStatus represents the result of a handshake.
type HandshakeStatus uint8

const (
	HandshakeOK              HandshakeStatus = 0x00
	HandshakeVersionMismatch HandshakeStatus = 0x01
	HandshakeServerBusy      HandshakeStatus = 0x04
	HandshakeInvalidFormat   HandshakeStatus = 0x06 // Malformed handshake message
	HandshakeInternalError   HandshakeStatus = 0x08 // Component failed to connect
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeVersionMismatch:
		return "VersionMismatch"
	case HandshakeServerBusy:
		return "ServerBusy"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (hs HandshakeStatus) MarshalText() ([]byte, error) {
	return []byte(hs.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (hs *HandshakeStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*hs = HandshakeOK
	case "VersionMismatch":
		*hs = HandshakeVersionMismatch
	case "ServerBusy":
		*hs = HandshakeServerBusy
	case "InvalidFormat":
		*hs = HandshakeInvalidFormat
	case "InternalError":
		*hs = HandshakeInternalError
	default:
		return ErrUnknownStatus
	}
	return nil
}
