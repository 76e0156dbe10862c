package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Command identifies what the tunnel carries after the greeting.
type Command uint8

const (
	CommandTCP Command = 1
	CommandUDP Command = 2
	CommandMux Command = 3
)

func (c Command) String() string {
	switch c {
	case CommandTCP:
		return "tcp"
	case CommandUDP:
		return "udp"
	case CommandMux:
		return "mux"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// AddressType identifies how the destination address is encoded.
type AddressType uint8

const (
	AddressIPv4   AddressType = 1
	AddressDomain AddressType = 2
	AddressIPv6   AddressType = 3
)

// MuxSentinelAddress is the magic domain that reclassifies a TCP/UDP
// greeting as Mux when it appears as the destination address (see
// SPEC_FULL.md §9, "Ambiguity").
const MuxSentinelAddress = "v1.mux.cool"

// muxSyntheticAddress is what Greeting.Address is set to for a greeting
// whose Command is already CommandMux (MUX carries no address on the wire).
const muxSyntheticAddress = "mux.cool"

// minGreetingLen is the minimum number of bytes ParseGreeting needs to even
// start: version(1) + uuid(16) + optLen(1) + command(1) + port(2) +
// addrType(1) + at least a 2-byte address. The spec fixes this at 24.
const minGreetingLen = 24

// UUIDValidator decides whether a normalized (lowercase, hyphenated) UUID
// string is authorized to open a tunnel.
type UUIDValidator func(normalizedUUID string) bool

// Greeting is the parsed VLESS-style handshake that precedes tunnel traffic.
type Greeting struct {
	Version      byte
	UUID         string // lowercase hyphenated
	Command      Command
	Port         uint16
	AddressType  AddressType
	Address      string
	RawDataIndex int // offset of the first payload byte in the source buffer
}

// ParseGreeting parses the fixed VLESS-style handshake from buf. validate
// is consulted once the raw UUID bytes have been decoded; a rejection
// produces ErrUnauthorized without ever looking at the rest of the buffer.
func ParseGreeting(buf []byte, validate UUIDValidator) (Greeting, error) {
	if len(buf) < minGreetingLen {
		return Greeting{}, fmt.Errorf("greeting shorter than %d bytes: %w", minGreetingLen, ErrShortBuffer)
	}

	off := 0
	g := Greeting{}

	g.Version = buf[off]
	off++

	id, err := formatUUID(buf[off : off+16])
	if err != nil {
		return Greeting{}, fmt.Errorf("greeting uuid: %w", err)
	}
	off += 16
	if validate != nil && !validate(id) {
		return Greeting{}, ErrUnauthorized
	}
	g.UUID = id

	optLen := int(buf[off])
	off++
	if off+optLen > len(buf) {
		return Greeting{}, fmt.Errorf("greeting opt bytes: %w", ErrIncomplete)
	}
	off += optLen // opt bytes are opaque and skipped

	if off >= len(buf) {
		return Greeting{}, fmt.Errorf("greeting command: %w", ErrIncomplete)
	}
	g.Command = Command(buf[off])
	off++

	switch g.Command {
	case CommandMux:
		g.Address = muxSyntheticAddress
		g.RawDataIndex = off
		return g, nil
	case CommandTCP, CommandUDP:
		if off+2 > len(buf) {
			return Greeting{}, fmt.Errorf("greeting port: %w", ErrIncomplete)
		}
		g.Port = binary.BigEndian.Uint16(buf[off : off+2])
		off += 2

		if off >= len(buf) {
			return Greeting{}, fmt.Errorf("greeting address type: %w", ErrIncomplete)
		}
		g.AddressType = AddressType(buf[off])
		off++

		addr, consumed, err := parseAddressValue(buf[off:], g.AddressType)
		if err != nil {
			return Greeting{}, err
		}
		g.Address = addr
		off += consumed

		// A TCP/UDP greeting whose destination is the Mux sentinel domain
		// is really a Mux tunnel in disguise; the dispatcher must treat it
		// identically to an explicit MUX command byte.
		if strings.EqualFold(g.Address, MuxSentinelAddress) {
			g.Command = CommandMux
		}

		g.RawDataIndex = off
		return g, nil
	default:
		return Greeting{}, fmt.Errorf("greeting command %d: %w", buf[off-1], ErrMalformed)
	}
}

// parseAddressValue decodes the address value for addrType starting at the
// front of buf, returning the rendered address and the number of bytes
// consumed.
func parseAddressValue(buf []byte, addrType AddressType) (string, int, error) {
	switch addrType {
	case AddressIPv4:
		if len(buf) < 4 {
			return "", 0, fmt.Errorf("ipv4 address: %w", ErrIncomplete)
		}
		return fmt.Sprintf("%d.%d.%d.%d", buf[0], buf[1], buf[2], buf[3]), 4, nil
	case AddressDomain:
		if len(buf) < 1 {
			return "", 0, fmt.Errorf("domain length: %w", ErrIncomplete)
		}
		n := int(buf[0])
		if n == 0 {
			return "", 0, fmt.Errorf("domain address is empty: %w", ErrMalformed)
		}
		if len(buf) < 1+n {
			return "", 0, fmt.Errorf("domain address: %w", ErrIncomplete)
		}
		return string(buf[1 : 1+n]), 1 + n, nil
	case AddressIPv6:
		if len(buf) < 16 {
			return "", 0, fmt.Errorf("ipv6 address: %w", ErrIncomplete)
		}
		groups := make([]string, 8)
		for i := 0; i < 8; i++ {
			groups[i] = fmt.Sprintf("%04x", binary.BigEndian.Uint16(buf[i*2:i*2+2]))
		}
		return strings.Join(groups, ":"), 16, nil
	default:
		return "", 0, fmt.Errorf("address type %d: %w", addrType, ErrMalformed)
	}
}

// formatUUID renders 16 raw bytes as a canonical lowercase hyphenated UUID
// string, e.g. "01234567-89ab-cdef-0123-456789abcdef".
func formatUUID(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("uuid must be 16 bytes, got %d: %w", len(raw), ErrMalformed)
	}
	var b strings.Builder
	b.Grow(36)
	hexDigits := "0123456789abcdef"
	writeHex := func(bs []byte) {
		for _, c := range bs {
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	writeHex(raw[0:4])
	b.WriteByte('-')
	writeHex(raw[4:6])
	b.WriteByte('-')
	writeHex(raw[6:8])
	b.WriteByte('-')
	writeHex(raw[8:10])
	b.WriteByte('-')
	writeHex(raw[10:16])
	return b.String(), nil
}

// BuildResponsePrefix returns the 2-byte server greeting: [version, 0x00].
// It must be written exactly once, before any other server->client bytes.
func BuildResponsePrefix(version byte) []byte {
	return []byte{version, 0x00}
}
