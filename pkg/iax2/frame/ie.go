package frame

import (
	"encoding/binary"
	"fmt"
)

// MaxIEDataLen is the maximum data length of an Information Element; the
// length field on the wire is a single byte.
const MaxIEDataLen = 255

// IE is one Information Element: a (type, length, data) triplet carried by
// FULL frames of type IAX2.
type IE struct {
	Type IEType
	Data []byte
}

// String renders the IE with its value decoded per the conventional
// encoding of its type (string, u16 or u32), for debug output.
func (ie IE) String() string {
	switch ie.Type {
	case IEUsername, IECalledNumber, IECallingNumber, IECallingName,
		IECalledContext, IELanguage, IECause:
		return fmt.Sprintf("%s=%q", ie.Type, ie.Data)
	case IEVersion, IERefresh, IECallNo, IEMsgCount:
		if n, ok := ie.Uint16(); ok {
			return fmt.Sprintf("%s=%d", ie.Type, n)
		}
	case IECapability, IEFormat, IESamplingRate, IEAuthMethods:
		if n, ok := ie.Uint32(); ok {
			return fmt.Sprintf("%s=%d", ie.Type, n)
		}
	}
	return fmt.Sprintf("%s(%d bytes)", ie.Type, len(ie.Data))
}

// Uint16 reads the data as a big-endian u16.
func (ie IE) Uint16() (uint16, bool) {
	if len(ie.Data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(ie.Data), true
}

// Uint32 reads the data as a big-endian u32.
func (ie IE) Uint32() (uint32, bool) {
	if len(ie.Data) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(ie.Data), true
}
