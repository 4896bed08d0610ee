package core

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// ControlKind identifies a recognized control message.
type ControlKind int

const (
	ControlNone ControlKind = iota
	ControlBeacon
	ControlStatus
)

// Control message tokens
const (
	TokenBeacon = "PHI_PI_NOTE"
	TokenStatus = "STATUS"
)

// Control is a parsed TOKEN|value message.
type Control struct {
	Kind      ControlKind
	Value     string
	Frequency float64
}

func (k ControlKind) String() string {
	switch k {
	case ControlBeacon:
		return TokenBeacon
	case ControlStatus:
		return TokenStatus
	default:
		return "NONE"
	}
}

// ParseControl recognizes pipe-delimited ASCII control messages. Anything
// else is ordinary traffic and reports false.
func ParseControl(payload []byte) (Control, bool) {
	sep := bytes.IndexByte(payload, '|')
	if sep <= 0 {
		return Control{}, false
	}
	for _, b := range payload {
		if b >= utf8.RuneSelf {
			return Control{}, false
		}
	}

	token := string(payload[:sep])
	rest := string(payload[sep+1:])
	value, _, _ := strings.Cut(rest, "|")

	switch token {
	case TokenBeacon:
		freq, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			freq = 0
		}
		return Control{Kind: ControlBeacon, Value: value, Frequency: freq}, true
	case TokenStatus:
		return Control{Kind: ControlStatus, Value: value}, true
	default:
		return Control{}, false
	}
}

// Digest is the 64-bit payload fingerprint kept in threat history.
func Digest(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
