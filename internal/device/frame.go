package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// maxFrame caps a single live-feed frame. A punch encodes to well under
// 100 bytes in either encoding.
const maxFrame = 4096

var ErrBadFrame = errors.New("malformed punch frame")

// jsonPunch is the text-frame shape emitted by the device relay.
type jsonPunch struct {
	UserID    json.RawMessage `json:"user_id"`
	Timestamp string          `json:"timestamp"`
	Status    int             `json:"status"`
	Punch     int             `json:"punch"`
}

// decodeJSON parses a text frame. Empty frames and "null" are keepalives.
func decodeJSON(b []byte, loc *time.Location) (*types.Punch, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == "{}" {
		return nil, nil
	}

	var jp jsonPunch
	if err := json.Unmarshal(b, &jp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	userID, err := rawUserID(jp.UserID)
	if err != nil {
		return nil, err
	}
	at, err := parseDeviceTime(jp.Timestamp, loc)
	if err != nil {
		return nil, err
	}
	return &types.Punch{
		RawDeviceUserID: userID,
		CapturedAt:      at,
		StatusCode:      jp.Status,
		PunchType:       jp.Punch,
	}, nil
}

// user_id arrives as a string from most firmware and as a bare number from
// some; both are kept as text.
func rawUserID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: user_id: %v", ErrBadFrame, err)
		}
		return s, nil
	}
	return string(raw), nil
}

func parseDeviceTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(types.TimestampLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadFrame, s)
}

// Binary frame field numbers:
//
//	1 user_id    string
//	2 timestamp  varint, unix seconds
//	3 status     varint
//	4 punch      varint
const (
	fieldUserID    protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldStatus    protowire.Number = 3
	fieldPunch     protowire.Number = 4
)

// decodeProto parses a binary frame. An empty frame is a keepalive.
// Unknown fields are skipped.
func decodeProto(b []byte, loc *time.Location) (*types.Punch, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var (
		p     types.Punch
		hasTS bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldUserID && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			p.RawDeviceUserID = v
		case num == fieldTimestamp && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			p.CapturedAt = time.Unix(int64(v), 0).In(loc)
			hasTS = true
		case num == fieldStatus && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			p.StatusCode = int(int32(v))
		case num == fieldPunch && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			p.PunchType = int(int32(v))
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %v", ErrBadFrame, num, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if !hasTS {
		return nil, fmt.Errorf("%w: missing timestamp", ErrBadFrame)
	}
	return &p, nil
}

// EncodeProto is the inverse of decodeProto; used by relays and tests.
func EncodeProto(p types.Punch) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldUserID, protowire.BytesType)
	b = protowire.AppendString(b, p.RawDeviceUserID)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.CapturedAt.Unix()))
	b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(p.StatusCode)))
	b = protowire.AppendTag(b, fieldPunch, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(p.PunchType)))
	return b
}
