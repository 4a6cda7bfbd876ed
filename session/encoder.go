package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// CurrentSchemaVersion is the leading byte of every encoded record.
const CurrentSchemaVersion = 1

var (
	errFieldTooLong        = errors.New("session field too long")
	errUnsupportedSchema   = errors.New("unsupported session schema version")
	errTrailingSessionData = errors.New("trailing bytes after session record")
)

// Encode serializes r into the compact binary layout:
//
//	version:u8 | id | userID | device | ip | userAgent | loginTime:i64 | lastActivity:i64 | active:u8
//
// Strings are u16 length-prefixed, times are unix milliseconds, big endian.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(r.ID) + len(r.UserID) + len(r.Device) + len(r.IPAddress) + len(r.UserAgent))

	buf.WriteByte(CurrentSchemaVersion)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"id", r.ID},
		{"userID", r.UserID},
		{"device", r.Device},
		{"ipAddress", r.IPAddress},
		{"userAgent", r.UserAgent},
	} {
		if err := writeString(&buf, field.value); err != nil {
			return nil, fmt.Errorf("%w: %s", err, field.name)
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, r.LoginTime.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.LastActivity.UnixMilli()); err != nil {
		return nil, err
	}

	if r.Active {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedSchema, version)
	}

	r := &Record{}
	for _, dst := range []*string{&r.ID, &r.UserID, &r.Device, &r.IPAddress, &r.UserAgent} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	var loginMS, activityMS int64
	if err := binary.Read(reader, binary.BigEndian, &loginMS); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &activityMS); err != nil {
		return nil, err
	}
	r.LoginTime = time.UnixMilli(loginMS)
	r.LastActivity = time.UnixMilli(activityMS)

	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Active = active == 1

	if reader.Len() != 0 {
		return nil, errTrailingSessionData
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errFieldTooLong
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > reader.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
