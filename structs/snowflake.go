package structs

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Milliseconds elapsed since the unix epoch when adapt's epoch starts.
const EpochMillis int64 = 1_671_926_400_000

type ModelType uint8

const (
	ModelTypeGuild ModelType = iota
	ModelTypeUser
	ModelTypeChannel
	ModelTypeMessage
	ModelTypeAttachment
	ModelTypeRole
)

func (m ModelType) String() string {
	switch m {
	case ModelTypeGuild:
		return "guild"
	case ModelTypeUser:
		return "user"
	case ModelTypeChannel:
		return "channel"
	case ModelTypeMessage:
		return "message"
	case ModelTypeAttachment:
		return "attachment"
	case ModelTypeRole:
		return "role"
	default:
		return "unknown"
	}
}

// Snowflake is the id format shared by every adapt entity. The timestamp
// lives in the upper bits, the model type in bits 13..17.
type Snowflake uint64

func (s Snowflake) CreatedAt() time.Time {
	return time.UnixMilli(int64(s>>18) + EpochMillis)
}

func (s Snowflake) ModelType() ModelType {
	return ModelType((s >> 13) & 0b11111)
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Snowflake(v), nil
}

var ErrMalformedToken = errors.New("malformed authentication token")

// ExtractUserID pulls the owning user id out of an authentication token.
// The segment before the first dot is the base64url-encoded decimal id.
func ExtractUserID(token string) (Snowflake, error) {
	head, _, _ := strings.Cut(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(head, "="))
	if err != nil {
		return 0, ErrMalformedToken
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, ErrMalformedToken
	}
	return Snowflake(id), nil
}
