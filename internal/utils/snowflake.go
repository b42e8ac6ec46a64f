package utils

import (
	"math"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

// DiscordEpoch is the first millisecond of 2015 in Unix milliseconds. Discord
// snowflakes count their timestamp bits from it.
const DiscordEpoch int64 = 1420070400000

func init() {
	snowflake.Epoch = DiscordEpoch
}

// ErrInvalidSnowflake is returned by ParseSnowflake for ids that are not a
// positive 63-bit decimal number.
var ErrInvalidSnowflake = errors.New("invalid snowflake id")

// ParseSnowflake validates a decimal Discord id. It must be used before
// handing user supplied ids to SnowflakeTime.
func ParseSnowflake(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 || id > math.MaxInt64 {
		return 0, errors.Wrapf(ErrInvalidSnowflake, "%q", s)
	}
	return id, nil
}

// SnowflakeTime returns the creation instant encoded in a snowflake:
// ((id >> 22) + DiscordEpoch) milliseconds since the Unix epoch, in UTC.
func SnowflakeTime(id uint64) time.Time {
	return time.UnixMilli(snowflake.ID(int64(id)).Time()).UTC()
}

// AccountAgeDays returns how many whole days passed between the account's
// creation and now. Creation instants after now count as zero days.
func AccountAgeDays(id uint64, now time.Time) int {
	elapsed := now.Sub(SnowflakeTime(id))
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}
