package ids

import (
	"fmt"
	"strconv"
	"strings"
)

const RaidPrefix = "raid_"

func MaxU64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}

func RaidID(n uint64) string {
	return RaidPrefix + strconv.FormatUint(n, 10)
}

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// PuzzleID names the puzzle generated on a given floor of a raid.
func PuzzleID(raidID string, floor int) string {
	return fmt.Sprintf("%s@f%d", raidID, floor)
}

func ParsePuzzleID(id string) (raidID string, floor int, ok bool) {
	i := strings.LastIndex(id, "@f")
	if i <= 0 || i+2 >= len(id) {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return id[:i], n, true
}
