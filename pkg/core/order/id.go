package order

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// SeriesID derives a collision-resistant series identifier from the owner
// address, strategy tag, and creation instant:
// keccak256(owner ‖ strategy ‖ createdAtMillis), hex with 0x prefix.
func SeriesID(owner common.Address, strategy Strategy, createdAt int64) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(owner.Bytes())
	h.Write([]byte(strategy))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	h.Write(ts[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// OrderID builds a member order id from its series and sequence position.
// Format: "<seriesID>-u<sequence>" with a zero-padded sequence so ids sort
// in schedule order.
func OrderID(seriesID string, sequence int) string {
	return fmt.Sprintf("%s-u%04d", seriesID, sequence)
}

// ParseOrderID splits an order id back into series id and sequence position.
func ParseOrderID(id string) (seriesID string, sequence int, err error) {
	i := strings.LastIndex(id, "-u")
	if i < 0 {
		return "", 0, fmt.Errorf("%w: malformed order id %q", ErrNotFound, id)
	}
	seq, err := strconv.Atoi(id[i+2:])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: malformed order id %q", ErrNotFound, id)
	}
	return id[:i], seq, nil
}
