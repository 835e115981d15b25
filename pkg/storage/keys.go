package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema:
//
//	ser:<seriesID>                → Series
//	ord:<seriesID>:<seq, %04d>    → Order (zero-padded so scans walk schedule order)
//	own:<address>:<seriesID>      → owner index (empty value)

const (
	prefixSeries = "ser:"
	prefixOrder  = "ord:"
	prefixOwner  = "own:"
)

func seriesKey(seriesID string) []byte {
	return []byte(prefixSeries + seriesID)
}

func orderKey(seriesID string, sequence int) []byte {
	return []byte(fmt.Sprintf("%s%s:%04d", prefixOrder, seriesID, sequence))
}

// orderPrefix returns the prefix for all members of a series.
func orderPrefix(seriesID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, seriesID))
}

func ownerKey(addr common.Address, seriesID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOwner, addr.Hex(), seriesID))
}

// ownerPrefix returns the prefix for all series of an owner.
func ownerPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOwner, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
