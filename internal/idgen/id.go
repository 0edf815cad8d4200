// Package idgen generates short, sortable identifiers for messages and
// other session-scoped entities that do not need full UUIDs.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

var counter uint32

// New returns a 12-byte ObjectID-style identifier (24 hex characters): a
// 4-byte unix timestamp, 5 random bytes, and a 3-byte rolling counter. The
// timestamp prefix keeps ids roughly sortable by creation order.
func New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&counter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}
