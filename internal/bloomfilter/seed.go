package bloomfilter

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomSeeder draws fresh, unpredictable SipHash keys for a new filter
// using a cryptographic random source — the keys only need to be distinct
// per table, never secret, but crypto/rand avoids any correlation across
// processes that a time-seeded PRNG could introduce.
func RandomSeeder() [2][2]uint64 {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; fall
		// back to a fixed-but-still-valid key rather than panicking, since
		// a degraded Bloom filter is still correct (merely less random).
		return [2][2]uint64{{0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9}, {0x94d049bb133111eb, 0x2545f4914f6cdd1d}}
	}
	var keys [2][2]uint64
	keys[0][0] = binary.LittleEndian.Uint64(buf[0:8])
	keys[0][1] = binary.LittleEndian.Uint64(buf[8:16])
	keys[1][0] = binary.LittleEndian.Uint64(buf[16:24])
	keys[1][1] = binary.LittleEndian.Uint64(buf[24:32])
	return keys
}
