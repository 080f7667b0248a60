package checkout

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

// Ticket numbers are read aloud at the pickup window, so the alphabet skips
// characters that are easy to mishear or misread (0/O, 1/I, vowels).
const ticketLetters = "BCDFGHJKLMNPQRSTVWXZ"

// NewTicketNumber generates a short candidate ticket number like "K-347".
// Uniqueness among open orders is the caller's job: candidates are checked
// against the order repository and regenerated on collision.
func NewTicketNumber() string {
	buf := make([]byte, 0, 5)
	buf = append(buf, ticketLetters[randInt(len(ticketLetters))], '-')
	for range 3 {
		buf = append(buf, byte('0'+randInt(10)))
	}
	return string(buf)
}

// NewTrackingToken generates the opaque secret a guest must present together
// with the ticket number to view order details. 256 bits from crypto/rand;
// the ticket number alone is shouted across the truck window and must never
// be enough.
func NewTrackingToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
