package checkout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketNumber(t *testing.T) {
	for range 100 {
		ticket := NewTicketNumber()
		require.Len(t, ticket, 5)
		assert.Contains(t, ticketLetters, string(ticket[0]))
		assert.Equal(t, byte('-'), ticket[1])
		for _, c := range ticket[2:] {
			assert.True(t, c >= '0' && c <= '9', "ticket %q", ticket)
		}
	}
}

func TestNewTrackingToken(t *testing.T) {
	a := NewTrackingToken()
	b := NewTrackingToken()

	assert.NotEqual(t, a, b)
	// 32 bytes of entropy, URL-safe, no padding.
	assert.Len(t, a, 43)
	assert.False(t, strings.ContainsAny(a, "+/="))
}
