package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderNumberFormat(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewOrderNumberGenerator(func() time.Time { return at })

	got := g.Next("downtown-denver")

	assert.Equal(t, "POS-DOW-20260102-"+lastFour(at.UnixMilli()), got)
}

func TestOrderNumberNeverRepeatsWithinProcess(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewOrderNumberGenerator(func() time.Time { return at })

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n := g.Next("mission")
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestLocationCode(t *testing.T) {
	cases := map[string]string{
		"":         "POS",
		"   ":      "POS",
		"downtown": "DOW",
		"ab":       "AB",
		"Élan-st":  "ÉLA",
	}
	for slug, want := range cases {
		assert.Equal(t, want, LocationCode(slug), "slug %q", slug)
	}
}

func lastFour(ms int64) string {
	return fmt.Sprintf("%04d", ms%10000)
}
