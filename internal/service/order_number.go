package service

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const defaultLocationCode = "POS"

// OrderNumberGenerator issues POS-{CODE}-{YYYYMMDD}-{NNNN} numbers where NNNN
// is the last four digits of the epoch millisecond. Within one process the
// millisecond never repeats; collisions across replicas are caught by the
// unique column and retried by the caller.
type OrderNumberGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewOrderNumberGenerator(now func() time.Time) *OrderNumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &OrderNumberGenerator{now: now}
}

// Next returns a fresh order number for a location slug
func (g *OrderNumberGenerator) Next(slug string) string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	ts := time.UnixMilli(ms).UTC()
	return fmt.Sprintf("POS-%s-%s-%04d", LocationCode(slug), ts.Format("20060102"), ms%10000)
}

// LocationCode is the upper-cased first three characters of the slug, or POS
// when there is no slug.
func LocationCode(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return defaultLocationCode
	}
	if utf8.RuneCountInString(slug) > 3 {
		slug = string([]rune(slug)[:3])
	}
	return strings.ToUpper(slug)
}
