package escalation

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// ProtocolPrefix marks locally generated provisional protocols.
const ProtocolPrefix = "HL-"

var provisionalPattern = regexp.MustCompile(`^HL-\d+$`)

// IsProvisional reports whether protocol was generated locally.
func IsProvisional(protocol string) bool {
	return provisionalPattern.MatchString(protocol)
}

// ProtocolGenerator issues provisional protocols from a millisecond clock.
// Protocols are strictly increasing even when the clock stalls or goes back.
type ProtocolGenerator struct {
	mu    sync.Mutex
	clock func() time.Time
	last  int64
}

// NewProtocolGenerator creates a generator. A nil clock means time.Now.
func NewProtocolGenerator(clock func() time.Time) *ProtocolGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &ProtocolGenerator{clock: clock}
}

// Next returns a new provisional protocol.
func (g *ProtocolGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return ProtocolPrefix + strconv.FormatInt(ms, 10)
}
