// Package featureflags evaluates runtime switches configured through FEATURE_FLAGS.
//
// The list is comma separated name=value pairs. A value is on/true/1,
// off/false/0, or a percentage such as 25% that enables the flag for a stable
// slice of signed-in users.
package featureflags

import (
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
)

// Known flags.
const (
	GoogleOAuth   = "google_oauth"
	WebSocketFeed = "websocket_feed"
	ExpirySweeper = "expiry_sweeper"
)

// rule is a parsed flag value. percent is 0..100; on and off are 100 and 0.
type rule struct {
	percent int
}

var everyone = rule{percent: 100}

func (r rule) allows(name string, userID uint) bool {
	switch {
	case r.percent >= 100:
		return true
	case r.percent <= 0, userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

func parseRule(value string) rule {
	switch value {
	case "on", "true", "1":
		return everyone
	case "off", "false", "0":
		return rule{}
	}
	digits, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return rule{}
	}
	return rule{percent: min(max(n, 0), 100)}
}

// Manager holds the parsed flag table. A nil Manager enables nothing.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw on top of the defaults, which switch every known
// flag on. Pairs without a name or value are skipped.
func NewManager(raw string) *Manager {
	m := &Manager{rules: map[string]rule{
		GoogleOAuth:   everyone,
		WebSocketFeed: everyone,
		ExpirySweeper: everyone,
	}}

	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		if ok && name != "" && value != "" {
			m.rules[name] = parseRule(value)
		}
	}
	return m
}

// On reports whether a flag is on for everyone, including anonymous callers.
func (m *Manager) On(name string) bool {
	return m.Enabled(name, 0)
}

// Enabled evaluates a flag for one user. Unknown flags are off.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	r, ok := m.rules[name]
	return ok && r.allows(name, userID)
}

// Names lists every known flag, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot evaluates every flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.allows(name, userID)
	}
	return out
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
