// Package featureflags evaluates runtime switches configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Flags understood by the application.
const (
	// RatingRequiresSwap restricts ratings to members who completed an accepted swap together.
	RatingRequiresSwap = "rating_requires_swap"
	// CoverUploads enables the book cover upload endpoint.
	CoverUploads = "cover_uploads"
	// RealtimeNotifications pushes swap and message events over websockets.
	RealtimeNotifications = "realtime_notifications"
)

var defaults = map[string]string{
	RatingRequiresSwap:    "off",
	CoverUploads:          "on",
	RealtimeNotifications: "on",
}

// rule is a parsed flag value. percent is 0..100; anything unparseable is 0.
type rule struct {
	raw     string
	percent int
	rollout bool
}

func parseRule(value string) rule {
	r := rule{raw: value}
	switch value {
	case "on", "true", "1":
		r.percent = 100
	case "off", "false", "0":
	default:
		if n, ok := strings.CutSuffix(value, "%"); ok {
			if pct, err := strconv.Atoi(n); err == nil {
				r.percent = min(max(pct, 0), 100)
				r.rollout = r.percent > 0 && r.percent < 100
			}
		}
	}
	return r
}

// Manager answers flag lookups from a comma-separated key=value list such as
// "rating_requires_swap=on,cover_uploads=25%". Percentages roll out to a
// stable slice of members.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw on top of the built-in defaults. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule, len(defaults))
	for name, value := range defaults {
		rules[name] = parseRule(value)
	}

	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" || value == "" {
			continue
		}
		rules[name] = parseRule(value)
	}
	return &Manager{rules: rules}
}

// Enabled reports whether name is on for userID. Partial rollouts are
// always off for anonymous callers (userID 0).
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r, ok := m.rules[name]
	switch {
	case !ok || r.percent == 0:
		return false
	case !r.rollout:
		return true
	case userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Names lists the known flags alphabetically.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot evaluates every flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
