package risk

import (
	"strings"
	"time"
)

// sessionWindow is a UTC trading window in whole hours. Start > End means
// the window wraps midnight.
type sessionWindow struct {
	start int
	end   int
}

func (w sessionWindow) contains(hour int) bool {
	if w.start > w.end {
		return hour >= w.start || hour < w.end
	}
	return w.start <= hour && hour < w.end
}

var sessionWindows = map[string]sessionWindow{
	"sydney":  {start: 21, end: 6},
	"asia":    {start: 0, end: 9},
	"london":  {start: 7, end: 16},
	"newyork": {start: 12, end: 21},
}

// InAllowedSession reports whether the UTC hour of t falls inside any of
// the named trading sessions. Unknown session names are ignored.
func InAllowedSession(t time.Time, allowed []string) bool {
	hour := t.UTC().Hour()

	for _, name := range allowed {
		window, ok := sessionWindows[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if window.contains(hour) {
			return true
		}
	}

	return false
}
