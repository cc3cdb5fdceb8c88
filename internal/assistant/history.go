package assistant

import (
	"time"

	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

// FilterHistory derives the conversational context for one turn: the
// user-authored subsequence of the transcript inside the configured
// time window, truncated to the last ContextRounds elements. Pure
// function of its inputs and the supplied reference time.
func FilterHistory(msgs []storage.Message, cs settings.ChatSettings, now time.Time) []storage.Message {
	inWindow := windowPredicate(cs, now)

	out := make([]storage.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != storage.RoleUser {
			continue
		}
		if !inWindow(time.UnixMilli(m.Timestamp).In(now.Location())) {
			continue
		}
		out = append(out, m)
	}

	if cs.ContextRounds > 0 && len(out) > cs.ContextRounds {
		out = out[len(out)-cs.ContextRounds:]
	}
	return out
}

func windowPredicate(cs settings.ChatSettings, now time.Time) func(time.Time) bool {
	switch cs.ContextMode {
	case settings.ContextToday:
		start := startOfDay(now)
		end := start.AddDate(0, 0, 1)
		return between(start, end)

	case settings.ContextWeek:
		// Week runs Monday 00:00:00 through Sunday 23:59:59.
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := startOfDay(now).AddDate(0, 0, -(weekday - 1))
		end := start.AddDate(0, 0, 7)
		return between(start, end)

	case settings.ContextCustom:
		start, okStart := parseDay(cs.CustomStartDate, now.Location())
		endDay, okEnd := parseDay(cs.CustomEndDate, now.Location())
		if !okStart || !okEnd {
			return func(time.Time) bool { return true }
		}
		return between(start, endDay.AddDate(0, 0, 1))

	default:
		return func(time.Time) bool { return true }
	}
}

func between(start, end time.Time) func(time.Time) bool {
	return func(ts time.Time) bool {
		return !ts.Before(start) && ts.Before(end)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseDay(value string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
