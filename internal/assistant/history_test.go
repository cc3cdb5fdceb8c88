package assistant

import (
	"testing"
	"time"

	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

func msgAt(role string, t time.Time, text string) storage.Message {
	return storage.Message{Role: role, Text: text, Timestamp: t.UnixMilli()}
}

func TestFilterHistoryExcludesNonUserMessages(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	msgs := []storage.Message{
		msgAt(storage.RoleUser, now.Add(-time.Hour), "lunch was great"),
		msgAt(storage.RoleModel, now.Add(-time.Hour), "glad to hear"),
		msgAt(storage.RoleSystem, now.Add(-time.Hour), "recorded 1 entry"),
		msgAt(storage.RoleUser, now.Add(-30*time.Minute), "back to work"),
	}

	got := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextGlobal, ContextRounds: settings.UnboundedRounds}, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 user messages, got %d", len(got))
	}
	for _, m := range got {
		if m.Role != storage.RoleUser {
			t.Fatalf("non-user message leaked into context: %+v", m)
		}
	}
}

func TestFilterHistoryToday(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC) // a Friday
	msgs := []storage.Message{
		msgAt(storage.RoleUser, time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC), "yesterday night"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), "midnight today"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), "noon today"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), "tomorrow"),
	}

	got := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextToday, ContextRounds: settings.UnboundedRounds}, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages for today, got %d: %+v", len(got), got)
	}
	if got[0].Text != "midnight today" || got[1].Text != "noon today" {
		t.Fatalf("wrong messages selected: %+v", got)
	}
}

func TestFilterHistoryWeekMondayThroughSunday(t *testing.T) {
	// 2026-08-28 is a Friday; its week is Mon 2026-08-24 .. Sun 2026-08-30.
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	msgs := []storage.Message{
		msgAt(storage.RoleUser, time.Date(2026, 8, 23, 23, 59, 59, 0, time.UTC), "previous sunday"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), "monday start"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC), "sunday end"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), "next monday"),
	}

	got := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextWeek, ContextRounds: settings.UnboundedRounds}, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages inside the week, got %d: %+v", len(got), got)
	}
	if got[0].Text != "monday start" || got[1].Text != "sunday end" {
		t.Fatalf("wrong week boundaries: %+v", got)
	}
}

func TestFilterHistorySundayBelongsToSameWeek(t *testing.T) {
	// Reference time on a Sunday: the window must still start the
	// previous Monday, not the following one.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	msgs := []storage.Message{
		msgAt(storage.RoleUser, time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC), "monday"),
	}
	got := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextWeek, ContextRounds: settings.UnboundedRounds}, now)
	if len(got) != 1 {
		t.Fatalf("expected monday message in sunday's week, got %+v", got)
	}
}

func TestFilterHistoryCustomRangeInclusive(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	cs := settings.ChatSettings{
		ContextMode:     settings.ContextCustom,
		ContextRounds:   settings.UnboundedRounds,
		CustomStartDate: "2026-08-10",
		CustomEndDate:   "2026-08-12",
	}
	msgs := []storage.Message{
		msgAt(storage.RoleUser, time.Date(2026, 8, 9, 23, 0, 0, 0, time.UTC), "before"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), "start day"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 12, 23, 59, 59, 0, time.UTC), "end day"),
		msgAt(storage.RoleUser, time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC), "after"),
	}
	got := FilterHistory(msgs, cs, now)
	if len(got) != 2 || got[0].Text != "start day" || got[1].Text != "end day" {
		t.Fatalf("wrong custom range selection: %+v", got)
	}
}

func TestFilterHistoryRoundsCap(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	var msgs []storage.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, msgAt(storage.RoleUser, now.Add(time.Duration(i-5)*time.Minute), string(rune('a'+i))))
	}

	got := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextGlobal, ContextRounds: 2}, now)
	if len(got) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(got))
	}
	if got[0].Text != "d" || got[1].Text != "e" {
		t.Fatalf("expected the last two messages, got %+v", got)
	}

	unbounded := FilterHistory(msgs, settings.ChatSettings{ContextMode: settings.ContextGlobal, ContextRounds: settings.UnboundedRounds}, now)
	if len(unbounded) != 5 {
		t.Fatalf("expected unbounded sentinel to keep all 5, got %d", len(unbounded))
	}
}
