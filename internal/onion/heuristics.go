package onion

import (
	"sort"
	"time"

	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
)

// EntranceScore counts how often a door was somebody's first door of the day.
type EntranceScore struct {
	FirstSeen time.Time
	DoorID    string
	Score     int
}

type userDay struct {
	user string
	day  string
}

// EntranceScores scores every door by the number of (user, calendar day) pairs for
// which it was the user's first event. Days follow the timestamps' own location.
// Doors that were never first still appear, with a zero score.
func EntranceScores(events []model.Event) []EntranceScore {
	first := make(map[userDay]model.Event)
	firstSeen := make(map[string]time.Time)

	for _, ev := range events {
		if seen, ok := firstSeen[ev.DoorID]; !ok || ev.Timestamp.Before(seen) {
			firstSeen[ev.DoorID] = ev.Timestamp
		}
		key := userDay{user: ev.UserID, day: ev.Timestamp.Format(time.DateOnly)}
		if cur, ok := first[key]; !ok || ev.Timestamp.Before(cur.Timestamp) {
			first[key] = ev
		}
	}

	counts := make(map[string]int, len(firstSeen))
	for _, ev := range first {
		counts[ev.DoorID]++
	}

	scores := make([]EntranceScore, 0, len(firstSeen))
	for door, seen := range firstSeen {
		scores = append(scores, EntranceScore{DoorID: door, Score: counts[door], FirstSeen: seen})
	}
	sortScores(scores, config.TieBreakDoorID)
	return scores
}

// HeuristicEntrances returns up to n doors most often used as a first door of the
// day. Doors that were never first are not candidates. Equal scores are ordered by
// tieBreak: door ID, or the door seen earliest in the log.
func HeuristicEntrances(events []model.Event, n int, tieBreak string) []string {
	if n <= 0 {
		return nil
	}
	scores := EntranceScores(events)
	sortScores(scores, tieBreak)

	var out []string
	for _, s := range scores {
		if s.Score == 0 || len(out) == n {
			break
		}
		out = append(out, s.DoorID)
	}
	return out
}

func sortScores(scores []EntranceScore, tieBreak string) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if tieBreak == config.TieBreakEarliest && !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return a.DoorID < b.DoorID
	})
}
