package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/session"
)

// Control message types a client sends as WebSocket text frames.
const (
	ControlStart = "start"
	ControlStop  = "stop"
)

// EventError is pushed when a control message is rejected. It is not part
// of a game's own feed.
const EventError = "error"

// controlMessage is a client request. Duration accepts a Go duration string
// ("90s", "3m") or a number of seconds; zero selects the server default.
type controlMessage struct {
	Type     string  `json:"type"`
	Duration seconds `json:"duration,omitempty"`
}

// seconds is a duration that decodes from either JSON form a browser client
// is likely to send.
type seconds time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (s *seconds) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*s = 0
			return nil
		}
		if n, err := strconv.ParseFloat(str, 64); err == nil {
			*s = seconds(n * float64(time.Second))
			return nil
		}
		d, err := time.ParseDuration(str)
		if err != nil {
			return fmt.Errorf("duration %q: %w", str, err)
		}
		*s = seconds(d)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("duration must be a string or a number of seconds")
	}
	*s = seconds(n * float64(time.Second))
	return nil
}

// eventMessage is the JSON form of a [game.Event] or an error report.
// Durations are in seconds.
type eventMessage struct {
	Event     string       `json:"event"`
	SessionID string       `json:"session_id,omitempty"`
	Duration  float64      `json:"duration,omitempty"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
	Text      string       `json:"text,omitempty"`
	Entities  []string     `json:"entities,omitempty"`
	Score     *int         `json:"score,omitempty"`
	Remaining *float64     `json:"remaining_duration,omitempty"`
	Summary   *summaryJSON `json:"summary,omitempty"`
	Message   string       `json:"message,omitempty"`
}

type summaryJSON struct {
	SessionID string    `json:"session_id"`
	Score     int       `json:"score"`
	Guessed   []string  `json:"guessed"`
	Duration  float64   `json:"duration"`
	Played    float64   `json:"played"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
}

func toSummaryJSON(s session.Summary) *summaryJSON {
	guessed := s.Guessed
	if guessed == nil {
		guessed = []string{}
	}
	return &summaryJSON{
		SessionID: s.SessionID,
		Score:     s.Score,
		Guessed:   guessed,
		Duration:  s.Duration.Seconds(),
		Played:    s.Played.Seconds(),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Reason:    string(s.Reason),
	}
}

func toEventMessage(ev game.Event) eventMessage {
	msg := eventMessage{Event: string(ev.Type), SessionID: ev.SessionID}
	switch ev.Type {
	case game.EventStarted:
		msg.Duration = ev.Duration.Seconds()
		deadline := ev.Deadline
		msg.Deadline = &deadline
	case game.EventHeard:
		msg.Text = ev.Text
	case game.EventMatch:
		msg.Entities = ev.Entities
		score := ev.Score
		msg.Score = &score
	case game.EventTick:
		remaining := ev.Remaining.Seconds()
		msg.Remaining = &remaining
	case game.EventEnded:
		score := ev.Score
		msg.Score = &score
		if ev.Summary != nil {
			msg.Summary = toSummaryJSON(*ev.Summary)
		}
	}
	return msg
}

func errorMessage(err error) eventMessage {
	return eventMessage{Event: EventError, Message: err.Error()}
}

// sessionView is the /api/sessions/{id} response.
type sessionView struct {
	SessionID string       `json:"session_id"`
	Phase     string       `json:"phase"`
	Score     int          `json:"score"`
	Guessed   []string     `json:"guessed"`
	Duration  float64      `json:"duration"`
	StartedAt time.Time    `json:"started_at"`
	Deadline  time.Time    `json:"deadline"`
	Remaining *float64     `json:"remaining_duration,omitempty"`
	Summary   *summaryJSON `json:"summary,omitempty"`
}

func snapshotView(s session.Snapshot, now time.Time) sessionView {
	v := sessionView{
		SessionID: s.ID,
		Phase:     s.Phase.String(),
		Score:     s.Score,
		Guessed:   s.Guessed,
		Duration:  s.Duration.Seconds(),
		StartedAt: s.StartedAt,
		Deadline:  s.Deadline,
	}
	if v.Guessed == nil {
		v.Guessed = []string{}
	}
	if s.Phase == session.PhaseRunning {
		remaining := max(s.Deadline.Sub(now), 0).Seconds()
		v.Remaining = &remaining
	}
	return v
}

func summaryView(s session.Summary) sessionView {
	sum := toSummaryJSON(s)
	return sessionView{
		SessionID: s.SessionID,
		Phase:     session.PhaseEnded.String(),
		Score:     s.Score,
		Guessed:   sum.Guessed,
		Duration:  sum.Duration,
		StartedAt: s.StartedAt,
		Deadline:  s.StartedAt.Add(s.Duration),
		Summary:   sum,
	}
}
