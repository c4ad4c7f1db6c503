package turndto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt accepts both 300 and "300"; Play by Cloud sends the turn as a string.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("turn number %q is not an integer", s)
		}
		*n = FlexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("turn number %s is not an integer", b)
	}
	*n = FlexInt(v)
	return nil
}

// WebhookTurn is the Play by Cloud payload: value1 game, value2 player, value3 turn.
type WebhookTurn struct {
	Value1 string   `json:"value1"`
	Value2 string   `json:"value2"`
	Value3 *FlexInt `json:"value3"`
}

// PYDTTurn is the Play Your Damn Turn payload. The value1..3 fields are accepted as aliases.
type PYDTTurn struct {
	WebhookTurn
	GameName   string   `json:"gameName"`
	UserName   string   `json:"userName"`
	Round      *FlexInt `json:"round"`
	CivName    string   `json:"civName"`
	LeaderName string   `json:"leaderName"`
}

// Turn is a payload reduced to what the ledger needs.
type Turn struct {
	Game         string
	Handle       string
	Number       int
	Civilization string
	Leader       string
}

func (w WebhookTurn) Turn() (Turn, error) {
	t := Turn{Game: strings.TrimSpace(w.Value1), Handle: strings.TrimSpace(w.Value2)}
	if w.Value3 == nil {
		return t, fmt.Errorf("value3 (turn number) is required")
	}
	t.Number = int(*w.Value3)
	return t, t.check()
}

func (p PYDTTurn) Turn() (Turn, error) {
	t := Turn{
		Game:         firstNonBlank(p.GameName, p.Value1),
		Handle:       firstNonBlank(p.UserName, p.Value2),
		Civilization: strings.TrimSpace(p.CivName),
		Leader:       strings.TrimSpace(p.LeaderName),
	}
	switch {
	case p.Round != nil:
		t.Number = int(*p.Round)
	case p.Value3 != nil:
		t.Number = int(*p.Value3)
	default:
		return t, fmt.Errorf("round (turn number) is required")
	}
	return t, t.check()
}

func (t Turn) check() error {
	switch {
	case t.Game == "":
		return fmt.Errorf("game name is required")
	case t.Handle == "":
		return fmt.Errorf("player name is required")
	case t.Number < 0:
		return fmt.Errorf("turn number must not be negative")
	}
	return nil
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// TurnResult is the body of a successful or duplicate turn post.
type TurnResult struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	Game    Game   `json:"game"`
}
