package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/planning-poker/internal/scales"
)

// Command is an inbound request handled by a room. The set is closed:
// only this package declares commands.
type Command interface {
	command()
}

type StartVoting struct {
	JiraKey string
	Title   string
	JiraURL string
}

type CastVote struct {
	Value string
}

type Reveal struct{}

type Accept struct {
	FinalEstimate *string
	JiraSP        *string
}

type Revote struct{}

type Kick struct {
	Participant string
}

type ChangeScale struct {
	ScaleType   string
	CustomScale []string
}

// connection lifecycle and read-only requests, never decoded from the wire
type join struct {
	name string
	conn Conn
}

type leave struct {
	name   string
	connID uuid.UUID
}

type snapshot struct {
	out *Summary
}

func (StartVoting) command() {}
func (CastVote) command()    {}
func (Reveal) command()      {}
func (Accept) command()      {}
func (Revote) command()      {}
func (Kick) command()        {}
func (ChangeScale) command() {}
func (join) command()        {}
func (leave) command()       {}
func (snapshot) command()    {}

type wireMessage struct {
	Type          string          `json:"type"`
	JiraKey       flexString      `json:"jiraKey"`
	Title         flexString      `json:"title"`
	JiraURL       flexString      `json:"jiraUrl"`
	Value         flexString      `json:"value"`
	FinalEstimate flexString      `json:"finalEstimate"`
	JiraSP        flexString      `json:"jiraSp"`
	Participant   flexString      `json:"participant"`
	ScaleType     flexString      `json:"scaleType"`
	CustomScale   json.RawMessage `json:"customScale"`
}

// DecodeCommand parses one inbound websocket frame.
func DecodeCommand(data []byte) (Command, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message", ErrInvalidInput)
	}

	switch msg.Type {
	case "start_voting":
		return StartVoting{
			JiraKey: strings.TrimSpace(msg.JiraKey.value),
			Title:   strings.TrimSpace(msg.Title.value),
			JiraURL: strings.TrimSpace(msg.JiraURL.value),
		}, nil
	case "vote":
		return CastVote{Value: msg.Value.value}, nil
	case "reveal":
		return Reveal{}, nil
	case "accept":
		return Accept{FinalEstimate: msg.FinalEstimate.ptr(), JiraSP: msg.JiraSP.ptr()}, nil
	case "revote":
		return Revote{}, nil
	case "kick":
		return Kick{Participant: msg.Participant.value}, nil
	case "change_scale":
		custom, err := decodeCustomScale(msg.CustomScale)
		if err != nil {
			return nil, err
		}
		return ChangeScale{ScaleType: strings.TrimSpace(msg.ScaleType.value), CustomScale: custom}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// decodeCustomScale accepts a comma-separated string or an array of tokens.
func decodeCustomScale(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return scales.ParseCustom(text), nil
	}

	var list []flexString
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: customScale must be a string or a list", ErrInvalidInput)
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = item.value
	}
	return scales.ParseCustom(strings.Join(parts, ",")), nil
}

// flexString accepts a JSON string or number; null and absent stay empty.
type flexString struct {
	value string
	set   bool
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexString{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &f.value); err != nil {
			return err
		}
		f.set = true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	f.value, f.set = n.String(), true
	return nil
}

// ptr returns the trimmed value, or nil when blank.
func (f flexString) ptr() *string {
	v := strings.TrimSpace(f.value)
	if !f.set || v == "" {
		return nil
	}
	return &v
}
