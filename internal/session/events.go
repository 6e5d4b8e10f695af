package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/stats"
)

// EventType tags outbound messages.
type EventType string

const (
	TypeRoomState         EventType = "room_state"
	TypeParticipantJoined EventType = "participant_joined"
	TypeParticipantLeft   EventType = "participant_left"
	TypeHostChanged       EventType = "host_changed"
	TypeVotingStarted     EventType = "voting_started"
	TypeVoteCast          EventType = "vote_cast"
	TypeVotesRevealed     EventType = "votes_revealed"
	TypeEstimateAccepted  EventType = "estimate_accepted"
	TypeScaleChanged      EventType = "scale_changed"
	TypeKicked            EventType = "kicked"
	TypeError             EventType = "error"
)

// Event is an outbound message. Encode adds the type tag.
type Event interface {
	EventType() EventType
}

type ParticipantInfo struct {
	Name     string `json:"name"`
	IsHost   bool   `json:"isHost"`
	HasVoted bool   `json:"hasVoted"`
}

type EstimationInfo struct {
	ID            uint                    `json:"id"`
	JiraKey       *string                 `json:"jiraKey"`
	JiraURL       *string                 `json:"jiraUrl"`
	Title         string                  `json:"title"`
	Status        models.EstimationStatus `json:"status"`
	FinalEstimate *string                 `json:"finalEstimate,omitempty"`
	JiraSP        *string                 `json:"jiraSp,omitempty"`
}

type RoomInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Scale     []string `json:"scale"`
	ScaleType string   `json:"scaleType"`
}

type VoteEntry struct {
	Participant string `json:"participant"`
	Value       string `json:"value"`
}

type RoomState struct {
	Room              RoomInfo          `json:"room"`
	Host              string            `json:"host"`
	Participants      []ParticipantInfo `json:"participants"`
	CurrentEstimation *EstimationInfo   `json:"currentEstimation"`
	VotedNames        []string          `json:"votedNames"`
}

// ParticipantsChanged is sent as participant_joined or participant_left.
type ParticipantsChanged struct {
	Joined       bool              `json:"-"`
	Participant  string            `json:"participant"`
	Participants []ParticipantInfo `json:"participants"`
}

type HostChanged struct {
	Host string `json:"host"`
}

type VotingStarted struct {
	Estimation EstimationInfo `json:"estimation"`
}

// VoteCast never carries the value; votes stay hidden until reveal.
type VoteCast struct {
	Participant       string `json:"participant"`
	TotalVotes        int    `json:"totalVotes"`
	TotalParticipants int    `json:"totalParticipants"`
}

type VotesRevealed struct {
	Votes      []VoteEntry      `json:"votes"`
	Stats      stats.RoundStats `json:"stats"`
	Estimation EstimationInfo   `json:"estimation"`
}

type EstimateAccepted struct {
	Estimation EstimationInfo `json:"estimation"`
}

type ScaleChanged struct {
	Scale     []string `json:"scale"`
	ScaleType string   `json:"scaleType"`
}

type Kicked struct{}

type ErrorMessage struct {
	Message string `json:"message"`
}

func (RoomState) EventType() EventType { return TypeRoomState }
func (e ParticipantsChanged) EventType() EventType {
	if e.Joined {
		return TypeParticipantJoined
	}
	return TypeParticipantLeft
}
func (HostChanged) EventType() EventType      { return TypeHostChanged }
func (VotingStarted) EventType() EventType    { return TypeVotingStarted }
func (VoteCast) EventType() EventType         { return TypeVoteCast }
func (VotesRevealed) EventType() EventType    { return TypeVotesRevealed }
func (EstimateAccepted) EventType() EventType { return TypeEstimateAccepted }
func (ScaleChanged) EventType() EventType     { return TypeScaleChanged }
func (Kicked) EventType() EventType           { return TypeKicked }
func (ErrorMessage) EventType() EventType     { return TypeError }

// Encode renders an event as a flat JSON object with a leading "type" field.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("event %T does not encode to an object", e)
	}

	tag, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func estimationInfo(e *models.Estimation) *EstimationInfo {
	if e == nil {
		return nil
	}
	return &EstimationInfo{
		ID:            e.ID,
		JiraKey:       e.JiraKey,
		JiraURL:       e.JiraURL,
		Title:         e.Title,
		Status:        e.Status,
		FinalEstimate: e.FinalEstimate,
		JiraSP:        e.JiraSP,
	}
}
