// Package session runs the live estimation rooms. Each room is an actor:
// one goroutine owns its state and handles commands strictly one at a time,
// and every mutation is persisted before it is broadcast.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/scales"
	"github.com/thereayou/planning-poker/internal/services"
	"github.com/thereayou/planning-poker/internal/stats"
	"github.com/thereayou/planning-poker/internal/utils"
)

// Conn is a participant's connection as seen by a room. Send must not block.
type Conn interface {
	ID() uuid.UUID
	Send(event Event) error
	Close() error
}

// Summary is a read-only view of a live room.
type Summary struct {
	ID                string            `json:"id"`
	Active            bool              `json:"active"`
	Host              string            `json:"host"`
	Participants      []ParticipantInfo `json:"participants"`
	CurrentEstimation *EstimationInfo   `json:"currentEstimation"`
}

type participant struct {
	name string
	conn Conn
	// kicked participants stay listed until their leave arrives but may
	// not issue commands.
	kicked bool
}

type envelope struct {
	from   string
	connID uuid.UUID
	cmd    Command
	reply  chan error
}

type Room struct {
	id       string
	store    services.DatabaseService
	registry Registry
	log      *slog.Logger
	timeout  time.Duration

	inbox chan envelope
	done  chan struct{}

	// owned by run
	meta         *models.Room
	scale        []string
	participants []*participant
	host         string
	current      *models.Estimation
	votes        ballot
}

func newRoom(id string, store services.DatabaseService, registry Registry, log *slog.Logger, timeout time.Duration) *Room {
	return &Room{
		id:       id,
		store:    store,
		registry: registry,
		log:      log.With("room", id),
		timeout:  timeout,
		inbox:    make(chan envelope),
		done:     make(chan struct{}),
		votes:    newBallot(),
	}
}

// ID returns the room code.
func (r *Room) ID() string {
	return r.id
}

// Join registers a participant under name. It fails with ErrDuplicateName
// or ErrRoomNotFound; on success the joiner has been sent room_state.
func (r *Room) Join(ctx context.Context, name string, conn Conn) error {
	return r.submit(ctx, envelope{from: name, connID: conn.ID(), cmd: join{name: name, conn: conn}})
}

// Leave removes the participant bound to connID. Unknown pairs are ignored.
func (r *Room) Leave(ctx context.Context, name string, connID uuid.UUID) {
	err := r.submit(ctx, envelope{from: name, connID: connID, cmd: leave{name: name, connID: connID}})
	if err != nil && !errors.Is(err, errRoomClosed) {
		r.log.Warn("leave not processed", "participant", utils.SanitizeLogString(name), "error", err)
	}
}

// Handle runs a participant command and returns the error meant for that
// participant only.
func (r *Room) Handle(ctx context.Context, name string, connID uuid.UUID, cmd Command) error {
	switch cmd.(type) {
	case join, leave, snapshot:
		return fmt.Errorf("%w: %T is not a participant command", ErrInvalidInput, cmd)
	}
	err := r.submit(ctx, envelope{from: name, connID: connID, cmd: cmd})
	if errors.Is(err, errRoomClosed) {
		return ErrNotParticipant
	}
	return err
}

// Snapshot returns the live participants and round.
func (r *Room) Snapshot(ctx context.Context) (Summary, error) {
	var out Summary
	if err := r.submit(ctx, envelope{cmd: snapshot{out: &out}}); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (r *Room) submit(ctx context.Context, env envelope) error {
	env.reply = make(chan error, 1)

	select {
	case r.inbox <- env:
	case <-r.done:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run() {
	defer close(r.done)

	for env := range r.inbox {
		env.reply <- r.dispatch(env)

		if len(r.participants) == 0 {
			r.evict()
			return
		}
	}
}

func (r *Room) dispatch(env envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch cmd := env.cmd.(type) {
	case join:
		return r.join(ctx, cmd)
	case leave:
		r.leave(cmd)
		return nil
	case snapshot:
		*cmd.out = r.summary()
		return nil
	}

	if !r.isConnected(env.from, env.connID) {
		return ErrNotParticipant
	}

	switch cmd := env.cmd.(type) {
	case StartVoting:
		return r.startVoting(ctx, env.from, cmd)
	case CastVote:
		return r.vote(ctx, env.from, cmd)
	case Reveal:
		return r.reveal(ctx, env.from)
	case Accept:
		return r.accept(ctx, env.from, cmd)
	case Revote:
		return r.revote(ctx, env.from)
	case Kick:
		return r.kick(env.from, cmd)
	case ChangeScale:
		return r.changeScale(ctx, env.from, cmd)
	default:
		r.log.Error("unhandled command", "command", fmt.Sprintf("%T", cmd))
		return fmt.Errorf("unhandled command %T", cmd)
	}
}

// evict drops the room from the registry. A round that was never accepted
// is discarded so storage never keeps an orphaned active round.
func (r *Room) evict() {
	r.registry.Remove(r.id, r)

	if r.current != nil && r.current.IsActive() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.DiscardEstimation(ctx, r.current.ID); err != nil {
			r.log.Error("failed to discard abandoned estimation", "estimation", r.current.ID, "error", err)
		}
	}
	r.log.Info("room evicted")
}

func (r *Room) join(ctx context.Context, cmd join) error {
	if r.find(cmd.name) != nil {
		return ErrDuplicateName
	}

	meta, err := r.store.GetRoom(ctx, r.id)
	if errors.Is(err, services.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return r.storageError("load room", err)
	}
	r.meta = meta
	r.scale = scales.Resolve(meta.ScaleType, meta.CustomTokens())

	r.participants = append(r.participants, &participant{name: cmd.name, conn: cmd.conn})
	if r.host == "" {
		r.host = cmd.name
	}

	r.sendTo(cmd.conn, RoomState{
		Room: RoomInfo{
			ID:        meta.ID,
			Name:      meta.Name,
			Scale:     r.scale,
			ScaleType: meta.ScaleType,
		},
		Host:              r.host,
		Participants:      r.participantList(),
		CurrentEstimation: estimationInfo(r.current),
		VotedNames:        r.votes.names(),
	})
	r.broadcastExcept(cmd.name, ParticipantsChanged{
		Joined:       true,
		Participant:  cmd.name,
		Participants: r.participantList(),
	})

	r.log.Info("participant joined", "participant", utils.SanitizeLogString(cmd.name), "host", r.host == cmd.name)
	return nil
}

func (r *Room) leave(cmd leave) {
	idx := -1
	for i, p := range r.participants {
		if p.name == cmd.name && p.conn.ID() == cmd.connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	r.participants = append(r.participants[:idx:idx], r.participants[idx+1:]...)
	r.votes.remove(cmd.name)
	r.log.Info("participant left", "participant", utils.SanitizeLogString(cmd.name))

	if len(r.participants) == 0 {
		r.host = ""
		return
	}

	// The longest-connected remaining participant takes over.
	if r.host == cmd.name {
		r.host = r.participants[0].name
		r.broadcast(HostChanged{Host: r.host})
	}

	r.broadcast(ParticipantsChanged{
		Participant:  cmd.name,
		Participants: r.participantList(),
	})
}

func (r *Room) startVoting(ctx context.Context, from string, cmd StartVoting) error {
	if from != r.host {
		return hostOnlyError{action: "start voting"}
	}
	if cmd.Title == "" && cmd.JiraKey == "" {
		return fmt.Errorf("%w: provide a ticket title or key", ErrInvalidInput)
	}
	if r.current != nil && r.current.IsActive() {
		return ErrRoundInProgress
	}

	// Tracker keys are stored in their canonical upper-case form.
	cmd.JiraKey = strings.ToUpper(strings.TrimSpace(cmd.JiraKey))
	title := cmd.Title
	if title == "" {
		title = cmd.JiraKey
	}
	estimation := &models.Estimation{
		RoomID:  r.id,
		JiraKey: optional(cmd.JiraKey),
		JiraURL: optional(cmd.JiraURL),
		Title:   title,
		Status:  models.StatusVoting,
	}
	if err := r.store.CreateEstimation(ctx, estimation); err != nil {
		return r.storageError("create estimation", err)
	}

	r.current = estimation
	r.votes.clear()

	r.broadcast(VotingStarted{Estimation: *estimationInfo(r.current)})
	r.log.Info("voting started", "estimation", estimation.ID, "title", utils.SanitizeLogString(title))
	return nil
}

func (r *Room) vote(ctx context.Context, from string, cmd CastVote) error {
	if r.current == nil || r.current.Status != models.StatusVoting {
		return ErrNoActiveRound
	}
	if !scales.Contains(r.scale, cmd.Value) {
		return ErrInvalidVote
	}

	vote := &models.Vote{EstimationID: r.current.ID, Participant: from, Value: cmd.Value}
	if err := r.store.UpsertVote(ctx, vote); err != nil {
		return r.storageError("save vote", err)
	}
	r.votes.set(from, cmd.Value)

	r.broadcast(VoteCast{
		Participant:       from,
		TotalVotes:        r.votes.len(),
		TotalParticipants: len(r.participants),
	})
	return nil
}

func (r *Room) reveal(ctx context.Context, from string) error {
	if from != r.host {
		return hostOnlyError{action: "reveal"}
	}
	if r.current == nil || r.current.Status != models.StatusVoting {
		return ErrNoActiveRound
	}

	if err := r.store.UpdateEstimationStatus(ctx, r.current.ID, models.StatusRevealed); err != nil {
		return r.storageError("reveal estimation", err)
	}
	r.current.Status = models.StatusRevealed

	r.broadcast(VotesRevealed{
		Votes:      r.votes.entries(),
		Stats:      stats.ComputeRoundStats(r.votes.tokens()),
		Estimation: *estimationInfo(r.current),
	})
	return nil
}

func (r *Room) accept(ctx context.Context, from string, cmd Accept) error {
	if from != r.host {
		return hostOnlyError{action: "accept"}
	}
	if r.current == nil || r.current.Status != models.StatusRevealed {
		return ErrMustRevealFirst
	}

	if err := r.store.AcceptEstimation(ctx, r.current.ID, cmd.FinalEstimate, cmd.JiraSP); err != nil {
		return r.storageError("accept estimation", err)
	}
	r.current.Status = models.StatusAccepted
	r.current.FinalEstimate = cmd.FinalEstimate
	r.current.JiraSP = cmd.JiraSP

	r.broadcast(EstimateAccepted{Estimation: *estimationInfo(r.current)})
	r.log.Info("estimate accepted", "estimation", r.current.ID)

	r.current = nil
	r.votes.clear()
	return nil
}

func (r *Room) revote(ctx context.Context, from string) error {
	if from != r.host {
		return hostOnlyError{action: "trigger a re-vote"}
	}
	if r.current == nil {
		return ErrNoActiveRound
	}

	if err := r.store.ResetEstimation(ctx, r.current.ID); err != nil {
		return r.storageError("reset estimation", err)
	}
	r.votes.clear()
	r.current.Status = models.StatusVoting

	r.broadcast(VotingStarted{Estimation: *estimationInfo(r.current)})
	return nil
}

func (r *Room) kick(from string, cmd Kick) error {
	if from != r.host {
		return hostOnlyError{action: "kick"}
	}
	if cmd.Participant == from {
		return ErrCannotKickSelf
	}

	target := r.find(cmd.Participant)
	if target == nil {
		return fmt.Errorf("%w: %s is not in the room", ErrInvalidInput, cmd.Participant)
	}

	// The closed connection comes back through Leave.
	target.kicked = true
	r.sendTo(target.conn, Kicked{})
	if err := target.conn.Close(); err != nil {
		r.log.Warn("failed to close kicked connection", "error", err)
	}
	r.log.Info("participant kicked", "participant", utils.SanitizeLogString(cmd.Participant))
	return nil
}

// changeScale keeps votes already cast, even those outside the new scale.
func (r *Room) changeScale(ctx context.Context, from string, cmd ChangeScale) error {
	if from != r.host {
		return hostOnlyError{action: "change scale"}
	}

	scaleType := scales.NormalizeType(cmd.ScaleType)
	var custom []string
	if scaleType == scales.Custom {
		custom = cmd.CustomScale
		if custom == nil {
			custom = []string{}
		}
	}

	if err := r.store.UpdateRoomScale(ctx, r.id, scaleType, custom); err != nil {
		return r.storageError("update scale", err)
	}
	r.meta.ScaleType = scaleType
	r.meta.SetCustomTokens(custom)
	r.scale = scales.Resolve(scaleType, custom)

	r.broadcast(ScaleChanged{Scale: r.scale, ScaleType: scaleType})
	return nil
}

func (r *Room) storageError(op string, err error) error {
	r.log.Error("storage failure", "op", op, "error", err)
	return ErrStorage
}

func (r *Room) find(name string) *participant {
	for _, p := range r.participants {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (r *Room) isConnected(name string, connID uuid.UUID) bool {
	p := r.find(name)
	return p != nil && !p.kicked && p.conn.ID() == connID
}

func (r *Room) participantList() []ParticipantInfo {
	list := make([]ParticipantInfo, len(r.participants))
	for i, p := range r.participants {
		list[i] = ParticipantInfo{
			Name:     p.name,
			IsHost:   p.name == r.host,
			HasVoted: r.votes.has(p.name),
		}
	}
	return list
}

func (r *Room) summary() Summary {
	return Summary{
		ID:                r.id,
		Active:            len(r.participants) > 0,
		Host:              r.host,
		Participants:      r.participantList(),
		CurrentEstimation: estimationInfo(r.current),
	}
}

func (r *Room) broadcast(event Event) {
	r.broadcastExcept("", event)
}

func (r *Room) broadcastExcept(skip string, event Event) {
	for _, p := range r.participants {
		if p.name != skip {
			r.sendTo(p.conn, event)
		}
	}
}

func (r *Room) sendTo(conn Conn, event Event) {
	if err := conn.Send(event); err != nil {
		r.log.Warn("dropped event", "type", event.EventType(), "conn", conn.ID(), "error", err)
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
