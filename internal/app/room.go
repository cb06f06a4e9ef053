package app

import (
	"sync"
	"time"

	"battle-room-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimingConfig holds the phase durations for a room. Budgets overrides the
// per-question budget for a time limit class; unset classes fall back to the
// fixed defaults on the enum.
type TimingConfig struct {
	Countdown  time.Duration
	Retention  time.Duration
	WaitingTTL time.Duration
	Questions  int
	Budgets    map[domain.TimeLimitType]time.Duration
}

// DefaultTimingConfig matches the production pacing.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		Countdown:  5 * time.Second,
		Retention:  2 * time.Minute,
		WaitingTTL: 30 * time.Minute,
		Questions:  5,
	}
}

func (c TimingConfig) budgetFor(t domain.TimeLimitType) time.Duration {
	if d, ok := c.Budgets[t]; ok && d > 0 {
		return d
	}
	return t.QuestionBudget()
}

// JoinInfo identifies the connecting user. UserID is empty for guests.
type JoinInfo struct {
	UserID      string
	DisplayName string
}

type participantState struct {
	id          string
	userID      string
	displayName string
	isHost      bool
	isConnected bool
	score       int
	answers     map[int]*domain.Answer
	joinedAt    time.Time
	leftAt      time.Time
}

// totalElapsedMs is the cumulative answer latency over actually-answered
// questions; timed-out entries do not count as answers.
func (p *participantState) totalElapsedMs() int64 {
	var total int64
	for _, a := range p.answers {
		if !a.TimedOut {
			total += a.ElapsedMs
		}
	}
	return total
}

// Room is one isolated battle session. Every mutation, including timer
// callbacks, runs under the room mutex, so state transitions are strictly
// serialized and the status only ever moves forward.
type Room struct {
	ID          string
	InviteToken string
	CreatedAt   time.Time

	timing   TimingConfig
	scoring  ScoringConfig
	rewards  RewardTable
	now      func() time.Time
	logger   *zap.Logger
	onFinish func(domain.FinalResult)

	mu               sync.Mutex
	status           domain.RoomStatus
	settings         domain.RoomSettings
	participants     []*participantState
	sequence         []domain.QuizQuestion
	currentIndex     int
	questionOpenedAt time.Time
	countdownEndsAt  time.Time
	quizEndsAt       time.Time
	resultEndsAt     time.Time
	finishedAt       time.Time
	timerGen         uint64
	timer            *time.Timer
	subscribers      map[string]chan domain.ServerEvent
	settled          bool
}

func newRoom(id, inviteToken string, settings domain.RoomSettings, timing TimingConfig, scoring ScoringConfig, rewards RewardTable, logger *zap.Logger, now func() time.Time, onFinish func(domain.FinalResult)) *Room {
	return &Room{
		ID:          id,
		InviteToken: inviteToken,
		CreatedAt:   now(),
		timing:      timing,
		scoring:     scoring,
		rewards:     rewards,
		now:         now,
		logger:      logger,
		onFinish:    onFinish,
		status:      domain.RoomWaiting,
		settings:    settings,
		subscribers: make(map[string]chan domain.ServerEvent),
	}
}

// Join admits a participant while the room is waiting. The first joiner is the
// creator and becomes host. The outbox receives all events for this
// participant until they leave or the room is removed.
func (r *Room) Join(info JoinInfo, outbox chan domain.ServerEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.RoomWaiting {
		return "", domain.ErrRoomNotJoinable
	}
	if len(r.participants) >= r.settings.MaxPlayers {
		return "", domain.ErrRoomFull
	}

	p := &participantState{
		id:          uuid.NewString(),
		userID:      info.UserID,
		displayName: info.DisplayName,
		isHost:      len(r.participants) == 0,
		isConnected: true,
		answers:     make(map[int]*domain.Answer),
		joinedAt:    r.now(),
	}
	r.participants = append(r.participants, p)
	r.subscribers[p.id] = outbox
	r.broadcastSnapshotLocked()
	return p.id, nil
}

// Resume re-attaches a disconnected participant to a live room. Score and
// answers are never reset.
func (r *Room) Resume(participantID string, outbox chan domain.ServerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return domain.ErrRoomNotJoinable
	}
	p := r.findLocked(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if old, ok := r.subscribers[participantID]; ok {
		close(old)
	}
	p.isConnected = true
	p.leftAt = time.Time{}
	r.subscribers[participantID] = outbox
	r.broadcastSnapshotLocked()
	return nil
}

// UpdateSettings applies a host-issued partial settings change while waiting.
// Invalid values reject the whole patch; nothing is partially applied.
func (r *Room) UpdateSettings(participantID string, patch domain.SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.RoomWaiting {
		return domain.ErrRoomNotWaiting
	}
	p := r.findLocked(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if !p.isHost {
		return domain.ErrNotHost
	}

	next := r.settings
	if patch.FieldSlug != nil {
		next.FieldSlug = *patch.FieldSlug
	}
	if patch.MaxPlayers != nil {
		next.MaxPlayers = *patch.MaxPlayers
	}
	if patch.TimeLimitType != nil {
		next.TimeLimitType = *patch.TimeLimitType
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if next.MaxPlayers < len(r.participants) {
		return domain.ErrInvalidSettings
	}
	r.settings = next
	r.broadcastSnapshotLocked()
	return nil
}

// EnsureStartable validates the start preconditions without mutating state, so
// the caller can fetch questions before committing the transition.
func (r *Room) EnsureStartable(participantID string) (domain.RoomSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.startableLocked(participantID); err != nil {
		return domain.RoomSettings{}, err
	}
	return r.settings, nil
}

func (r *Room) startableLocked(participantID string) error {
	if r.status != domain.RoomWaiting {
		return domain.ErrRoomNotWaiting
	}
	p := r.findLocked(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if !p.isHost {
		return domain.ErrNotHost
	}
	if r.connectedCountLocked() < 2 {
		return domain.ErrNotEnoughPlayers
	}
	return nil
}

// Start freezes the question sequence and moves the room into countdown.
func (r *Room) Start(participantID string, sequence []domain.QuizQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.startableLocked(participantID); err != nil {
		return err
	}
	if len(sequence) == 0 {
		return domain.ErrInsufficientContent
	}

	r.status = domain.RoomCountdown
	r.sequence = sequence
	r.countdownEndsAt = r.now().Add(r.timing.Countdown)
	r.scheduleLocked(r.timing.Countdown, r.countdownExpired)
	r.broadcastSnapshotLocked()
	return nil
}

func (r *Room) countdownExpired(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen || r.status != domain.RoomCountdown {
		return
	}
	r.status = domain.RoomInProgress
	r.countdownEndsAt = time.Time{}
	r.currentIndex = 0
	r.openQuestionLocked()
}

func (r *Room) openQuestionLocked() {
	budget := r.timing.budgetFor(r.settings.TimeLimitType)
	r.questionOpenedAt = r.now()
	r.quizEndsAt = r.questionOpenedAt.Add(budget)
	r.scheduleLocked(budget, r.questionDeadline)
	r.broadcastSnapshotLocked()
}

func (r *Room) questionDeadline(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen || r.status != domain.RoomInProgress {
		return
	}
	r.closeIndexLocked()
}

// SubmitAnswer scores a submission for the open index. The per-index record is
// written exactly once; wrong-index and repeat submissions are rejected.
func (r *Room) SubmitAnswer(participantID string, quizIndex int, raw domain.RawAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.RoomInProgress {
		return domain.ErrBattleNotRunning
	}
	if quizIndex != r.currentIndex {
		return domain.ErrStaleSubmission
	}
	p := r.findLocked(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if _, done := p.answers[quizIndex]; done {
		return domain.ErrDuplicateSubmission
	}

	now := r.now()
	elapsed := now.Sub(r.questionOpenedAt)
	budget := r.timing.budgetFor(r.settings.TimeLimitType)
	correct, delta := r.scoring.Score(r.sequence[quizIndex], raw, elapsed, budget)

	// The delta is recorded here but applied to the score only when the index
	// closes, so a snapshot sent while the index is open cannot reveal who
	// already answered or how.
	p.answers[quizIndex] = &domain.Answer{
		QuizIndex:   quizIndex,
		SubmittedAt: now,
		ElapsedMs:   elapsed.Milliseconds(),
		Raw:         raw,
		IsCorrect:   correct,
		ScoreDelta:  delta,
	}

	// The ack carries no correctness; results stay private until the index closes.
	r.notifyLocked(participantID, domain.ServerEvent{
		Type:    domain.EventAnswerAccepted,
		Receipt: &domain.AnswerReceipt{QuizIndex: quizIndex},
	})

	if r.allConnectedAnsweredLocked() {
		r.closeIndexLocked()
	}
	return nil
}

func (r *Room) allConnectedAnsweredLocked() bool {
	for _, p := range r.participants {
		if !p.isConnected {
			continue
		}
		if _, ok := p.answers[r.currentIndex]; !ok {
			return false
		}
	}
	return true
}

// closeIndexLocked settles the open index: fills timeout entries for connected
// participants that never answered, applies the recorded score deltas, reveals
// the solution to the room, delivers private receipts, and either opens the
// next index or finishes the battle.
func (r *Room) closeIndexLocked() {
	r.cancelTimerLocked()

	idx := r.currentIndex
	q := r.sequence[idx]
	budget := r.timing.budgetFor(r.settings.TimeLimitType)
	now := r.now()

	for _, p := range r.participants {
		if _, ok := p.answers[idx]; ok || !p.isConnected {
			continue
		}
		p.answers[idx] = &domain.Answer{
			QuizIndex:   idx,
			SubmittedAt: now,
			ElapsedMs:   budget.Milliseconds(),
			IsCorrect:   false,
			ScoreDelta:  r.scoring.PenaltyDelta,
			TimedOut:    true,
		}
	}

	for _, p := range r.participants {
		if a, ok := p.answers[idx]; ok {
			p.score += a.ScoreDelta
		}
	}

	reveal := domain.RevealEvent{
		QuizIndex:      idx,
		AnswerOptionID: q.AnswerOptionID,
		AnswerPairs:    q.AnswerPairs,
		Explanation:    q.Explanation,
		Rankings:       rankParticipants(r.participants),
	}
	for _, p := range r.participants {
		if a, ok := p.answers[idx]; ok {
			reveal.Results = append(reveal.Results, domain.ParticipantResult{
				ParticipantID: p.id,
				IsCorrect:     a.IsCorrect,
				ScoreDelta:    a.ScoreDelta,
				Score:         p.score,
			})
		}
	}
	r.broadcastLocked(domain.ServerEvent{Type: domain.EventReveal, Reveal: &reveal})

	for _, p := range r.participants {
		a, ok := p.answers[idx]
		if !ok {
			continue
		}
		r.notifyLocked(p.id, domain.ServerEvent{
			Type: domain.EventAnswerResult,
			Receipt: &domain.AnswerReceipt{
				QuizIndex:   idx,
				IsCorrect:   a.IsCorrect,
				ScoreDelta:  a.ScoreDelta,
				TotalScore:  p.score,
				Explanation: q.Explanation,
			},
		})
	}

	r.currentIndex++
	if r.currentIndex >= len(r.sequence) {
		r.finishLocked()
		return
	}
	r.openQuestionLocked()
}

func (r *Room) finishLocked() {
	r.status = domain.RoomFinished
	r.quizEndsAt = time.Time{}
	r.finishedAt = r.now()
	r.resultEndsAt = r.finishedAt.Add(r.timing.Retention)

	rankings := rankParticipants(r.participants)
	final := domain.FinalResult{
		RoomID:   r.ID,
		Rankings: rankings,
		Rewards:  make([]domain.ParticipantReward, 0, len(rankings)),
	}
	for _, entry := range rankings {
		p := r.findLocked(entry.ParticipantID)
		final.Rewards = append(final.Rewards, domain.ParticipantReward{
			ParticipantID: entry.ParticipantID,
			UserID:        p.userID,
			Rank:          entry.Rank,
			RewardType:    r.rewards.RewardType,
			Amount:        r.rewards.AmountFor(entry.Rank),
		})
	}

	r.broadcastLocked(domain.ServerEvent{Type: domain.EventFinished, Result: &final})
	r.broadcastSnapshotLocked()

	if !r.settled && r.onFinish != nil {
		r.settled = true
		go r.onFinish(final)
	}
	r.logger.Info("battle finished", zap.String("roomId", r.ID), zap.Int("participants", len(r.participants)))
}

// Leave handles an explicit leave command.
func (r *Room) Leave(participantID string) error {
	return r.drop(participantID, true)
}

// Disconnect handles a channel-observed drop. The participant keeps their
// roster slot and may resume while the room is alive.
func (r *Room) Disconnect(participantID string) {
	_ = r.drop(participantID, false)
}

func (r *Room) drop(participantID string, explicit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	r.unsubscribeLocked(participantID)
	p.isConnected = false
	if explicit {
		p.leftAt = r.now()
	}

	switch r.status {
	case domain.RoomWaiting:
		if p.isHost {
			r.abortLocked()
			return nil
		}
		r.removeFromRosterLocked(participantID)
		r.broadcastSnapshotLocked()
	case domain.RoomCountdown:
		if p.isHost {
			r.abortLocked()
			return nil
		}
		r.broadcastSnapshotLocked()
	case domain.RoomInProgress:
		// The battle continues without the host; privileges stay vacant.
		if r.connectedCountLocked() == 0 {
			// Nobody left to answer; count what was already submitted for the
			// open index and settle.
			r.cancelTimerLocked()
			for _, q := range r.participants {
				if a, ok := q.answers[r.currentIndex]; ok {
					q.score += a.ScoreDelta
				}
			}
			r.finishLocked()
			return nil
		}
		if r.allConnectedAnsweredLocked() {
			r.closeIndexLocked()
			return nil
		}
		r.broadcastSnapshotLocked()
	}
	return nil
}

// abortLocked invalidates a room that lost its host before the battle started.
func (r *Room) abortLocked() {
	r.cancelTimerLocked()
	r.status = domain.RoomInvalid
	r.countdownEndsAt = time.Time{}
	r.finishedAt = r.now()
	snap := r.snapshotLocked()
	r.broadcastLocked(domain.ServerEvent{Type: domain.EventAborted, Snapshot: &snap})
	r.logger.Info("room invalidated", zap.String("roomId", r.ID))
}

// ShouldRemove reports whether the sweep may garbage-collect the room. A room
// idle in waiting past its TTL is invalidated first and collected on a later
// sweep once the retention window passes.
func (r *Room) ShouldRemove(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return now.After(r.finishedAt.Add(r.timing.Retention))
	}
	if r.status == domain.RoomWaiting && now.After(r.CreatedAt.Add(r.timing.WaitingTTL)) {
		r.abortLocked()
	}
	return false
}

// Close releases all subscriptions and timers; called when the registry
// removes the room.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked()
	for id := range r.subscribers {
		r.unsubscribeLocked(id)
	}
}

// Snapshot returns the public projection of current room state.
func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) findLocked(participantID string) *participantState {
	for _, p := range r.participants {
		if p.id == participantID {
			return p
		}
	}
	return nil
}

func (r *Room) connectedCountLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.isConnected {
			n++
		}
	}
	return n
}

func (r *Room) removeFromRosterLocked(participantID string) {
	for i, p := range r.participants {
		if p.id == participantID {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return
		}
	}
}

func (r *Room) scheduleLocked(d time.Duration, fn func(gen uint64)) {
	r.timerGen++
	gen := r.timerGen
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, func() { fn(gen) })
}

// cancelTimerLocked bumps the generation so an already-fired callback that is
// waiting on the mutex becomes a no-op.
func (r *Room) cancelTimerLocked() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) unsubscribeLocked(participantID string) {
	if ch, ok := r.subscribers[participantID]; ok {
		delete(r.subscribers, participantID)
		close(ch)
	}
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		RoomID:           r.ID,
		InviteToken:      r.InviteToken,
		Status:           r.status,
		Settings:         r.settings,
		CurrentQuizIndex: r.currentIndex,
		TotalQuestions:   len(r.sequence),
		Rankings:         rankParticipants(r.participants),
	}
	for _, p := range r.participants {
		snap.Participants = append(snap.Participants, domain.ParticipantView{
			ParticipantID: p.id,
			UserID:        p.userID,
			DisplayName:   p.displayName,
			IsHost:        p.isHost,
			IsConnected:   p.isConnected,
			Score:         p.score,
			JoinedAt:      p.joinedAt,
		})
	}
	if !r.countdownEndsAt.IsZero() {
		t := r.countdownEndsAt
		snap.CountdownEndsAt = &t
	}
	if !r.quizEndsAt.IsZero() && r.status == domain.RoomInProgress {
		t := r.quizEndsAt
		snap.QuizEndsAt = &t
	}
	if !r.resultEndsAt.IsZero() {
		t := r.resultEndsAt
		snap.ResultEndsAt = &t
	}
	if r.status == domain.RoomInProgress && r.currentIndex < len(r.sequence) {
		view := r.sequence[r.currentIndex].Public()
		snap.Question = &view
	}
	return snap
}

func (r *Room) broadcastSnapshotLocked() {
	snap := r.snapshotLocked()
	r.broadcastLocked(domain.ServerEvent{Type: domain.EventSnapshot, Snapshot: &snap})
}

// broadcastLocked fans the event out to every subscribed participant. A full
// outbox sheds its oldest entry so one slow client cannot stall the room.
func (r *Room) broadcastLocked(ev domain.ServerEvent) {
	for _, ch := range r.subscribers {
		sendOrShed(ch, ev)
	}
}

// notifyLocked delivers a participant-scoped event to one subscriber only.
func (r *Room) notifyLocked(participantID string, ev domain.ServerEvent) {
	if ch, ok := r.subscribers[participantID]; ok {
		sendOrShed(ch, ev)
	}
}

func sendOrShed(ch chan domain.ServerEvent, ev domain.ServerEvent) {
	select {
	case ch <- ev:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
