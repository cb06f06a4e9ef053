package domain

import "time"

// RoomStatus is the lifecycle phase of a battle room. Transitions only move forward.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomCountdown  RoomStatus = "countdown"
	RoomInProgress RoomStatus = "in_progress"
	RoomFinished   RoomStatus = "finished"
	RoomInvalid    RoomStatus = "invalid"
)

// Terminal reports whether the room can no longer change phase.
func (s RoomStatus) Terminal() bool {
	return s == RoomFinished || s == RoomInvalid
}

// TimeLimitType selects the per-question time budget for a room.
type TimeLimitType string

const (
	TimeLimitFast        TimeLimitType = "fast"
	TimeLimitRecommended TimeLimitType = "recommended"
	TimeLimitRelaxed     TimeLimitType = "relaxed"
)

// Valid reports whether the value is one of the fixed set.
func (t TimeLimitType) Valid() bool {
	switch t {
	case TimeLimitFast, TimeLimitRecommended, TimeLimitRelaxed:
		return true
	}
	return false
}

// QuestionBudget maps the time limit class to its fixed per-question budget.
func (t TimeLimitType) QuestionBudget() time.Duration {
	switch t {
	case TimeLimitFast:
		return 10 * time.Second
	case TimeLimitRelaxed:
		return 30 * time.Second
	default:
		return 20 * time.Second
	}
}

// AllowedMaxPlayers is the fixed set of room capacities.
var AllowedMaxPlayers = []int{2, 3, 4, 5, 6}

// ValidMaxPlayers reports whether n is an allowed room capacity.
func ValidMaxPlayers(n int) bool {
	for _, allowed := range AllowedMaxPlayers {
		if n == allowed {
			return true
		}
	}
	return false
}

// RoomSettings is the host-mutable room configuration. Every field has an
// enumerated domain; out-of-domain values are rejected wholesale.
type RoomSettings struct {
	FieldSlug     string        `json:"fieldSlug"`
	MaxPlayers    int           `json:"maxPlayers"`
	TimeLimitType TimeLimitType `json:"timeLimitType"`
}

// Validate checks every setting against its allowed set.
func (s RoomSettings) Validate() error {
	if s.FieldSlug == "" || !ValidMaxPlayers(s.MaxPlayers) || !s.TimeLimitType.Valid() {
		return ErrInvalidSettings
	}
	return nil
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	FieldSlug     *string        `json:"fieldSlug,omitempty"`
	MaxPlayers    *int           `json:"maxPlayers,omitempty"`
	TimeLimitType *TimeLimitType `json:"timeLimitType,omitempty"`
}

// QuestionType distinguishes scoring semantics per question.
type QuestionType string

const (
	QuestionChoice   QuestionType = "choice"
	QuestionMatching QuestionType = "matching"
)

// Option is a selectable answer for a choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MatchPair is one left/right association in a matching question.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// QuizQuestion is the full question record including the answer key. The key
// and explanation never leave the server before the index closes.
type QuizQuestion struct {
	ID             string       `json:"id"`
	FieldSlug      string       `json:"fieldSlug"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Options        []Option     `json:"options,omitempty"`
	LeftItems      []string     `json:"leftItems,omitempty"`
	RightItems     []string     `json:"rightItems,omitempty"`
	AnswerOptionID string       `json:"answerOptionId,omitempty"`
	AnswerPairs    []MatchPair  `json:"answerPairs,omitempty"`
	Explanation    string       `json:"explanation,omitempty"`
}

// QuestionView is the public projection of a question: no key, no explanation.
type QuestionView struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"type"`
	Prompt     string       `json:"prompt"`
	Options    []Option     `json:"options,omitempty"`
	LeftItems  []string     `json:"leftItems,omitempty"`
	RightItems []string     `json:"rightItems,omitempty"`
}

// Public strips the answer key and explanation for broadcast.
func (q QuizQuestion) Public() QuestionView {
	return QuestionView{
		ID:         q.ID,
		Type:       q.Type,
		Prompt:     q.Prompt,
		Options:    q.Options,
		LeftItems:  q.LeftItems,
		RightItems: q.RightItems,
	}
}

// RawAnswer is a client submission before scoring.
type RawAnswer struct {
	OptionID string      `json:"optionId,omitempty"`
	Pairs    []MatchPair `json:"pairs,omitempty"`
}

// Answer is the immutable per-index record kept for each participant.
type Answer struct {
	QuizIndex   int       `json:"quizIndex"`
	SubmittedAt time.Time `json:"submittedAt"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Raw         RawAnswer `json:"raw"`
	IsCorrect   bool      `json:"isCorrect"`
	ScoreDelta  int       `json:"scoreDelta"`
	TimedOut    bool      `json:"timedOut"`
}

// ParticipantView is the roster entry broadcast in snapshots.
type ParticipantView struct {
	ParticipantID string    `json:"participantId"`
	UserID        string    `json:"userId,omitempty"`
	DisplayName   string    `json:"displayName"`
	IsHost        bool      `json:"isHost"`
	IsConnected   bool      `json:"isConnected"`
	Score         int       `json:"score"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// RankedParticipant is one row of the ordered scoreboard. Equal scores share a
// rank; the next distinct score skips past the tie (1, 1, 3).
type RankedParticipant struct {
	ParticipantID  string `json:"participantId"`
	DisplayName    string `json:"displayName"`
	Rank           int    `json:"rank"`
	Score          int    `json:"score"`
	TotalElapsedMs int64  `json:"totalElapsedMs"`
}

// RoomSnapshot is the broadcast projection of room state. At most one of the
// EndsAt fields is set, matching the current phase; clients derive countdowns
// by comparing it against their own wall clock.
type RoomSnapshot struct {
	RoomID           string              `json:"roomId"`
	InviteToken      string              `json:"inviteToken"`
	Status           RoomStatus          `json:"status"`
	Settings         RoomSettings        `json:"settings"`
	Participants     []ParticipantView   `json:"participants"`
	CurrentQuizIndex int                 `json:"currentQuizIndex"`
	TotalQuestions   int                 `json:"totalQuestions"`
	Question         *QuestionView       `json:"question,omitempty"`
	CountdownEndsAt  *time.Time          `json:"countdownEndsAt,omitempty"`
	QuizEndsAt       *time.Time          `json:"quizEndsAt,omitempty"`
	ResultEndsAt     *time.Time          `json:"resultEndsAt,omitempty"`
	Rankings         []RankedParticipant `json:"rankings"`
}

// ParticipantResult is one participant's outcome for a closed index,
// broadcast as part of the reveal.
type ParticipantResult struct {
	ParticipantID string `json:"participantId"`
	IsCorrect     bool   `json:"isCorrect"`
	ScoreDelta    int    `json:"scoreDelta"`
	Score         int    `json:"score"`
}

// RevealEvent publishes the solution for a closed index to the whole room.
type RevealEvent struct {
	QuizIndex      int                 `json:"quizIndex"`
	AnswerOptionID string              `json:"answerOptionId,omitempty"`
	AnswerPairs    []MatchPair         `json:"answerPairs,omitempty"`
	Explanation    string              `json:"explanation,omitempty"`
	Results        []ParticipantResult `json:"results"`
	Rankings       []RankedParticipant `json:"rankings"`
}

// AnswerReceipt is the private post-close result sent only to its owner.
type AnswerReceipt struct {
	QuizIndex   int    `json:"quizIndex"`
	IsCorrect   bool   `json:"isCorrect"`
	ScoreDelta  int    `json:"scoreDelta"`
	TotalScore  int    `json:"totalScore"`
	Explanation string `json:"explanation,omitempty"`
}

// ParticipantReward pairs a final rank with the reward owed for it.
type ParticipantReward struct {
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId,omitempty"`
	Rank          int    `json:"rank"`
	RewardType    string `json:"rewardType"`
	Amount        int    `json:"amount"`
}

// FinalResult is the terminal payload carrying the final ranking and rewards.
type FinalResult struct {
	RoomID   string              `json:"roomId"`
	Rankings []RankedParticipant `json:"rankings"`
	Rewards  []ParticipantReward `json:"rewards"`
}

// EventType labels server-to-client events.
type EventType string

const (
	EventSnapshot       EventType = "snapshot"
	EventReveal         EventType = "reveal"
	EventFinished       EventType = "finished"
	EventAborted        EventType = "aborted"
	EventAnswerAccepted EventType = "answerAccepted"
	EventAnswerResult   EventType = "answerResult"
)

// ServerEvent is the envelope delivered to subscribed connections. Exactly one
// payload field is set for a given type.
type ServerEvent struct {
	Type     EventType      `json:"type"`
	Snapshot *RoomSnapshot  `json:"snapshot,omitempty"`
	Reveal   *RevealEvent   `json:"reveal,omitempty"`
	Receipt  *AnswerReceipt `json:"receipt,omitempty"`
	Result   *FinalResult   `json:"result,omitempty"`
}
