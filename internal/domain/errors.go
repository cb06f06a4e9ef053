package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room id or invite token resolves to nothing.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed the room's max players.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomNotJoinable is returned when joining a room that already left the waiting phase.
	ErrRoomNotJoinable = errors.New("room is not joinable")
	// ErrNotHost is returned when a non-host issues a host-only command.
	ErrNotHost = errors.New("participant is not the host")
	// ErrRoomNotWaiting is returned for commands that require the waiting phase.
	ErrRoomNotWaiting = errors.New("room is not in waiting phase")
	// ErrNotEnoughPlayers is returned when a start is attempted with fewer than two connected participants.
	ErrNotEnoughPlayers = errors.New("not enough connected players to start")
	// ErrBattleNotRunning is returned for submissions outside the in-progress phase.
	ErrBattleNotRunning = errors.New("battle is not in progress")
	// ErrStaleSubmission is returned for a submission targeting any index other than the open one.
	ErrStaleSubmission = errors.New("submission targets a closed or future question")
	// ErrDuplicateSubmission is returned when a participant already answered the open index.
	ErrDuplicateSubmission = errors.New("answer already submitted for this question")
	// ErrInsufficientContent indicates the catalog could not supply enough questions.
	ErrInsufficientContent = errors.New("not enough questions for the chosen field")
	// ErrInvalidSettings is returned when a settings value is outside its allowed set.
	ErrInvalidSettings = errors.New("invalid room settings")
	// ErrParticipantNotFound is returned when a command references an unknown participant.
	ErrParticipantNotFound = errors.New("participant not found in room")
)
