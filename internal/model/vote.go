package model

import "time"

// VoteType is the direction of a vote. The empty VoteType means "no vote".
type VoteType string

const (
	VoteUp   VoteType = "UP"
	VoteDown VoteType = "DOWN"
)

// ParseVoteType accepts exactly "UP" or "DOWN". The second result is false
// for anything else, including other spellings such as "up".
func ParseVoteType(s string) (VoteType, bool) {
	switch VoteType(s) {
	case VoteUp:
		return VoteUp, true
	case VoteDown:
		return VoteDown, true
	default:
		return "", false
	}
}

// Delta is the contribution of a single vote of this type to an aggregate.
func (v VoteType) Delta() int {
	switch v {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	default:
		return 0
	}
}

// TargetType names what a vote points at.
type TargetType string

const (
	TargetQuestion TargetType = "question"
	TargetComment  TargetType = "comment"
)

// Target identifies a votable entity.
type Target struct {
	Type TargetType
	ID   string
}

func QuestionTarget(id string) Target { return Target{Type: TargetQuestion, ID: id} }
func CommentTarget(id string) Target  { return Target{Type: TargetComment, ID: id} }

// Vote is one row of the vote ledger. There is at most one Vote per
// (UserID, Target).
type Vote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Target    Target    `json:"-"`
	Type      VoteType  `json:"voteType"`
	CreatedAt time.Time `json:"createdAt"`
}
