package model

import "time"

// Question is a forum post. Tags keep insertion order and never contain
// duplicates; Votes is the aggregate of the vote ledger and only ever changes
// through atomic increments.
type Question struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	AuthorID     string    `json:"authorId"`
	Author       Author    `json:"author"`
	CreatedAt    time.Time `json:"createdAt"`
	Votes        int       `json:"votes"`
	CommentCount int       `json:"commentCount"`

	// UserVote is the caller's own vote, filled only for authenticated reads.
	UserVote VoteType `json:"userVote,omitempty"`
}

// Comment belongs to exactly one Question. QuestionID never changes after
// creation.
type Comment struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	QuestionID string    `json:"questionId"`
	Author     Author    `json:"author"`
	CreatedAt  time.Time `json:"createdAt"`
	Votes      int       `json:"votes"`

	UserVote VoteType `json:"userVote,omitempty"`
}

// QuestionDetail is the full snapshot returned by single-question reads and
// by every comment mutation: the question plus its comments, oldest first.
type QuestionDetail struct {
	Question
	Comments []Comment `json:"comments"`
}
