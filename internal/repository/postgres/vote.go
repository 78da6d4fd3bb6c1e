package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// targetSQL maps a target type to fixed table and column names.
func targetSQL(t model.TargetType) (table, column string, err error) {
	switch t {
	case model.TargetQuestion:
		return "questions", "question_id", nil
	case model.TargetComment:
		return "comments", "comment_id", nil
	default:
		return "", "", apperror.ValidationFailed("target", fmt.Sprintf("unknown vote target %q", t))
	}
}

func (db *DB) GetVote(ctx context.Context, userID string, target model.Target) (*model.Vote, error) {
	_, column, err := targetSQL(target.Type)
	if err != nil {
		return nil, err
	}

	v := model.Vote{Target: target}
	var voteType string
	err = db.pool.QueryRow(ctx,
		`SELECT id, user_id, vote_type, created_at
		 FROM votes
		 WHERE user_id = $1 AND `+column+` = $2`,
		userID, target.ID,
	).Scan(&v.ID, &v.UserID, &voteType, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: getting vote of %s on %s %s: %w", userID, target.Type, target.ID, err)
	}
	v.Type = model.VoteType(voteType)
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (db *DB) ListVotesForUser(ctx context.Context, userID string, targetType model.TargetType, targetIDs []string) (map[string]model.VoteType, error) {
	_, column, err := targetSQL(targetType)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]model.VoteType)
	if len(targetIDs) == 0 {
		return votes, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+column+`, vote_type
		 FROM votes
		 WHERE user_id = $1 AND `+column+` = ANY($2)`,
		userID, targetIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing votes of %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, voteType string
		if err := rows.Scan(&id, &voteType); err != nil {
			return nil, fmt.Errorf("postgres: scanning vote row: %w", err)
		}
		votes[id] = model.VoteType(voteType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating vote rows: %w", err)
	}
	return votes, nil
}

// AdjustVoteCount increments the aggregate inside PostgreSQL. The UPDATE
// takes a row lock, so concurrent adjustments serialize instead of losing
// updates.
func (db *DB) AdjustVoteCount(ctx context.Context, target model.Target, delta int) (int, error) {
	return adjustVoteCount(ctx, db.pool, target, delta)
}

func adjustVoteCount(ctx context.Context, q queryer, target model.Target, delta int) (int, error) {
	table, _, err := targetSQL(target.Type)
	if err != nil {
		return 0, err
	}

	var votes int
	err = q.QueryRow(ctx,
		`UPDATE `+table+` SET votes = votes + $1 WHERE id = $2 RETURNING votes`,
		delta, target.ID,
	).Scan(&votes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NotFound(string(target.Type), target.ID)
		}
		return 0, fmt.Errorf("postgres: adjusting votes of %s %s: %w", target.Type, target.ID, err)
	}
	return votes, nil
}

// ApplyVote runs the aggregate update and the ledger compare-and-swap in one
// transaction. The aggregate UPDATE comes first: its row lock serializes
// every vote on the same target for the rest of the transaction.
func (db *DB) ApplyVote(ctx context.Context, change repository.VoteChange) (int, error) {
	_, column, err := targetSQL(change.Target.Type)
	if err != nil {
		return 0, err
	}

	var votes int
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		votes, err = adjustVoteCount(ctx, tx, change.Target, change.Delta)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var tag pgconn.CommandTag
		switch {
		case change.Prior == "" && change.Next == "":
			return nil

		case change.Prior == "":
			tag, err = tx.Exec(ctx,
				`INSERT INTO votes (id, user_id, `+column+`, vote_type, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $5)
				 ON CONFLICT DO NOTHING`,
				xid.New().String(), change.UserID, change.Target.ID, string(change.Next), now,
			)

		case change.Next == "":
			tag, err = tx.Exec(ctx,
				`DELETE FROM votes
				 WHERE user_id = $1 AND `+column+` = $2 AND vote_type = $3`,
				change.UserID, change.Target.ID, string(change.Prior),
			)

		default:
			tag, err = tx.Exec(ctx,
				`UPDATE votes SET vote_type = $1, updated_at = $2
				 WHERE user_id = $3 AND `+column+` = $4 AND vote_type = $5`,
				string(change.Next), now, change.UserID, change.Target.ID, string(change.Prior),
			)
		}
		if err != nil {
			if pgCode(err) == codeUniqueViolation {
				return apperror.Conflict("vote", change.Target.ID)
			}
			return fmt.Errorf("postgres: writing vote of %s on %s %s: %w",
				change.UserID, change.Target.Type, change.Target.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.Conflict("vote", change.Target.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return votes, nil
}
