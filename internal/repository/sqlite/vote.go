package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// targetSQL maps a vote target to its aggregate table and its ledger column.
// The names come from this switch only, never from input, so splicing them
// into SQL text is safe.
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

// GetVote returns the user's ledger row for target, or (nil, nil).
func (db *DB) GetVote(ctx context.Context, userID string, target model.Target) (*model.Vote, error) {
	_, column, err := targetSQL(target.Type)
	if err != nil {
		return nil, err
	}

	v := model.Vote{Target: target}
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, vote_type, created_at
		 FROM votes
		 WHERE user_id = ? AND `+column+` = ?`,
		userID, target.ID,
	).Scan(&v.ID, &v.UserID, &v.Type, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting vote of %s on %s %s: %w", userID, target.Type, target.ID, err)
	}
	return &v, nil
}

// ListVotesForUser is the batch form of GetVote used to decorate listings.
// Ids are looked up maxBatch at a time.
func (db *DB) ListVotesForUser(ctx context.Context, userID string, targetType model.TargetType, targetIDs []string) (map[string]model.VoteType, error) {
	_, column, err := targetSQL(targetType)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]model.VoteType)
	for _, batch := range batches(targetIDs, maxBatch) {
		if err := db.listVoteBatch(ctx, userID, column, batch, votes); err != nil {
			return nil, err
		}
	}
	return votes, nil
}

func (db *DB) listVoteBatch(ctx context.Context, userID, column string, ids []string, votes map[string]model.VoteType) error {
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+column+`, vote_type
		 FROM votes
		 WHERE user_id = ? AND `+column+` IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: listing votes of %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var vt model.VoteType
		if err := rows.Scan(&id, &vt); err != nil {
			return fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		votes[id] = vt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating vote rows: %w", err)
	}
	return nil
}

// AdjustVoteCount adds delta to the target's aggregate in the database.
//
// ATOMIC INCREMENT:
// `SET votes = votes + ?` is evaluated by SQLite against the current row, so
// two concurrent adjustments of +1 always end at +2. Reading the count into
// Go, adding, and writing it back would lose one of them.
func (db *DB) AdjustVoteCount(ctx context.Context, target model.Target, delta int) (int, error) {
	return adjustVoteCount(ctx, db.conn, target, delta)
}

func adjustVoteCount(ctx context.Context, q queryer, target model.Target, delta int) (int, error) {
	table, _, err := targetSQL(target.Type)
	if err != nil {
		return 0, err
	}

	var votes int
	err = q.QueryRowContext(ctx,
		`UPDATE `+table+` SET votes = votes + ? WHERE id = ? RETURNING votes`,
		delta, target.ID,
	).Scan(&votes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound(string(target.Type), target.ID)
		}
		return 0, fmt.Errorf("sqlite: adjusting votes of %s %s: %w", target.Type, target.ID, err)
	}
	return votes, nil
}

// ApplyVote changes the ledger and the aggregate together.
//
// KEY CONCEPTS:
//
//  1. COMPARE-AND-SWAP ON THE LEDGER:
//     Every ledger statement is conditioned on the vote type the caller saw
//     (change.Prior). If another request changed the row in between, zero
//     rows match and the whole transaction rolls back with Conflict. The
//     service then re-reads and plans again.
//
//  2. AGGREGATE FIRST:
//     The UPDATE on the target doubles as the existence check. A target that
//     is gone yields NotFound before any ledger row is written.
func (db *DB) ApplyVote(ctx context.Context, change repository.VoteChange) (int, error) {
	_, column, err := targetSQL(change.Target.Type)
	if err != nil {
		return 0, err
	}

	var votes int
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		votes, err = adjustVoteCount(ctx, tx, change.Target, change.Delta)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var res sql.Result
		switch {
		case change.Prior == "" && change.Next == "":
			return nil

		case change.Prior == "":
			res, err = tx.ExecContext(ctx,
				`INSERT INTO votes (id, user_id, `+column+`, vote_type, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT DO NOTHING`,
				xid.New().String(), change.UserID, change.Target.ID, change.Next, now, now,
			)

		case change.Next == "":
			res, err = tx.ExecContext(ctx,
				`DELETE FROM votes
				 WHERE user_id = ? AND `+column+` = ? AND vote_type = ?`,
				change.UserID, change.Target.ID, change.Prior,
			)

		default:
			res, err = tx.ExecContext(ctx,
				`UPDATE votes SET vote_type = ?, updated_at = ?
				 WHERE user_id = ? AND `+column+` = ? AND vote_type = ?`,
				change.Next, now, change.UserID, change.Target.ID, change.Prior,
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: writing vote of %s on %s %s: %w",
				change.UserID, change.Target.Type, change.Target.ID, err)
		}

		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Conflict("vote", change.Target.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return votes, nil
}
