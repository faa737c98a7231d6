package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"geofeed/internal/model"
)

// pqForeignKeyViolation is raised when an edge references a missing post
const pqForeignKeyViolation = "23503"

type engagementRepository struct {
	db *sqlx.DB
}

func NewEngagementRepository(db *sqlx.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

// FetchEdges returns the like and comment edges of a chunk of posts.
func (r *engagementRepository) FetchEdges(ctx context.Context, postIDs []int64) ([]model.EngagementEdge, error) {
	if len(postIDs) == 0 {
		return []model.EngagementEdge{}, nil
	}

	query := `
		SELECT post_id, user_id, 'like' AS kind, NULL::text AS body
		FROM post_likes
		WHERE post_id = ANY($1)
		UNION ALL
		SELECT post_id, user_id, 'comment' AS kind, content AS body
		FROM post_comments
		WHERE post_id = ANY($1)
	`
	var edges []model.EngagementEdge
	if err := r.db.SelectContext(ctx, &edges, query, pq.Array(postIDs)); err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	return edges, nil
}

// Like inserts a like record. A duplicate like is not an error.
func (r *engagementRepository) Like(ctx context.Context, postID, userID int64) (bool, error) {
	query := `
		INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, postID, userID)
	if err != nil {
		if isPQError(err, pqForeignKeyViolation) {
			return false, model.ErrPostNotFound
		}
		return false, fmt.Errorf("insert like: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Unlike deletes a like record if present.
func (r *engagementRepository) Unlike(ctx context.Context, postID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// CreateComment inserts a new comment.
func (r *engagementRepository) CreateComment(ctx context.Context, postID, userID int64, content string) (*model.Comment, error) {
	query := `
		INSERT INTO post_comments (post_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, post_id, user_id, content, created_at
	`
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment, query, postID, userID, content)
	if err != nil {
		if isPQError(err, pqForeignKeyViolation) {
			return nil, model.ErrPostNotFound
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &comment, nil
}

// DeleteComment removes a comment of a post. Only the comment owner can delete.
func (r *engagementRepository) DeleteComment(ctx context.Context, postID, commentID, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.GetContext(ctx, &ownerID, `
		SELECT user_id FROM post_comments WHERE id = $1 AND post_id = $2 FOR UPDATE
	`, commentID, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrCommentNotFound
	}
	if err != nil {
		return fmt.Errorf("get comment: %w", err)
	}
	if ownerID != userID {
		return model.ErrNotCommentOwner
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_comments WHERE id = $1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListComments returns comments of a post, newest first, with keyset pagination.
func (r *engagementRepository) ListComments(ctx context.Context, postID int64, cursor *string, limit int) ([]model.Comment, *string, error) {
	var query string
	var args []interface{}

	if cursor == nil {
		query = `
			SELECT id, post_id, user_id, content, created_at
			FROM post_comments
			WHERE post_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []interface{}{postID, limit + 1}
	} else {
		ts, id, err := parseCommentCursor(*cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrInvalidCursor, err)
		}
		query = `
			SELECT id, post_id, user_id, content, created_at
			FROM post_comments
			WHERE post_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		args = []interface{}{postID, ts, id, limit + 1}
	}

	comments := []model.Comment{}
	if err := r.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, nil, fmt.Errorf("get comments: %w", err)
	}

	var nextCursor *string
	if len(comments) > limit {
		comments = comments[:limit]
		last := comments[len(comments)-1]
		c := formatCommentCursor(last.CreatedAt, last.ID)
		nextCursor = &c
	}

	return comments, nextCursor, nil
}

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// Helper: parse comment cursor "id:unix_micros"
func parseCommentCursor(cursor string) (time.Time, int64, error) {
	idPart, tsPart, ok := strings.Cut(cursor, ":")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("invalid cursor format")
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	return time.UnixMicro(ts).UTC(), id, nil
}

// Helper: format comment cursor "id:unix_micros"
func formatCommentCursor(t time.Time, id int64) string {
	return fmt.Sprintf("%d:%d", id, t.UnixMicro())
}
