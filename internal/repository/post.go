package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"geofeed/internal/model"
)

const postColumns = `id, user_id, body, lat, lng, place_label, created_at, updated_at`

type postRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts a new post and its attachments in a transaction.
func (r *postRepository) Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.Post, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var post model.Post
	query := `
		INSERT INTO posts (user_id, body, lat, lng, place_label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + postColumns
	err = tx.GetContext(ctx, &post, query, authorID, req.Body, req.Lat, req.Lng, req.PlaceLabel)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}

	post.Attachments = make([]string, 0, len(req.Attachments))
	for i, ref := range req.Attachments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_attachments (post_id, ref, position)
			VALUES ($1, $2, $3)
		`, post.ID, ref, i)
		if err != nil {
			return nil, fmt.Errorf("insert attachment %d: %w", i, err)
		}
		post.Attachments = append(post.Attachments, ref)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &post, nil
}

// GetByID retrieves a single post with its attachments.
func (r *postRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	var post model.Post
	err := r.db.GetContext(ctx, &post, `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}

	attachments, err := r.getAttachments(ctx, []int64{postID})
	if err != nil {
		return nil, err
	}
	post.Attachments = orEmpty(attachments[postID])

	return &post, nil
}

// Update edits body and place label. Only the author can update.
// An empty place label clears it.
func (r *postRepository) Update(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error) {
	query := `
		UPDATE posts
		SET body = COALESCE($1, body),
		    place_label = CASE WHEN $2::text IS NULL THEN place_label ELSE NULLIF($2, '') END,
		    updated_at = NOW()
		WHERE id = $3 AND user_id = $4
		RETURNING ` + postColumns
	var post model.Post
	err := r.db.GetContext(ctx, &post, query, req.Body, req.PlaceLabel, postID, authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.ownershipError(ctx, postID)
	}
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	attachments, err := r.getAttachments(ctx, []int64{postID})
	if err != nil {
		return nil, err
	}
	post.Attachments = orEmpty(attachments[postID])

	return &post, nil
}

// Delete removes a post. Attachments, likes and comments cascade.
func (r *postRepository) Delete(ctx context.Context, postID, authorID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, postID, authorID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return r.ownershipError(ctx, postID)
	}
	return nil
}

// Exists checks if a post exists.
func (r *postRepository) Exists(ctx context.Context, postID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return exists, nil
}

// ListRecent is the primary query of the list feed.
func (r *postRepository) ListRecent(ctx context.Context, offset, limit int) ([]model.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	posts, err := r.selectPosts(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	return posts, nil
}

// Search is the primary query of the search feed. It matches the query as a
// case-insensitive substring of the body or the place label.
func (r *postRepository) Search(ctx context.Context, query string, offset, limit int) ([]model.Post, error) {
	sqlQuery := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE body ILIKE $1 OR place_label ILIKE $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	posts, err := r.selectPosts(ctx, sqlQuery, likePattern(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

// ListInBounds is the primary query of the map feed. A box crossing the
// antimeridian is matched as two longitude ranges.
func (r *postRepository) ListInBounds(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error) {
	lngClause := `lng BETWEEN $3 AND $4`
	if bounds.CrossesAntimeridian() {
		lngClause = `(lng >= $3 OR lng <= $4)`
	}

	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE lat BETWEEN $1 AND $2 AND ` + lngClause + `
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`
	posts, err := r.selectPosts(ctx, query,
		bounds.SouthWest.Lat, bounds.NorthEast.Lat,
		bounds.SouthWest.Lng, bounds.NorthEast.Lng,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts in bounds: %w", err)
	}
	return posts, nil
}

// selectPosts runs a post listing and attaches attachments in one extra query.
func (r *postRepository) selectPosts(ctx context.Context, query string, args ...interface{}) ([]model.Post, error) {
	posts := []model.Post{}
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	attachments, err := r.getAttachments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Attachments = orEmpty(attachments[posts[i].ID])
	}
	return posts, nil
}

// ownershipError tells apart a missing post from one owned by someone else.
func (r *postRepository) ownershipError(ctx context.Context, postID int64) error {
	exists, err := r.Exists(ctx, postID)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrNotPostOwner
	}
	return model.ErrPostNotFound
}

// Helper: fetch attachments for multiple posts in one query
func (r *postRepository) getAttachments(ctx context.Context, postIDs []int64) (map[int64][]string, error) {
	query := `
		SELECT post_id, ref
		FROM post_attachments
		WHERE post_id = ANY($1)
		ORDER BY post_id, position
	`
	var rows []struct {
		PostID int64  `db:"post_id"`
		Ref    string `db:"ref"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(postIDs)); err != nil {
		return nil, fmt.Errorf("get post attachments: %w", err)
	}

	result := make(map[int64][]string)
	for _, row := range rows {
		result[row.PostID] = append(result[row.PostID], row.Ref)
	}
	return result, nil
}

func orEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

// likePattern escapes LIKE wildcards in q and wraps it for substring matching.
func likePattern(q string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + escaped + "%"
}
