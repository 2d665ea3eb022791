package database

import (
	"fmt"
	"time"
)

// PostRepositoryImpl handles database operations for collected posts
// and price points.
type PostRepositoryImpl struct {
	db *DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *DB) *PostRepositoryImpl {
	return &PostRepositoryImpl{db: db}
}

// UpsertPost inserts a post or refreshes its mutable columns. Counts
// and text may change between collections of the same post.
func (r *PostRepositoryImpl) UpsertPost(p StoredPost) error {
	_, err := r.db.Exec(`
		INSERT INTO posts (
			account, post_id, text, created_at,
			replies, reshares, likes, url, source, collected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, post_id) DO UPDATE SET
			text = excluded.text,
			replies = excluded.replies,
			reshares = excluded.reshares,
			likes = excluded.likes,
			url = excluded.url,
			source = excluded.source,
			collected_at = excluded.collected_at
	`, p.Account, p.PostID, p.Text, p.CreatedAt.UTC(),
		p.Replies, p.Reshares, p.Likes, p.URL, p.Source, p.CollectedAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert post: %w", err)
	}

	return nil
}

// GetRecentPosts returns an account's newest posts, newest first.
func (r *PostRepositoryImpl) GetRecentPosts(account string, limit int) ([]StoredPost, error) {
	rows, err := r.db.Query(`
		SELECT account, post_id, text, created_at,
		       replies, reshares, likes, url, source, collected_at
		FROM posts
		WHERE account = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent posts: %w", err)
	}
	defer rows.Close()

	var posts []StoredPost
	for rows.Next() {
		var p StoredPost
		err := rows.Scan(
			&p.Account, &p.PostID, &p.Text, &p.CreatedAt,
			&p.Replies, &p.Reshares, &p.Likes, &p.URL, &p.Source, &p.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

// GetPostCount returns the total number of stored posts
func (r *PostRepositoryImpl) GetPostCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get post count: %w", err)
	}
	return count, nil
}

// GetAccountPostCount returns the number of stored posts for one account
func (r *PostRepositoryImpl) GetAccountPostCount(account string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM posts WHERE account = ?", account).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get account post count: %w", err)
	}
	return count, nil
}

// UpsertPrice stores one day's value of a price series
func (r *PostRepositoryImpl) UpsertPrice(p PricePoint) error {
	_, err := r.db.Exec(`
		INSERT INTO prices (series, price_date, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (series, price_date) DO UPDATE SET
			value = excluded.value
	`, p.Series, p.PriceDate, p.Value, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}

	return nil
}

// GetPriceSeries returns the most recent days of a price series in
// date order.
func (r *PostRepositoryImpl) GetPriceSeries(series string, days int) ([]PricePoint, error) {
	rows, err := r.db.Query(`
		SELECT series, price_date, value
		FROM (
			SELECT series, price_date, value
			FROM prices
			WHERE series = ?
			ORDER BY price_date DESC
			LIMIT ?
		)
		ORDER BY price_date ASC
	`, series, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get price series: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Series, &p.PriceDate, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}

	return points, nil
}
