package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// AuthorRepository resolves content authors from the platform's relational
// store. The posts/videos/users tables are owned by the CRUD service; this
// subsystem only reads them.
type AuthorRepository struct {
	pool *pgxpool.Pool
}

var _ ports.AuthorLookup = (*AuthorRepository)(nil)

func NewAuthorRepository(pool *pgxpool.Pool) *AuthorRepository {
	return &AuthorRepository{pool: pool}
}

const getPostAuthorQuery = `
	SELECT u.id, u.display_name
	FROM posts p
	JOIN users u ON u.id = p.author_id
	WHERE p.id = $1`

const getVideoAuthorQuery = `
	SELECT u.id, u.display_name
	FROM videos v
	JOIN users u ON u.id = v.author_id
	WHERE v.id = $1`

// GetAuthor returns the author of the given content, or ErrAuthorNotFound
// when the content does not exist.
func (r *AuthorRepository) GetAuthor(ctx context.Context, contentType domain.ContentType, contentID int64) (*domain.Author, error) {
	var query string
	switch contentType {
	case domain.ContentPost:
		query = getPostAuthorQuery
	case domain.ContentVideo:
		query = getVideoAuthorQuery
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownContent, contentType)
	}

	var author domain.Author
	err := r.pool.QueryRow(ctx, query, contentID).Scan(&author.ID, &author.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAuthorNotFound
		}
		return nil, err
	}

	return &author, nil
}
