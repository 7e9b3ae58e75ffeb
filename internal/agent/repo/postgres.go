package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/pediatric-ir/answerline/internal/agent/model"
	errx "github.com/pediatric-ir/answerline/internal/core/error"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// Querier is the slice of pgx this repository needs; *pgxpool.Pool
// satisfies it in production, tests supply a fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresPassageRepository reads the pre-chunked, pre-embedded passages
// table. Ingestion and index lifecycle are owned elsewhere; this repository
// only searches.
type PostgresPassageRepository struct {
	db Querier
}

func NewPostgresPassageRepository(db Querier) *PostgresPassageRepository {
	return &PostgresPassageRepository{db: db}
}

const keywordSearchSQL = `
SELECT p.id, p.title, p.source, p.content, ts_rank_cd(p.tsv, q.query) AS score
FROM passages p, websearch_to_tsquery('english', $1) AS q(query)
WHERE p.tsv @@ q.query
ORDER BY score DESC
LIMIT $2`

const semanticSearchSQL = `
SELECT id, title, source, content, 1 - (embedding <=> $1) AS score
FROM passages
ORDER BY embedding <=> $1
LIMIT $2`

func (r *PostgresPassageRepository) SearchKeyword(ctx context.Context, query string, limit int) ([]model.Passage, error) {
	rows, err := r.db.Query(ctx, keywordSearchSQL, query, limit)
	if err != nil {
		logx.Error().Err(err).Str("query", query).Msg("keyword search query failed")
		return nil, errx.WrapPostgres(err)
	}
	return scanPassages(rows)
}

func (r *PostgresPassageRepository) SearchSemantic(ctx context.Context, embedding []float32, limit int) ([]model.Passage, error) {
	rows, err := r.db.Query(ctx, semanticSearchSQL, pgvector.NewVector(embedding), limit)
	if err != nil {
		logx.Error().Err(err).Msg("semantic search query failed")
		return nil, errx.WrapPostgres(err)
	}
	return scanPassages(rows)
}

func scanPassages(rows pgx.Rows) ([]model.Passage, error) {
	defer rows.Close()

	var passages []model.Passage
	for rows.Next() {
		var p model.Passage
		if err := rows.Scan(&p.ID, &p.Title, &p.Source, &p.Content, &p.Score); err != nil {
			return nil, errx.WrapPostgres(err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return passages, nil
}
