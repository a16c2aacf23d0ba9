package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

// PostgresIdeaRepo はPostgreSQLを使用したアイデアリポジトリ。
type PostgresIdeaRepo struct {
	db *sql.DB
}

// NewPostgresIdeaRepo はPostgresIdeaRepoを生成する。
func NewPostgresIdeaRepo(db *sql.DB) *PostgresIdeaRepo {
	return &PostgresIdeaRepo{db: db}
}

const ideaColumns = `id, title, description, category, tags, status, ai_analysis, user_id, created_at, updated_at`

// ideaSortColumns は並び替えキーとカラムの対応。ORDER BY句にはこの値のみを埋め込む。
var ideaSortColumns = map[model.IdeaSortField]string{
	model.IdeaSortCreatedAt: "created_at",
	model.IdeaSortTitle:     "title",
	model.IdeaSortCategory:  "category",
	model.IdeaSortStatus:    "status",
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Create はアイデアを作成する。
func (r *PostgresIdeaRepo) Create(ctx context.Context, idea *model.Idea) error {
	analysis, err := marshalAnalysis(idea.AIAnalysis)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ideas (id, title, description, category, tags, status, ai_analysis, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		idea.ID, idea.Title, idea.Description, nullableString(idea.Category), pq.Array(nonNilTags(idea.Tags)),
		string(idea.Status), analysis, idea.UserID, idea.CreatedAt, idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アイデアの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDAndOwner は指定ユーザーが所有するアイデアを取得する。見つからない場合はnilを返す。
func (r *PostgresIdeaRepo) FindByIDAndOwner(ctx context.Context, id, userID string) (*model.Idea, error) {
	idea, err := scanIdea(r.db.QueryRowContext(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイデアの取得に失敗しました: %w", err)
	}
	return idea, nil
}

// List は絞り込み条件に合うアイデアを並び順に従って取得する。
func (r *PostgresIdeaRepo) List(ctx context.Context, filter model.IdeaFilter, order model.IdeaOrder, limit, offset int) ([]*model.Idea, error) {
	where, args := buildIdeaWhere(filter)

	column, ok := ideaSortColumns[order.Field]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM ideas WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		ideaColumns, where, column, direction, direction, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アイデア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ideas := make([]*model.Idea, 0)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("アイデアの読み取りに失敗しました: %w", err)
		}
		ideas = append(ideas, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイデア一覧の走査に失敗しました: %w", err)
	}
	return ideas, nil
}

// Count は絞り込み条件に合うアイデアの件数を返す。
func (r *PostgresIdeaRepo) Count(ctx context.Context, filter model.IdeaFilter) (int, error) {
	where, args := buildIdeaWhere(filter)

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ideas WHERE `+where,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("アイデア件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Update は汎用フィールドを更新し、更新後のアイデアを返す。
// ai_analysisは更新しない。対象行がない場合はnilを返す。
func (r *PostgresIdeaRepo) Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*model.Idea, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Category != nil {
		add("category", nullableString(update.Category))
	}
	if update.TagsSet {
		add("tags", pq.Array(nonNilTags(update.Tags)))
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id, userID)
	query := fmt.Sprintf(
		`UPDATE ideas SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), ideaColumns,
	)

	idea, err := scanIdea(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイデアの更新に失敗しました: %w", err)
	}
	return idea, nil
}

// SetStatus はステータスのみを更新する。対象行がない場合はfalseを返す。
func (r *PostgresIdeaRepo) SetStatus(ctx context.Context, id, userID string, status model.IdeaStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ideas SET status = $1, updated_at = now() WHERE id = $2 AND user_id = $3`,
		string(status), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("アイデアのステータス更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SetAnalysis はAI分析結果とステータスを同時に更新し、更新後のアイデアを返す。
// 対象行がない場合はnilを返す。
func (r *PostgresIdeaRepo) SetAnalysis(ctx context.Context, id, userID string, result *model.AnalysisResult, status model.IdeaStatus) (*model.Idea, error) {
	analysis, err := marshalAnalysis(result)
	if err != nil {
		return nil, err
	}

	idea, err := scanIdea(r.db.QueryRowContext(ctx,
		`UPDATE ideas SET ai_analysis = $1, status = $2, updated_at = now()
		 WHERE id = $3 AND user_id = $4
		 RETURNING `+ideaColumns,
		analysis, string(status), id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("AI分析結果の保存に失敗しました: %w", err)
	}
	return idea, nil
}

// Delete は指定ユーザーが所有するアイデアを削除する。対象行がない場合はfalseを返す。
func (r *PostgresIdeaRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM ideas WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("アイデアの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByUserID は指定ユーザーの全アイデアを削除する。
func (r *PostgresIdeaRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ideas WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ユーザーのアイデア削除に失敗しました: %w", err)
	}
	return nil
}

// buildIdeaWhere は絞り込み条件からWHERE句とパラメータを組み立てる。
// 所有者条件は常に先頭に置く。
func buildIdeaWhere(filter model.IdeaFilter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{filter.UserID}

	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanIdea(row rowScanner) (*model.Idea, error) {
	idea := &model.Idea{}
	var category sql.NullString
	var tags pq.StringArray
	var status string
	var analysis []byte

	if err := row.Scan(
		&idea.ID, &idea.Title, &idea.Description, &category, &tags,
		&status, &analysis, &idea.UserID, &idea.CreatedAt, &idea.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if category.Valid {
		c := category.String
		idea.Category = &c
	}
	idea.Tags = nonNilTags(tags)
	idea.Status = model.IdeaStatus(status)

	if len(analysis) > 0 {
		var result model.AnalysisResult
		if err := json.Unmarshal(analysis, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ai_analysis: %w", err)
		}
		idea.AIAnalysis = &result
	}

	return idea, nil
}

// marshalAnalysis はAI分析結果をJSONB用の文字列に変換する。nilはNULLになる。
func marshalAnalysis(result *model.AnalysisResult) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal ai_analysis: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// compile-time interface check
var _ IdeaRepository = (*PostgresIdeaRepo)(nil)
