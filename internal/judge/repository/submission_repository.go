package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
	"time"

	"judgebox/internal/common/db"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/result"
	appErr "judgebox/pkg/errors"
)

//go:embed schema.sql
var schema string

// SubmissionRepository reads jobs and stores verdicts in the submissions.result column.
type SubmissionRepository interface {
	LoadJob(ctx context.Context, submissionID int64) (*model.Job, error)
	SaveVerdict(ctx context.Context, submissionID int64, encoded string, judgedAt time.Time) error
	GetVerdict(ctx context.Context, submissionID int64) (string, time.Time, error)
	CountCorrect(ctx context.Context, problemID int64) (int64, error)
	ListOutcomes(ctx context.Context, problemID int64) ([]model.Outcome, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

// Migrate creates the tables if they are missing.
func Migrate(ctx context.Context, database db.Database) error {
	for _, stmt := range statements(schema) {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "apply schema failed")
		}
	}
	return nil
}

func statements(script string) []string {
	var out []string
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(b.String()), ";"))
			b.Reset()
		}
	}
	return out
}

// LoadJob joins the submission with its problem.
func (r *MySQLSubmissionRepository) LoadJob(ctx context.Context, submissionID int64) (*model.Job, error) {
	query := `
		SELECT s.id, s.problem_id, s.language, s.code, p.time_limit, p.tests, p.custom_judger
		FROM submissions s
		JOIN problems p ON p.id = s.problem_id
		WHERE s.id = ?
	`
	var (
		job    model.Job
		lang   int
		judger sql.NullString
	)
	err := r.db.QueryRow(ctx, query, submissionID).Scan(
		&job.SubmissionID,
		&job.ProblemID,
		&lang,
		&job.Code,
		&job.TimeLimit,
		&job.Tests,
		&judger,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	job.Language = language.Language(lang)
	if !job.Language.Valid() {
		return nil, appErr.New(appErr.LanguageNotSupported).
			WithMessagef("submission %d has unknown language %d", submissionID, lang)
	}
	if judger.Valid {
		job.CustomJudger = &judger.String
	}
	return &job, nil
}

// SaveVerdict stores the encoded verdict and when it was produced.
func (r *MySQLSubmissionRepository) SaveVerdict(ctx context.Context, submissionID int64, encoded string, judgedAt time.Time) error {
	if encoded == "" {
		return appErr.ValidationError("result", "required")
	}
	query := `UPDATE submissions SET result = ?, judged_at = ? WHERE id = ?`
	if _, err := r.db.Exec(ctx, query, encoded, judgedAt.UTC(), submissionID); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save verdict failed")
	}
	return nil
}

// GetVerdict returns the stored encoded verdict of a judged submission.
func (r *MySQLSubmissionRepository) GetVerdict(ctx context.Context, submissionID int64) (string, time.Time, error) {
	query := `SELECT result, judged_at FROM submissions WHERE id = ?`
	var (
		encoded  sql.NullString
		judgedAt sql.NullTime
	)
	if err := r.db.QueryRow(ctx, query, submissionID).Scan(&encoded, &judgedAt); err != nil {
		if db.IsNoRows(err) {
			return "", time.Time{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return "", time.Time{}, appErr.Wrapf(err, appErr.DatabaseError, "get verdict failed")
	}
	if !encoded.Valid {
		return "", time.Time{}, appErr.New(appErr.SubmissionUnjudged).WithDetail("submission_id", submissionID)
	}
	return encoded.String, judgedAt.Time, nil
}

// CountCorrect counts submissions whose every case passed, by verdict prefix.
func (r *MySQLSubmissionRepository) CountCorrect(ctx context.Context, problemID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE problem_id = ? AND result LIKE ?`
	var n int64
	if err := r.db.QueryRow(ctx, query, problemID, result.CorrectPrefix+"%").Scan(&n); err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "count correct submissions failed")
	}
	return n, nil
}

// ListOutcomes classifies every judged submission of a problem.
func (r *MySQLSubmissionRepository) ListOutcomes(ctx context.Context, problemID int64) ([]model.Outcome, error) {
	query := `SELECT id, result FROM submissions WHERE problem_id = ? AND result IS NOT NULL ORDER BY id`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	defer rows.Close()

	outcomes := make([]model.Outcome, 0)
	for rows.Next() {
		var (
			id      int64
			encoded string
		)
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission failed")
		}
		simple, err := result.DecodeSimple(encoded)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.VerdictMalformed).WithDetail("submission_id", id)
		}
		outcomes = append(outcomes, model.Outcome{SubmissionID: id, Outcome: simple})
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate submissions failed")
	}
	return outcomes, nil
}
