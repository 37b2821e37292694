package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const jobColumns = `
	id, title, slug, subtitle, short_description,
	description, application_process, important_dates, how_to_apply,
	tags, category, job_type, publish_date, expiry_date, location,
	image_url, youtube_url, meta_title, meta_description, meta_keywords,
	is_published, views, created_by, updated_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job       Job
		tags      []byte
		keywords  []byte
		createdBy sql.NullString
		updatedBy sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.Title, &job.Slug, &job.Subtitle, &job.ShortDescription,
		&job.Description, &job.ApplicationProcess, &job.ImportantDates, &job.HowToApply,
		&tags, &job.Category, &job.JobType, &job.PublishDate, &job.ExpiryDate, &job.Location,
		&job.ImageURL, &job.YoutubeURL, &job.MetaTitle, &job.MetaDescription, &keywords,
		&job.IsPublished, &job.Views, &createdBy, &updatedBy, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	job.Tags = decodeList(tags)
	job.MetaKeywords = decodeList(keywords)
	job.CreatedBy = createdBy.String
	if updatedBy.Valid {
		job.UpdatedBy = &updatedBy.String
	}
	return job, nil
}

func decodeList(raw []byte) []string {
	out := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func encodeList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (s *PostgresStore) CreateJob(ctx context.Context, job Job) (Job, error) {
	tags, err := encodeList(job.Tags)
	if err != nil {
		return Job{}, fmt.Errorf("encode tags: %w", err)
	}
	keywords, err := encodeList(job.MetaKeywords)
	if err != nil {
		return Job{}, fmt.Errorf("encode meta keywords: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (
			id, title, slug, subtitle, short_description,
			description, application_process, important_dates, how_to_apply,
			tags, category, job_type, publish_date, expiry_date, location,
			image_url, youtube_url, meta_title, meta_description, meta_keywords,
			is_published, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING `+jobColumns,
		job.ID, job.Title, job.Slug, job.Subtitle, job.ShortDescription,
		job.Description, job.ApplicationProcess, job.ImportantDates, job.HowToApply,
		tags, job.Category, job.JobType, job.PublishDate, job.ExpiryDate, job.Location,
		job.ImageURL, job.YoutubeURL, job.MetaTitle, job.MetaDescription, keywords,
		job.IsPublished, nullable(job.CreatedBy),
	)
	created, err := scanJob(row)
	if err != nil {
		return Job{}, wrapWriteErr("create job", err)
	}
	return created, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetPublishedJobBySlug only finds published jobs.
func (s *PostgresStore) GetPublishedJobBySlug(ctx context.Context, slug string) (Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE slug=$1 AND is_published`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job by slug: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job Job) (Job, error) {
	tags, err := encodeList(job.Tags)
	if err != nil {
		return Job{}, fmt.Errorf("encode tags: %w", err)
	}
	keywords, err := encodeList(job.MetaKeywords)
	if err != nil {
		return Job{}, fmt.Errorf("encode meta keywords: %w", err)
	}
	var updatedBy any
	if job.UpdatedBy != nil {
		updatedBy = nullable(*job.UpdatedBy)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET
			title=$2, slug=$3, subtitle=$4, short_description=$5,
			description=$6, application_process=$7, important_dates=$8, how_to_apply=$9,
			tags=$10, category=$11, job_type=$12, publish_date=$13, expiry_date=$14, location=$15,
			image_url=$16, youtube_url=$17, meta_title=$18, meta_description=$19, meta_keywords=$20,
			is_published=$21, updated_by=$22, updated_at=NOW()
		WHERE id=$1
		RETURNING `+jobColumns,
		job.ID, job.Title, job.Slug, job.Subtitle, job.ShortDescription,
		job.Description, job.ApplicationProcess, job.ImportantDates, job.HowToApply,
		tags, job.Category, job.JobType, job.PublishDate, job.ExpiryDate, job.Location,
		job.ImageURL, job.YoutubeURL, job.MetaTitle, job.MetaDescription, keywords,
		job.IsPublished, updatedBy,
	)
	updated, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, wrapWriteErr("update job", err)
	}
	return updated, nil
}

// UpdateJobContent writes only the four rich text fields.
func (s *PostgresStore) UpdateJobContent(ctx context.Context, id string, content map[string]string, updatedBy string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET
			description=COALESCE($2, description),
			application_process=COALESCE($3, application_process),
			important_dates=COALESCE($4, important_dates),
			how_to_apply=COALESCE($5, how_to_apply),
			updated_by=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING `+jobColumns,
		id,
		contentValue(content, "description"),
		contentValue(content, "applicationProcess"),
		contentValue(content, "importantDates"),
		contentValue(content, "howToApply"),
		nullable(updatedBy),
	)
	updated, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("update job content: %w", err)
	}
	return updated, nil
}

func contentValue(content map[string]string, key string) any {
	value, ok := content[key]
	if !ok {
		return nil
	}
	return value
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdminJobs returns the 100 most recently created jobs.
func (s *PostgresStore) ListAdminJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("list admin jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListPublishedJobs pages through published jobs, newest publish date first.
// Search matches title, short description and tags case-insensitively.
func (s *PostgresStore) ListPublishedJobs(ctx context.Context, filter JobFilter) ([]Job, int, error) {
	where, args := publishedWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count published jobs: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + where +
		` ORDER BY publish_date DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list published jobs: %w", err)
	}
	defer rows.Close()
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func publishedWhere(filter JobFilter) (string, []any) {
	clauses := []string{"is_published"}
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Category != "" {
		add("category = ?", filter.Category)
	}
	if filter.JobType != "" {
		add("job_type = ?", filter.JobType)
	}
	if text := strings.TrimSpace(filter.Search); text != "" {
		add("(title ILIKE ? OR short_description ILIKE ? OR tags::text ILIKE ?)", "%"+escapeLike(text)+"%")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// ListJobsByIDs returns published jobs in the order of ids. Unknown or
// unpublished ids are skipped.
func (s *PostgresStore) ListJobsByIDs(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return []Job{}, nil
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		JOIN jsonb_array_elements_text($1::jsonb) WITH ORDINALITY AS wanted(id, pos) ON wanted.id = jobs.id::text
		WHERE is_published
		ORDER BY wanted.pos`, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("list jobs by ids: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *PostgresStore) IncrementJobViews(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET views = views + 1 WHERE id=$1`, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSitemapEntries(ctx context.Context) ([]SitemapEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, updated_at FROM jobs WHERE is_published ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sitemap entries: %w", err)
	}
	defer rows.Close()

	var entries []SitemapEntry
	for rows.Next() {
		var entry SitemapEntry
		if err := rows.Scan(&entry.Slug, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sitemap entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

const adminColumns = `id, username, email, password_hash, role, is_active, last_login, created_at, updated_at`

func scanAdmin(row rowScanner) (Admin, error) {
	var (
		admin     Admin
		lastLogin sql.NullTime
	)
	err := row.Scan(&admin.ID, &admin.Username, &admin.Email, &admin.PasswordHash, &admin.Role,
		&admin.IsActive, &lastLogin, &admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		return Admin{}, err
	}
	if lastLogin.Valid {
		admin.LastLogin = &lastLogin.Time
	}
	return admin, nil
}

func (s *PostgresStore) CreateAdmin(ctx context.Context, admin Admin) (Admin, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO admins (id, username, email, password_hash, role, is_active)
		VALUES ($1, $2, LOWER($3), $4, $5, $6)
		RETURNING `+adminColumns,
		admin.ID, admin.Username, admin.Email, admin.PasswordHash, admin.Role, admin.IsActive,
	)
	created, err := scanAdmin(row)
	if err != nil {
		return Admin{}, wrapWriteErr("create admin", err)
	}
	return created, nil
}

func (s *PostgresStore) GetAdminByID(ctx context.Context, id string) (Admin, error) {
	admin, err := scanAdmin(s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admins WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	return admin, nil
}

// GetAdminByLogin matches the username exactly or the email case-insensitively.
func (s *PostgresStore) GetAdminByLogin(ctx context.Context, login string) (Admin, error) {
	admin, err := scanAdmin(s.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE username=$1 OR email=LOWER($1) LIMIT 1`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin by login: %w", err)
	}
	return admin, nil
}

func (s *PostgresStore) TouchAdminLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE admins SET last_login=$2, updated_at=NOW() WHERE id=$1`, id, at); err != nil {
		return fmt.Errorf("touch admin login: %w", err)
	}
	return nil
}

func wrapWriteErr(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", action, ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", action, err)
}
