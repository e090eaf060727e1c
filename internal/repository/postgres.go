// Package repository содержит реализации хранилищ заявок: PostgreSQL и память процесса.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/nfsuisse/intake/internal/model"
	"github.com/nfsuisse/intake/internal/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var (
	taxColumns       = []string{"reference", "status", "contact", "details", "payment_id", "created_at", "updated_at", "paid_at"}
	serviceColumns   = []string{"reference", "service_type", "status", "contact", "details", "message", "created_at", "updated_at"}
	extensionColumns = []string{"reference", "status", "contact", "tax_year", "reason", "created_at", "updated_at"}
	documentColumns  = []string{"id", "reference", "name", "content_type", "size", "url", "public_id", "simulated", "uploaded_at"}
)

// PostgresRepository предоставляет доступ к заявкам в PostgreSQL.
type PostgresRepository struct {
	pool    pgxPool
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return newPostgresRepository(pool), nil
}

func newPostgresRepository(pool pgxPool) *PostgresRepository {
	return &PostgresRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// CreateTaxRequest сохраняет новую налоговую заявку.
func (r *PostgresRepository) CreateTaxRequest(ctx context.Context, req *model.TaxRequest) error {
	contact, err := json.Marshal(req.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	details, err := json.Marshal(req.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query, args, err := r.builder.Insert("tax_requests").
		Columns("reference", "status", "contact", "details").
		Values(req.Reference, string(req.Status), contact, details).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
		}
		return fmt.Errorf("insert tax request: %w", err)
	}

	if req.Documents == nil {
		req.Documents = []model.Document{}
	}
	return nil
}

func scanTaxRequest(row pgx.Row) (*model.TaxRequest, error) {
	var (
		t         model.TaxRequest
		status    string
		contact   []byte
		details   []byte
		paymentID sql.NullString
		paidAt    sql.NullTime
	)

	if err := row.Scan(&t.Reference, &status, &contact, &details, &paymentID, &t.CreatedAt, &t.UpdatedAt, &paidAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contact, &t.Contact); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	if err := json.Unmarshal(details, &t.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}

	t.Status = model.TaxStatus(status)
	t.PaymentID = paymentID.String
	if paidAt.Valid {
		at := paidAt.Time
		t.PaidAt = &at
	}
	t.Documents = []model.Document{}
	return &t, nil
}

// FindTaxRequest ищет налоговую заявку по номеру вместе с документами.
func (r *PostgresRepository) FindTaxRequest(ctx context.Context, ref string) (*model.TaxRequest, error) {
	candidates := validation.ReferenceCandidates(ref)
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := r.builder.Select(taxColumns...).
		From("tax_requests").
		Where(squirrel.Eq{"reference": candidates}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	t, err := scanTaxRequest(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select tax request: %w", err)
	}

	docs, err := r.documents(ctx, t.Reference)
	if err != nil {
		return nil, err
	}
	t.Documents = docs[t.Reference]
	if t.Documents == nil {
		t.Documents = []model.Document{}
	}

	return t, nil
}

// ListTaxRequests возвращает налоговые заявки, начиная с самой новой.
func (r *PostgresRepository) ListTaxRequests(ctx context.Context) ([]model.TaxRequest, error) {
	query, args, err := r.builder.Select(taxColumns...).
		From("tax_requests").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tax requests: %w", err)
	}
	defer rows.Close()

	var res []model.TaxRequest
	var refs []string
	for rows.Next() {
		t, err := scanTaxRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tax request: %w", err)
		}
		res = append(res, *t)
		refs = append(refs, t.Reference)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	docs, err := r.documents(ctx, refs...)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if d, ok := docs[res[i].Reference]; ok {
			res[i].Documents = d
		}
	}

	return res, nil
}

// lockReference находит каноничный номер и блокирует строку до конца транзакции.
func (r *PostgresRepository) lockReference(ctx context.Context, tx pgx.Tx, table, column, ref string) (string, string, error) {
	candidates := validation.ReferenceCandidates(ref)
	if len(candidates) == 0 {
		return "", "", ErrNotFound
	}

	query, args, err := r.builder.Select("reference", column).
		From(table).
		Where(squirrel.Eq{"reference": candidates}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return "", "", fmt.Errorf("build select: %w", err)
	}

	var reference, value string
	if err := tx.QueryRow(ctx, query, args...).Scan(&reference, &value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("lock %s: %w", table, err)
	}
	return reference, value, nil
}

// UpdateTaxRequestStatus переводит заявку в новый статус, если переход допустим.
func (r *PostgresRepository) UpdateTaxRequestStatus(ctx context.Context, ref string, status model.TaxStatus, paidAt *time.Time) (*model.TaxRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	reference, current, err := r.lockReference(ctx, tx, "tax_requests", "status", ref)
	if err != nil {
		return nil, err
	}

	if !model.TaxStatus(current).CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current, status)
	}

	update := r.builder.Update("tax_requests").
		Set("status", string(status)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"reference": reference})
	if paidAt != nil {
		update = update.Set("paid_at", *paidAt)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update tax request status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.FindTaxRequest(ctx, reference)
}

// AttachTaxRequestPayment связывает заявку с идентификатором платежа.
func (r *PostgresRepository) AttachTaxRequestPayment(ctx context.Context, ref, paymentID string) error {
	candidates := validation.ReferenceCandidates(ref)
	if len(candidates) == 0 {
		return ErrNotFound
	}

	query, args, err := r.builder.Update("tax_requests").
		Set("payment_id", paymentID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"reference": candidates}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("attach payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTaxRequestDocuments добавляет метаданные документов к налоговой заявке.
func (r *PostgresRepository) AddTaxRequestDocuments(ctx context.Context, ref string, docs []model.Document) error {
	return r.addDocuments(ctx, "tax_requests", ref, docs)
}

// TaxRequestStats подсчитывает налоговые заявки по статусам.
func (r *PostgresRepository) TaxRequestStats(ctx context.Context) (model.TaxRequestStats, error) {
	var stats model.TaxRequestStats
	err := r.countByStatus(ctx, "tax_requests", func(status string, n int) {
		stats.Add(model.TaxStatus(status), n)
	})
	return stats, err
}

// CreateServiceRequest сохраняет новую общую заявку.
func (r *PostgresRepository) CreateServiceRequest(ctx context.Context, req *model.ServiceRequest) error {
	contact, err := json.Marshal(req.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	details := req.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query, args, err := r.builder.Insert("service_requests").
		Columns("reference", "service_type", "status", "contact", "details", "message").
		Values(req.Reference, string(req.Type), string(req.Status), contact, detailsJSON, req.Message).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
		}
		return fmt.Errorf("insert service request: %w", err)
	}

	if req.Documents == nil {
		req.Documents = []model.Document{}
	}
	return nil
}

func scanServiceRequest(row pgx.Row) (*model.ServiceRequest, error) {
	var (
		s           model.ServiceRequest
		serviceType string
		status      string
		contact     []byte
		details     []byte
	)

	if err := row.Scan(&s.Reference, &serviceType, &status, &contact, &details, &s.Message, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contact, &s.Contact); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	if err := json.Unmarshal(details, &s.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}

	s.Type = model.ServiceType(serviceType)
	s.Status = model.RequestStatus(status)
	s.Documents = []model.Document{}
	return &s, nil
}

// FindServiceRequest ищет общую заявку по номеру вместе с документами.
func (r *PostgresRepository) FindServiceRequest(ctx context.Context, ref string) (*model.ServiceRequest, error) {
	candidates := validation.ReferenceCandidates(ref)
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := r.builder.Select(serviceColumns...).
		From("service_requests").
		Where(squirrel.Eq{"reference": candidates}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	s, err := scanServiceRequest(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select service request: %w", err)
	}

	docs, err := r.documents(ctx, s.Reference)
	if err != nil {
		return nil, err
	}
	if d, ok := docs[s.Reference]; ok {
		s.Documents = d
	}

	return s, nil
}

// ListServiceRequests возвращает общие заявки, начиная с самой новой.
func (r *PostgresRepository) ListServiceRequests(ctx context.Context) ([]model.ServiceRequest, error) {
	query, args, err := r.builder.Select(serviceColumns...).
		From("service_requests").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select service requests: %w", err)
	}
	defer rows.Close()

	var res []model.ServiceRequest
	var refs []string
	for rows.Next() {
		s, err := scanServiceRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service request: %w", err)
		}
		res = append(res, *s)
		refs = append(refs, s.Reference)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	docs, err := r.documents(ctx, refs...)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if d, ok := docs[res[i].Reference]; ok {
			res[i].Documents = d
		}
	}

	return res, nil
}

// UpdateServiceRequestStatus переводит общую заявку в новый статус, если переход допустим.
func (r *PostgresRepository) UpdateServiceRequestStatus(ctx context.Context, ref string, status model.RequestStatus) (*model.ServiceRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	reference, current, err := r.lockReference(ctx, tx, "service_requests", "status", ref)
	if err != nil {
		return nil, err
	}

	if !model.RequestStatus(current).CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current, status)
	}

	query, args, err := r.builder.Update("service_requests").
		Set("status", string(status)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update service request status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.FindServiceRequest(ctx, reference)
}

// AddServiceRequestDocuments добавляет метаданные документов к общей заявке.
func (r *PostgresRepository) AddServiceRequestDocuments(ctx context.Context, ref string, docs []model.Document) error {
	return r.addDocuments(ctx, "service_requests", ref, docs)
}

// ServiceRequestStats подсчитывает общие заявки по статусам.
func (r *PostgresRepository) ServiceRequestStats(ctx context.Context) (model.RequestStats, error) {
	var stats model.RequestStats
	err := r.countByStatus(ctx, "service_requests", func(status string, n int) {
		stats.Add(model.RequestStatus(status), n)
	})
	return stats, err
}

// CreateExtensionRequest сохраняет заявку на продление срока.
func (r *PostgresRepository) CreateExtensionRequest(ctx context.Context, req *model.ExtensionRequest) error {
	contact, err := json.Marshal(req.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	query, args, err := r.builder.Insert("extension_requests").
		Columns("reference", "status", "contact", "tax_year", "reason").
		Values(req.Reference, string(req.Status), contact, req.TaxYear, req.Reason).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrReferenceExists, req.Reference)
		}
		return fmt.Errorf("insert extension request: %w", err)
	}
	return nil
}

// ListExtensionRequests возвращает заявки на продление, начиная с самой новой.
func (r *PostgresRepository) ListExtensionRequests(ctx context.Context) ([]model.ExtensionRequest, error) {
	query, args, err := r.builder.Select(extensionColumns...).
		From("extension_requests").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select extension requests: %w", err)
	}
	defer rows.Close()

	var res []model.ExtensionRequest
	for rows.Next() {
		var (
			e       model.ExtensionRequest
			status  string
			contact []byte
		)
		if err := rows.Scan(&e.Reference, &status, &contact, &e.TaxYear, &e.Reason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan extension request: %w", err)
		}
		if err := json.Unmarshal(contact, &e.Contact); err != nil {
			return nil, fmt.Errorf("unmarshal contact: %w", err)
		}
		e.Status = model.RequestStatus(status)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) addDocuments(ctx context.Context, table, ref string, docs []model.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	reference, _, err := r.lockReference(ctx, tx, table, "status", ref)
	if err != nil {
		return err
	}

	if len(docs) > 0 {
		insert := r.builder.Insert("request_documents").Columns(documentColumns...)
		for _, d := range docs {
			insert = insert.Values(d.ID, reference, d.Name, d.ContentType, d.Size, d.URL, d.PublicID, d.Simulated, d.UploadedAt)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
	}

	query, args, err := r.builder.Update(table).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("touch %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// documents возвращает документы указанных заявок, сгруппированные по номеру.
func (r *PostgresRepository) documents(ctx context.Context, refs ...string) (map[string][]model.Document, error) {
	res := make(map[string][]model.Document, len(refs))
	if len(refs) == 0 {
		return res, nil
	}

	query, args, err := r.builder.Select(documentColumns...).
		From("request_documents").
		Where(squirrel.Eq{"reference": refs}).
		OrderBy("uploaded_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d   model.Document
			ref string
		)
		if err := rows.Scan(&d.ID, &ref, &d.Name, &d.ContentType, &d.Size, &d.URL, &d.PublicID, &d.Simulated, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		res[ref] = append(res[ref], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) countByStatus(ctx context.Context, table string, add func(status string, n int)) error {
	query, args, err := r.builder.Select("status", "COUNT(*)").
		From(table).
		GroupBy("status").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
		add(status, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}
