// Package reposource serves list resources straight from a go-repository-bun
// repository. It is used by in-process deployments that read the garage
// database directly instead of going through the REST API.
package reposource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
)

const notFoundMessage = "record not found"

// Source is a listsync Lister and Mutator over a repository of T.
type Source[T any] struct {
	repo        repository.Repository[T]
	mapping     Mapping
	statusField string
	logger      logrus.FieldLogger
}

var (
	_ listsync.Lister  = (*Source[any])(nil)
	_ listsync.Mutator = (*Source[any])(nil)
)

// Option configures a Source.
type Option func(*sourceOptions)

type sourceOptions struct {
	mapping     Mapping
	statusField string
	logger      logrus.FieldLogger
}

// WithMapping overrides the column mapping.
func WithMapping(m Mapping) Option {
	return func(o *sourceOptions) { o.mapping = m }
}

// WithStatusField sets the JSON field SetStatus writes. Defaults to "status".
func WithStatusField(field string) Option {
	return func(o *sourceOptions) { o.statusField = field }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *sourceOptions) { o.logger = l }
}

// New wraps repo.
func New[T any](repo repository.Repository[T], opts ...Option) *Source[T] {
	o := sourceOptions{mapping: DefaultMapping(), statusField: listsync.DefaultStatusField}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return &Source[T]{repo: repo, mapping: o.mapping, statusField: o.statusField, logger: o.logger}
}

// List implements listsync.Lister. Pagination is derived from the total the
// repository reports.
func (s *Source[T]) List(ctx context.Context, q cache.QueryState) (listsync.ListResponse, error) {
	plan := s.mapping.PlanFor(q)

	records, total, err := s.repo.List(ctx, plan.Criteria()...)
	if err != nil {
		return listsync.ListResponse{}, err
	}

	items := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return listsync.ListResponse{}, fmt.Errorf("encode record: %w", err)
		}
		items = append(items, data)
	}

	return listsync.ListResponse{OK: true, Items: items, Pagination: paginate(q.Page, q.Limit, total)}, nil
}

func paginate(page, limit, total int) listsync.Pagination {
	if page < 1 {
		page = 1
	}
	pages := 1
	if limit > 0 && total > 0 {
		pages = (total + limit - 1) / limit
	}
	return listsync.Pagination{
		Page:        page,
		TotalPages:  pages,
		Total:       total,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}
}

// Create decodes payload into T and inserts it.
func (s *Source[T]) Create(ctx context.Context, payload any) (listsync.MutationResponse, error) {
	var rec T
	if err := merge(&rec, payload); err != nil {
		return listsync.MutationResponse{OK: false, Error: err.Error()}, nil
	}
	created, err := s.repo.Create(ctx, rec)
	return s.respond(created, err)
}

// Update loads id, overlays patch and saves the record.
func (s *Source[T]) Update(ctx context.Context, id string, patch any) (listsync.MutationResponse, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.respond(rec, err)
	}
	if err := merge(&rec, patch); err != nil {
		return listsync.MutationResponse{OK: false, Error: err.Error()}, nil
	}
	updated, err := s.repo.Update(ctx, rec)
	return s.respond(updated, err)
}

// SetStatus loads id, sets its status field and saves the record.
func (s *Source[T]) SetStatus(ctx context.Context, id, status string) (listsync.MutationResponse, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.respond(rec, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return listsync.MutationResponse{}, fmt.Errorf("encode record: %w", err)
	}
	if data, err = sjson.SetBytes(data, s.statusField, status); err != nil {
		return listsync.MutationResponse{}, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return listsync.MutationResponse{}, fmt.Errorf("decode record: %w", err)
	}

	updated, err := s.repo.Update(ctx, rec)
	return s.respond(updated, err)
}

func (s *Source[T]) respond(rec T, err error) (listsync.MutationResponse, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return listsync.MutationResponse{OK: false, Error: notFoundMessage}, nil
	}
	if err != nil {
		s.logger.WithError(err).Warn("repository write failed")
		return listsync.MutationResponse{}, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return listsync.MutationResponse{}, fmt.Errorf("encode record: %w", err)
	}
	return listsync.MutationResponse{OK: true, Item: data}, nil
}

// merge overlays the JSON form of v onto dst.
func merge(dst any, v any) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
