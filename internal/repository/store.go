package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scope narrows a query; it composes with gorm's Scopes.
type Scope = func(*gorm.DB) *gorm.DB

// Store is the typed CRUD base shared by every entity repository. It is
// instantiated per entity type, e.g. Store[appointment.Appointment].
type Store[T any] struct {
	db       *gorm.DB
	notFound error
}

// NewStore maps gorm.ErrRecordNotFound to notFound on single-row lookups.
func NewStore[T any](db *gorm.DB, notFound error) *Store[T] {
	return &Store[T]{db: db, notFound: notFound}
}

func (s *Store[T]) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store[T]) Create(ctx context.Context, entity *T) error {
	return s.DB(ctx).Create(entity).Error
}

func (s *Store[T]) Save(ctx context.Context, entity *T) error {
	return s.DB(ctx).Save(entity).Error
}

func (s *Store[T]) GetByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*T, error) {
	return s.FindOne(ctx, append(scopes, ByID(id))...)
}

func (s *Store[T]) FindOne(ctx context.Context, scopes ...Scope) (*T, error) {
	var entity T
	if err := s.DB(ctx).Scopes(scopes...).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.notFound
		}
		return nil, err
	}
	return &entity, nil
}

func (s *Store[T]) FindMany(ctx context.Context, scopes ...Scope) ([]*T, error) {
	var entities []*T
	if err := s.DB(ctx).Scopes(scopes...).Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *Store[T]) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := s.DB(ctx).Model(new(T)).Scopes(scopes...).Count(&n).Error
	return n, err
}

// Delete removes every row matched by scopes. At least one scope is required
// so a missing filter can never wipe the table.
func (s *Store[T]) Delete(ctx context.Context, scopes ...Scope) (int64, error) {
	if len(scopes) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	res := s.DB(ctx).Scopes(scopes...).Delete(new(T))
	return res.RowsAffected, res.Error
}

// Update writes values to the rows matched by scopes and reports how many
// matched. Like Delete it refuses to run without a filter.
func (s *Store[T]) Update(ctx context.Context, values map[string]any, scopes ...Scope) (int64, error) {
	if len(scopes) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	res := s.DB(ctx).Model(new(T)).Scopes(scopes...).Updates(values)
	return res.RowsAffected, res.Error
}

// Transaction runs fn against a Store bound to a single transaction.
func (s *Store[T]) Transaction(ctx context.Context, fn func(tx *Store[T]) error) error {
	return s.DB(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store[T]{db: tx, notFound: s.notFound})
	})
}

func ByID(id uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func Where(query any, args ...any) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}

func OrderBy(value string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(value)
	}
}

// Page applies 1-based pagination.
func Page(page, size int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * size).Limit(size)
	}
}
