package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/socialbbs/access"
)

// Entity is a persisted resource addressable by primary key.
type Entity interface {
	access.Resource
	EntityID() uint
}

// Elevator runs units of work with the write capability of another actor.
type Elevator struct {
	db     *gorm.DB
	access *access.Checker
}

// NewElevator creates an Elevator that checks writes with ch.
func NewElevator(db *gorm.DB, ch *access.Checker) *Elevator {
	return &Elevator{db: db, access: ch}
}

// RunAs executes work inside a savepoint of tx (or a fresh transaction when
// tx is nil) as actor as. The scope handed to work is only valid until work
// returns; an error from work rolls back the savepoint and is returned as is.
func (e *Elevator) RunAs(ctx context.Context, tx *gorm.DB, as access.Actor, work func(s *Scope) error) error {
	if tx == nil {
		tx = e.db
	}
	scope := &Scope{actor: as, access: e.access, ctx: ctx}
	defer scope.close()

	return tx.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		scope.tx = inner
		return work(scope)
	})
}

// Scope is the write handle of one elevated unit of work.
type Scope struct {
	ctx    context.Context
	tx     *gorm.DB
	actor  access.Actor
	access *access.Checker
	closed bool
}

// Actor is the identity the scope writes as.
func (s *Scope) Actor() access.Actor {
	return s.actor
}

// DB returns the transaction handle for reads inside the scope.
func (s *Scope) DB() *gorm.DB {
	if s.closed {
		return nil
	}
	return s.tx
}

func (s *Scope) close() {
	s.closed = true
	s.tx = nil
}

func (s *Scope) authorize(e Entity) error {
	if s.closed {
		return ErrScopeClosed
	}
	if !s.access.CanEdit(s.ctx, s.actor, e) {
		return fmt.Errorf("elevated write to %T %d as %d: %w", e, e.EntityID(), s.actor.ID, ErrUnauthorized)
	}
	return nil
}

// Increment adds delta to an integer column of e, clamping the result at zero.
// column must be a trusted column name.
func (s *Scope) Increment(e Entity, column string, delta int64) error {
	if err := s.authorize(e); err != nil {
		return err
	}
	expr := gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
	return s.tx.Model(e).Omit(clause.Associations).Where("id = ?", e.EntityID()).UpdateColumn(column, expr).Error
}

// Update writes the given columns of e.
func (s *Scope) Update(e Entity, values map[string]any) error {
	if err := s.authorize(e); err != nil {
		return err
	}
	return s.tx.Model(e).Omit(clause.Associations).Where("id = ?", e.EntityID()).UpdateColumns(values).Error
}
