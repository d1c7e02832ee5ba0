package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrTxActive  = errors.New("transaction already in progress")
	ErrNoTx      = errors.New("no transaction in progress")
)

// translateError maps gorm sentinels onto the package's own so callers
// never need to import gorm to classify a failure.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// Factory hands out units of work backed by one connection pool.
type Factory struct {
	db *gorm.DB
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// New returns a unit of work bound to ctx. Callers must defer Close.
func (f *Factory) New(ctx context.Context) *UnitOfWork {
	u := &UnitOfWork{db: f.db.WithContext(ctx)}
	u.Users = &UsersRepository{uow: u}
	u.UserEmails = &UserEmailsRepository{uow: u}
	u.Organizations = &OrganizationsRepository{uow: u}
	u.Roles = &RolesRepository{uow: u}
	return u
}

// Transact runs fn inside a transaction on a fresh unit of work, committing
// when fn returns nil and rolling back otherwise.
func (f *Factory) Transact(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	uow := f.New(ctx)
	defer uow.Close()

	if err := uow.Begin(); err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}

// UnitOfWork is a database session exposing the repositories. Until Begin is
// called every repository call runs on its own; between Begin and
// Commit/Rollback they all share a single transaction.
type UnitOfWork struct {
	db *gorm.DB
	tx *gorm.DB

	Users         *UsersRepository
	UserEmails    *UserEmailsRepository
	Organizations *OrganizationsRepository
	Roles         *RolesRepository
}

func (u *UnitOfWork) conn() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UnitOfWork) InTransaction() bool {
	return u.tx != nil
}

func (u *UnitOfWork) Begin() error {
	if u.tx != nil {
		return ErrTxActive
	}
	tx := u.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("beginning transaction: %w", tx.Error)
	}
	u.tx = tx
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return ErrNoTx
	}
	tx := u.tx
	u.tx = nil
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("committing transaction: %w", translateError(err))
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	tx := u.tx
	u.tx = nil
	if err := tx.Rollback().Error; err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// Close releases the unit of work, rolling back anything left uncommitted.
func (u *UnitOfWork) Close() {
	_ = u.Rollback()
}
