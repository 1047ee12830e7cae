package journal

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/erc7824/tokenkit/pkg/log"
)

var (
	ErrDuplicateEntry = stderrors.New("transaction already recorded")
	ErrNotFound       = stderrors.New("journal entry not found")
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// Store reads and writes journal entries.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and returns a store on it.
func Open(cnf DatabaseConfig, lg log.Logger) (*Store, error) {
	db, err := Connect(cnf, lg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal")
	}
	return NewStore(db), nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record inserts e. Recording the same hash twice fails with
// ErrDuplicateEntry.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	err := s.db.WithContext(ctx).Create(e).Error
	if isDuplicate(err) {
		return errors.Wrapf(ErrDuplicateEntry, "hash %s", e.Hash)
	}
	if err != nil {
		return errors.Wrap(err, "failed to record journal entry")
	}
	return nil
}

// Get returns the entry for a transaction hash.
func (s *Store) Get(ctx context.Context, hash string) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("tx_hash = ?", common.HexToHash(hash).Hex()).First(&e).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "hash %s", hash)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get journal entry")
	}
	return &e, nil
}

// ListOptions filters List. Zero values match everything.
type ListOptions struct {
	From    string
	ChainID uint64
	// Limit defaults to 20 and is capped at 1000.
	Limit int
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.db.WithContext(ctx).Model(&Entry{})
	if opts.From != "" {
		q = q.Where("from_address = ?", common.HexToAddress(opts.From).Hex())
	}
	if opts.ChainID != 0 {
		q = q.Where("chain_id = ?", opts.ChainID)
	}

	var entries []Entry
	if err := q.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list journal entries")
	}
	return entries, nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
