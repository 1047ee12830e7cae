package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erc7824/tokenkit/pkg/txsigner"
)

// Entry is one broadcast transaction.
type Entry struct {
	ID             uint            `gorm:"primaryKey"`
	Hash           string          `gorm:"column:tx_hash;not null;uniqueIndex:idx_journal_entries_hash"`
	From           string          `gorm:"column:from_address;not null;index:idx_journal_entries_from"`
	To             string          `gorm:"column:to_address;not null;default:''"`
	Nonce          uint64          `gorm:"column:nonce;not null"`
	ChainID        uint64          `gorm:"column:chain_id;not null;index:idx_journal_entries_chain"`
	Value          decimal.Decimal `gorm:"column:value_wei;type:varchar(80);not null"`
	SignerKind     string          `gorm:"column:signer_kind;not null"`
	RawTransaction string          `gorm:"column:raw_tx;not null"`
	CreatedAt      time.Time
}

func (Entry) TableName() string {
	return "journal_entries"
}

// ValueEther is the transferred value in ether.
func (e Entry) ValueEther() decimal.Decimal {
	return e.Value.Shift(-18)
}

// EntryFromPending builds the journal entry for a transaction a signer of
// the given kind has just broadcast.
func EntryFromPending(kind txsigner.Kind, pending *txsigner.PendingTransaction) (*Entry, error) {
	if pending == nil || pending.Tx == nil || pending.Signed == nil {
		return nil, fmt.Errorf("incomplete pending transaction")
	}
	tx := pending.Tx

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	if !tx.ChainId().IsUint64() {
		return nil, fmt.Errorf("chain id %s out of range", tx.ChainId())
	}

	return &Entry{
		Hash:           pending.Hash.Hex(),
		From:           pending.From.Hex(),
		To:             to,
		Nonce:          tx.Nonce(),
		ChainID:        tx.ChainId().Uint64(),
		Value:          decimal.NewFromBigInt(tx.Value(), 0),
		SignerKind:     string(kind),
		RawTransaction: pending.Signed.RawTransaction,
	}, nil
}

