package txstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/unioproject/tanglewallet/lib/transfers"
	_ "modernc.org/sqlite"
)

// Store keeps transaction pools of accounts between runs
type Store struct {
	db *sql.DB
}

const sqlCreateTable = `CREATE TABLE IF NOT EXISTS transactions (
	account TEXT NOT NULL,
	hash TEXT NOT NULL,
	bundle TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (account, hash)
)`

func Open(dbPathName string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPathName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %v", dbPathName)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(sqlCreateTable); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to create table in %v", dbPathName)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored pool of the account
func (s *Store) Load(ctx context.Context, account string) ([]transfers.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM transactions WHERE account = ? ORDER BY bundle, hash", account)
	if err != nil {
		return nil, errors.Wrapf(err, "load %v", account)
	}
	defer rows.Close()

	ret := make([]transfers.Transaction, 0)
	for rows.Next() {
		var data string
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		var tx transfers.Transaction
		if err = json.Unmarshal([]byte(data), &tx); err != nil {
			return nil, errors.Wrap(transfers.ErrInvalidTransactionsProvided, err.Error())
		}
		ret = append(ret, tx)
	}
	return ret, rows.Err()
}

// Replace atomically substitutes the stored pool of the account
func (s *Store) Replace(ctx context.Context, account string, txs []transfers.Transaction) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = replace(ctx, dbtx, account, txs); err != nil {
		dbtx.Rollback()
		return errors.Wrapf(err, "replace %v", account)
	}
	return dbtx.Commit()
}

func replace(ctx context.Context, dbtx *sql.Tx, account string, txs []transfers.Transaction) error {
	if _, err := dbtx.ExecContext(ctx, "DELETE FROM transactions WHERE account = ?", account); err != nil {
		return err
	}
	stmt, err := dbtx.PrepareContext(ctx, "INSERT OR REPLACE INTO transactions (account, hash, bundle, data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range txs {
		data, err := json.Marshal(&txs[i])
		if err != nil {
			return err
		}
		if _, err = stmt.ExecContext(ctx, account, txs[i].Hash, txs[i].Bundle, string(data)); err != nil {
			return err
		}
	}
	return nil
}
