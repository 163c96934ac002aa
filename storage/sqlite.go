package storage

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/pfs"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

const ChannelDbVersion int = 1

// Direction tells whether a stored balance proof was produced by us or
// received from the partner.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// SQLiteStorage keeps the IOUs paid to services and every balance proof
// sent or received, so settlement can recover one matching an on-chain hash.
type SQLiteStorage struct {
	conn      *sql.DB
	writeLock sync.Mutex
}

func NewSQLiteStorage(databasePath string) (*SQLiteStorage, error) {
	self := new(SQLiteStorage)
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	conn, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, err
	}

	if _, err = conn.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err = conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	self.conn = conn

	if _, err = self.conn.Exec(GetDbScriptCreateTables()); err != nil {
		conn.Close()
		return nil, err
	}
	if err = self.runUpdates(); err != nil {
		conn.Close()
		return nil, err
	}
	return self, nil
}

func (self *SQLiteStorage) runUpdates() error {
	stmt, err := self.conn.Prepare("INSERT OR REPLACE INTO settings(name, value) VALUES(?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec("version", ChannelDbVersion)
	return err
}

func (self *SQLiteStorage) GetVersion() int {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	var versionStr string
	err := self.conn.QueryRow("SELECT value FROM settings WHERE name=?", "version").Scan(&versionStr)
	if err != nil {
		return ChannelDbVersion
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return ChannelDbVersion
	}
	return version
}

func (self *SQLiteStorage) Close() error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	return self.conn.Close()
}

// GetIOU returns nil when no IOU is stored for the pair.
func (self *SQLiteStorage) GetIOU(tokenNetwork common.TokenNetworkID, receiver common.Address) (*pfs.IOU, error) {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	return self.getIOU(tokenNetwork, receiver)
}

func (self *SQLiteStorage) getIOU(tokenNetwork common.TokenNetworkID, receiver common.Address) (*pfs.IOU, error) {
	var data []byte
	err := self.conn.QueryRow("SELECT data FROM ious WHERE token_network=? AND receiver=?",
		tokenNetwork.Hex(), receiver.Hex()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	iou := new(pfs.IOU)
	if err = json.Unmarshal(data, iou); err != nil {
		return nil, err
	}
	return iou, nil
}

// PutIOU persists iou unless its amount is below the stored one.
func (self *SQLiteStorage) PutIOU(tokenNetwork common.TokenNetworkID, iou *pfs.IOU) error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	last, err := self.getIOU(tokenNetwork, iou.Receiver)
	if err != nil {
		return err
	}
	if last != nil && iou.Amount.Cmp(last.Amount) < 0 {
		return errors.ErrIOUDecrease.Newf("iou for %s from %s to %s", iou.Receiver.Hex(), last.Amount, iou.Amount)
	}
	data, err := json.Marshal(iou)
	if err != nil {
		return err
	}
	_, err = self.conn.Exec("INSERT OR REPLACE INTO ious(token_network, receiver, amount, data) VALUES(?, ?, ?, ?)",
		tokenNetwork.Hex(), iou.Receiver.Hex(), iou.Amount.String(), data)
	if err != nil {
		return err
	}
	log.Debugf("[PutIOU] %s to %s amount %s", tokenNetwork.Hex(), iou.Receiver.Hex(), iou.Amount)
	return nil
}

func (self *SQLiteStorage) ClearIOU(tokenNetwork common.TokenNetworkID, receiver common.Address) error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	_, err := self.conn.Exec("DELETE FROM ious WHERE token_network=? AND receiver=?", tokenNetwork.Hex(), receiver.Hex())
	return err
}

// PutBalanceProof records bp. Storing the same proof twice is a no-op.
func (self *SQLiteStorage) PutBalanceProof(direction Direction, bp *transfer.BalanceProofSignedState) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return err
	}
	balanceHash := bp.BalanceHash()

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	_, err = self.conn.Exec(`INSERT OR IGNORE INTO balance_proofs(token_network, channel_id, sender, balance_hash,
direction, data) VALUES(?, ?, ?, ?, ?, ?)`, bp.TokenNetwork.Hex(), uint64(bp.ChannelIdentifier),
		bp.Sender.Hex(), balanceHash.Hex(), string(direction), data)
	return err
}

// GetBalanceProofByHash returns the proof sender signed for the channel
// whose balance hash is balanceHash, or nil when none was stored.
func (self *SQLiteStorage) GetBalanceProofByHash(tokenNetwork common.TokenNetworkID, channelId common.ChannelID,
	sender common.Address, balanceHash common.BalanceHash) (*transfer.BalanceProofSignedState, error) {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	var data []byte
	err := self.conn.QueryRow(`SELECT data FROM balance_proofs WHERE token_network=? AND channel_id=? AND sender=?
AND balance_hash=? ORDER BY identifier DESC LIMIT 1`, tokenNetwork.Hex(), uint64(channelId), sender.Hex(),
		balanceHash.Hex()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bp := new(transfer.BalanceProofSignedState)
	if err = json.Unmarshal(data, bp); err != nil {
		return nil, err
	}
	return bp, nil
}
