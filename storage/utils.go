package storage

import (
	"fmt"
)

const DbCreateSettings string = "CREATE TABLE IF NOT EXISTS settings (name VARCHAR[24] NOT NULL PRIMARY KEY, value TEXT);"

const DbCreateIOUs string = `CREATE TABLE IF NOT EXISTS ious (token_network TEXT NOT NULL, receiver TEXT NOT NULL,
amount TEXT NOT NULL, data JSON, PRIMARY KEY(token_network, receiver));`

const DbCreateBalanceProofs string = `CREATE TABLE IF NOT EXISTS balance_proofs (identifier INTEGER PRIMARY KEY AUTOINCREMENT,
token_network TEXT NOT NULL, channel_id INTEGER NOT NULL, sender TEXT NOT NULL, balance_hash TEXT NOT NULL,
direction TEXT NOT NULL, data JSON, UNIQUE(token_network, channel_id, sender, balance_hash));`

const DbScriptCreateTables string = `PRAGMA foreign_keys=off;
BEGIN TRANSACTION;
%s%s%s
COMMIT;
PRAGMA foreign_keys=on;
`

func GetDbScriptCreateTables() string {
	return fmt.Sprintf(DbScriptCreateTables, DbCreateSettings, DbCreateIOUs, DbCreateBalanceProofs)
}
