package journal

import (
	"database/sql"

	"github.com/HerbHall/turbinewatch/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create journal tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS journal_cycles (
						id           TEXT PRIMARY KEY,
						source       TEXT NOT NULL DEFAULT '',
						timestamp    DATETIME NOT NULL,
						health       TEXT NOT NULL,
						risk         TEXT NOT NULL,
						summary      TEXT NOT NULL DEFAULT '',
						alarms       INTEGER NOT NULL DEFAULT 0,
						warnings     INTEGER NOT NULL DEFAULT 0,
						faults       INTEGER NOT NULL DEFAULT 0,
						predictions  INTEGER NOT NULL DEFAULT 0,
						points       INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_cycles_timestamp ON journal_cycles(timestamp)`,

					`CREATE TABLE IF NOT EXISTS journal_faults (
						id              TEXT PRIMARY KEY,
						cycle_id        TEXT NOT NULL,
						point_id        TEXT NOT NULL,
						detected_at     DATETIME NOT NULL,
						value           REAL NOT NULL,
						alarm_level     TEXT NOT NULL,
						signature       TEXT NOT NULL,
						should_escalate INTEGER NOT NULL DEFAULT 0,
						signals         TEXT NOT NULL DEFAULT '[]',
						report          TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_faults_point ON journal_faults(point_id, detected_at)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_faults_detected ON journal_faults(detected_at)`,

					`CREATE TABLE IF NOT EXISTS journal_escalations (
						id           TEXT PRIMARY KEY,
						fault_id     TEXT NOT NULL,
						point_id     TEXT NOT NULL,
						signature    TEXT NOT NULL,
						outcome      TEXT NOT NULL,
						attempts     INTEGER NOT NULL DEFAULT 0,
						report       TEXT NOT NULL DEFAULT '',
						error        TEXT NOT NULL DEFAULT '',
						finished_at  DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_escalations_finished ON journal_escalations(finished_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
