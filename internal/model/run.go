package model

import "time"

// RunStatus summarises one conflict resolver run. It is written as the status
// file read by the health endpoint and kept as run history in SQLite.
type RunStatus struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	DryRun             bool      `json:"dry_run"`
	Users              int       `json:"users"`
	FilesScanned       int       `json:"files_scanned"`
	FilesArchived      int       `json:"files_archived"`
	FilesSkipped       int       `json:"files_skipped"`
	TransactionsMerged int       `json:"transactions_merged"`
	AmountMerged       int64     `json:"amount_merged"`
	Errors             []string  `json:"errors"`
	Success            bool      `json:"success"`
}
