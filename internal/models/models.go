package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind identifies the feed a file or record belongs to.
type RecordKind string

const (
	KindEquity  RecordKind = "equity"
	KindFutures RecordKind = "futures"
)

// Record is a parsed feed row ready to be persisted.
type Record interface {
	Kind() RecordKind
	Key() string
}

type EquityRecord struct {
	Symbol              string          `json:"symbol"`
	Series              string          `json:"series,omitempty"`
	Open                decimal.Decimal `json:"open"`
	High                decimal.Decimal `json:"high"`
	Low                 decimal.Decimal `json:"low"`
	Close               decimal.Decimal `json:"close"`
	TotalTradedQuantity int64           `json:"total_traded_quantity"`
	Timestamp           time.Time       `json:"timestamp"`
	TotalTrades         int64           `json:"total_trades"`
	RowKey              string          `json:"row_key,omitempty"`
}

func (r *EquityRecord) Kind() RecordKind { return KindEquity }
func (r *EquityRecord) Key() string      { return r.RowKey }

type FuturesRecord struct {
	Instrument           string          `json:"instrument"`
	Symbol               string          `json:"symbol"`
	ExpiryDate           time.Time       `json:"expiry_date"`
	Open                 decimal.Decimal `json:"open"`
	High                 decimal.Decimal `json:"high"`
	Low                  decimal.Decimal `json:"low"`
	Close                decimal.Decimal `json:"close"`
	Contracts            decimal.Decimal `json:"contracts"`
	OpenInterest         decimal.Decimal `json:"open_interest"`
	ChangeInOpenInterest decimal.Decimal `json:"change_in_open_interest"`
	Timestamp            time.Time       `json:"timestamp"`
	RowKey               string          `json:"row_key,omitempty"`
}

func (r *FuturesRecord) Kind() RecordKind { return KindFutures }
func (r *FuturesRecord) Key() string      { return r.RowKey }

// ErrorKind classifies where in the load a fault happened.
type ErrorKind string

const (
	ErrDirectoryList  ErrorKind = "directory-list"
	ErrFileOpen       ErrorKind = "file-open"
	ErrHeaderValidate ErrorKind = "header-validate"
	ErrRowParse       ErrorKind = "row-parse"
	ErrRowInsert      ErrorKind = "row-insert"
	ErrFileArchive    ErrorKind = "file-archive"
	ErrInterrupted    ErrorKind = "interrupted"
	ErrNoCollection   ErrorKind = "no-collection"
)

type LoadError struct {
	Kind    ErrorKind
	File    string
	Line    int
	Message string
	Err     error
	Record  Record
}

func NewLoadError(kind ErrorKind, file, message string, err error) *LoadError {
	return &LoadError{Kind: kind, File: file, Message: message, Err: err}
}

func (e *LoadError) Error() string {
	location := e.File
	if e.Line > 0 {
		location = fmt.Sprintf("%s:%d", e.File, e.Line)
	}

	var recordDetails string
	if e.Record != nil {
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			recordDetails = "failed to marshal record to JSON"
		} else {
			recordDetails = string(recordJSON)
		}
	}

	msg := fmt.Sprintf("[%s] %s: %s", e.Kind, location, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s - %v", msg, e.Err)
	}
	if recordDetails != "" {
		msg = fmt.Sprintf("%s - Record: %s", msg, recordDetails)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// MaxErrorsPerFile caps how many row-level failures are kept for a single file. Past that the
// file is probably malformed and the rest only add noise.
const MaxErrorsPerFile = 100

// FileResult is the outcome of processing one feed file.
type FileResult struct {
	File         string
	Kind         RecordKind
	Eligible     int
	Persisted    int
	Skipped      int
	InsertErrors []*LoadError
	Err          *LoadError
	Archived     bool
	Duration     time.Duration
}

func (r *FileResult) AddInsertError(err *LoadError) {
	if len(r.InsertErrors) < MaxErrorsPerFile {
		r.InsertErrors = append(r.InsertErrors, err)
	}
}

// Succeeded reports whether every eligible row was persisted and no file level fault happened.
// A valid file with zero eligible rows succeeds; a faulted file never does.
func (r *FileResult) Succeeded() bool {
	return r.Err == nil && r.Eligible == r.Persisted
}

// Status maps the result onto the ledger statuses.
func (r *FileResult) Status() string {
	switch {
	case r.Err != nil:
		return FILE_STATUS_FATAL
	case r.Eligible != r.Persisted:
		return FILE_STATUS_DONE_WITH_ERRORS
	default:
		return FILE_STATUS_DONE
	}
}

// Errors flattens the file and row faults into strings for the ledger.
func (r *FileResult) Errors() []string {
	errs := make([]string, 0, len(r.InsertErrors)+1)
	if r.Err != nil {
		errs = append(errs, r.Err.Error())
	}
	for _, err := range r.InsertErrors {
		if len(errs) >= MaxErrorsPerFile {
			break
		}
		errs = append(errs, err.Error())
	}
	return errs
}

const (
	FILE_STATUS_DONE             = "DONE"
	FILE_STATUS_DONE_WITH_ERRORS = "DONE_WITH_ERRORS"
	FILE_STATUS_FATAL            = "FATAL"
)

// FileRecord is the ledger entry written once per processed file.
type FileRecord struct {
	RunID       string     `json:"run_id"`
	FileName    string     `json:"file_name"`
	Kind        RecordKind `json:"kind"`
	Checksum    string     `json:"checksum"`
	Status      string     `json:"status"`
	Eligible    int        `json:"eligible"`
	Persisted   int        `json:"persisted"`
	Skipped     int        `json:"skipped"`
	Errors      []string   `json:"errors,omitempty"`
	ProcessedAt time.Time  `json:"processed_at"`
}

type RunSummary struct {
	RunID     string
	Pending   int
	Processed int
	Archived  int
	Failed    int
	Unrouted  int
	Eligible  int
	Persisted int
	Results   []FileResult
}

func (s *RunSummary) Add(result FileResult) {
	s.Processed++
	s.Eligible += result.Eligible
	s.Persisted += result.Persisted
	if result.Archived {
		s.Archived++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, result)
}
