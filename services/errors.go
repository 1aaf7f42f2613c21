package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrorKind classifies pipeline failures for callers
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindIncompleteRecord  ErrorKind = "IncompleteRecord"
	KindPersistenceFailed ErrorKind = "PersistenceFailed"
)

// AnalysisError is the structured failure returned by every pipeline stage.
// BatchID and RecordID are uuid.Nil when unknown or not narrowed to one record.
type AnalysisError struct {
	Kind      ErrorKind
	Message   string
	BatchID   uuid.UUID
	RecordID  uuid.UUID
	Transient bool
	Attempts  int
	Err       error
}

func (e *AnalysisError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.RecordID != uuid.Nil {
		fmt.Fprintf(&b, " (record %s)", e.RecordID)
	}
	if e.BatchID != uuid.Nil {
		fmt.Fprintf(&b, " (batch %s)", e.BatchID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func incompleteRecord(recordID uuid.UUID, missing []string) *AnalysisError {
	return &AnalysisError{
		Kind:     KindIncompleteRecord,
		Message:  "missing required fields: " + strings.Join(missing, ", "),
		RecordID: recordID,
	}
}

// lookupFailed reports a reference-data read that failed before any write. Nothing was
// stored, so the batch may be retried as a whole.
func lookupFailed(batchID, recordID uuid.UUID, what string, err error) *AnalysisError {
	return &AnalysisError{
		Kind:      KindPersistenceFailed,
		Message:   what + " lookup failed",
		BatchID:   batchID,
		RecordID:  recordID,
		Transient: true,
		Err:       err,
	}
}

func persistenceFailed(batchID, recordID uuid.UUID, transient bool, attempts int, err error) *AnalysisError {
	msg := "batch write failed"
	if transient {
		msg = "batch write failed after retries"
	}
	return &AnalysisError{
		Kind:      KindPersistenceFailed,
		Message:   msg,
		BatchID:   batchID,
		RecordID:  recordID,
		Transient: transient,
		Attempts:  attempts,
		Err:       err,
	}
}

func isKind(err error, kind ErrorKind) bool {
	var ae *AnalysisError
	return errors.As(err, &ae) && ae.Kind == kind
}

func IsInvalidInput(err error) bool {
	return isKind(err, KindInvalidInput)
}

func IsIncompleteRecord(err error) bool {
	return isKind(err, KindIncompleteRecord)
}

func IsPersistenceFailed(err error) bool {
	return isKind(err, KindPersistenceFailed)
}
