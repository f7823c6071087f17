package contracts

import (
	"errors"
	"time"
)

var (
	// ErrResourceInProgress 의존 리소스가 아직 생성 중 (create 호출 거부)
	ErrResourceInProgress = errors.New("resource in progress")
	// ErrResourceNotFound 원격 리소스 없음
	ErrResourceNotFound = errors.New("resource not found")
	// ErrObjectNotFound object store 키 없음
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoRunID warehouse에 처리된 run이 없음
	ErrNoRunID = errors.New("no processed run found")
)

// ErrorKind 에러 분류
type ErrorKind string

const (
	ErrorFatalAlgorithm ErrorKind = "FATAL_ALGORITHM"
	ErrorFatalRun       ErrorKind = "FATAL_RUN"
	ErrorRecoverable    ErrorKind = "RECOVERABLE"
	ErrorWarning        ErrorKind = "WARNING"
)

// ErrorRecord 중앙 에러 로그 한 건
type ErrorRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Job       string    `json:"job"`
	Algorithm string    `json:"algorithm,omitempty"`
	Round     int       `json:"round,omitempty"` // 0 = 라운드 무관
	Kind      ErrorKind `json:"kind"`
	Key       string    `json:"key"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raised_at"`
}

// MaxErrorMessage 에러 메시지 저장 상한
const MaxErrorMessage = 900

// Truncated returns the message cut to the storage limit
func (r ErrorRecord) Truncated() string {
	if len(r.Message) <= MaxErrorMessage {
		return r.Message
	}
	return r.Message[:MaxErrorMessage]
}
