package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData 최소 관측치 미달 (라운드 1 시작 전 실패)
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrRemoteJobFailed 원격 작업이 재시도 후에도 CREATE_FAILED 또는 stuck
	ErrRemoteJobFailed = errors.New("remote job failed")
	// ErrAllAlgorithmsFailed 모든 알고리즘 실패
	ErrAllAlgorithmsFailed = errors.New("all algorithms failed")
	// ErrUnknownAlgorithm 설정에 없는 알고리즘
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// Stage 라운드 내 단계
type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageGroup     Stage = "dataset_group"
	StageDataset   Stage = "dataset"
	StageImport    Stage = "import"
	StagePredictor Stage = "predictor"
	StageForecast  Stage = "forecast"
	StageExport    Stage = "export"
	StageMerge     Stage = "merge"
)

// Retryable reports whether the stage gets the single stuck/busy retry
func (s Stage) Retryable() bool {
	return s == StagePredictor || s == StageForecast
}

// RoundError a fatal failure inside one round
type RoundError struct {
	Algorithm string
	Round     int
	Stage     Stage
	Err       error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("algorithm %s round %d %s: %v", e.Algorithm, e.Round, e.Stage, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// RoundOf returns the round index carried by err, 0 if none
func RoundOf(err error) int {
	var re *RoundError
	if errors.As(err, &re) {
		return re.Round
	}
	return 0
}
