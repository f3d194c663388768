package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded marks a generation/research failure caused by an
	// exhausted usage quota. It aborts the remaining batch.
	ErrQuotaExceeded = errors.New("generation quota exceeded")
	// ErrEmptyResearch is returned when research produced no usable result.
	ErrEmptyResearch = errors.New("research returned no result")
	// ErrInvalidBatchSize is returned when selection is asked for k <= 0.
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	// ErrRankerUnavailable is returned when no ranking capability is wired.
	ErrRankerUnavailable = errors.New("ranking capability unavailable")
	// ErrEmptyRanking is returned when the ranker answered with no candidates.
	ErrEmptyRanking = errors.New("ranker returned no candidates")
	// ErrEmptyContent is returned when nothing is left of the scraped text
	// after sanitizing.
	ErrEmptyContent = errors.New("scraped content is empty")
)

// Stage names a step of the per-item pipeline.
type Stage string

const (
	StageClaim       Stage = "claim"
	StageDuplicate   Stage = "duplicate_check"
	StageScrape      Stage = "scrape"
	StageSponsor     Stage = "sponsor_check"
	StageResearch    Stage = "research"
	StageTitle       Stage = "title_optimize"
	StageLead        Stage = "lead_write"
	StageDraft       Stage = "draft"
	StageSEO         Stage = "seo_enhance"
	StageStyle       Stage = "style_polish"
	StageInternalLnk Stage = "internal_links"
	StageExternalLnk Stage = "external_links"
	StageCover       Stage = "cover_select"
	StagePublish     Stage = "publish"
	StageIndex       Stage = "index"
	StageDistribute  Stage = "distribute"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// WrapStage returns nil for a nil err, otherwise a *StageError.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf extracts the failing stage from err, or "" when untagged.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsQuotaExceeded reports whether err carries the quota-exhaustion signal.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
