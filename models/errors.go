package models

import (
	"errors"
)

var (
	ErrNoOptions          = errors.New("no initialized model options")
	ErrTargetLenMismatch  = errors.New("target length does not match target rows")
	ErrNoTrainingMatrix   = errors.New("no training matrix")
	ErrNoTargetMatrix     = errors.New("no target matrix")
	ErrNoDesignMatrix     = errors.New("no design matrix for inference")
	ErrFeatureLenMismatch = errors.New("number of features does not match number of model coefficients")
	ErrEmptyTrainingSet   = errors.New("training matrix has no rows")
	ErrUnderdetermined    = errors.New("fewer observations than coefficients")
	ErrNotFitted          = errors.New("model has not been fitted")
	ErrInvalidDepth       = errors.New("max depth must be positive")
	ErrInvalidRounds      = errors.New("number of trees or boosting rounds must be positive")
	ErrInvalidRate        = errors.New("learning rate must be in (0, 1]")
	ErrInvalidFraction    = errors.New("sampling fraction must be in (0, 1]")
	ErrNegativePenalty    = errors.New("negative regularization penalty")
	ErrUnknownLoss        = errors.New("unknown loss function")
)
