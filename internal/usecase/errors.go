package usecase

import "errors"

var errEmptySummary = errors.New("enricher returned an empty summary")
