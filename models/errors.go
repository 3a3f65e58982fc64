package models

import "errors"

// Error kinds. Wrap with fmt.Errorf("%w: ...", Kind) and test with errors.Is.
var (
	ErrConfig          = errors.New("config error")
	ErrExternalService = errors.New("external service error")
	ErrAuthentication  = errors.New("authentication error")
	ErrEnrichment      = errors.New("enrichment error")
	ErrPersistence     = errors.New("persistence error")
)
