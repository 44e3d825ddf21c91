package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoPortalURL is returned when the county portal search URL is not set
	// in the config file or LEADSCAN_PORTAL_URL.
	ErrNoPortalURL = errors.New("no portal search URL: set portal.search_url in the config file or LEADSCAN_PORTAL_URL")

	// ErrInvalidRange is returned when --from is after --to.
	ErrInvalidRange = errors.New("invalid date range: --from is after --to")

	// ErrInvalidLimit is returned when the record limit is negative.
	ErrInvalidLimit = errors.New("invalid limit: must be non-negative")

	// ErrInvalidStrategy is returned for an unknown --strategy value.
	ErrInvalidStrategy = errors.New("invalid strategy: must be auto, direct or browser")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when any timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidContactDelay is returned when the contact delay bounds are
	// negative or reversed.
	ErrInvalidContactDelay = errors.New("invalid contact delay: min must be non-negative and not above max")

	// ErrInvalidSkipRecent is returned when the skip window is negative.
	ErrInvalidSkipRecent = errors.New("invalid skip-recent window: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
