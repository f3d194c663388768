package ledger

import (
	"errors"
	"time"
)

// DefaultRetention is how long a claim blocks re-processing of a link.
const DefaultRetention = 7 * 24 * time.Hour

// ErrEmptyLink is returned for blank links.
var ErrEmptyLink = errors.New("ledger: empty link")
