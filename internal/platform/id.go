package platform

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TokenPrefix marks human-readable backup job tokens.
const TokenPrefix = "bkp_"

func NewID() string {
	return uuid.New().String()
}

// NewToken returns a sortable, human-readable job token such as
// bkp_01j9z3k6v8q2f7x0m4n5c1d2e3.
func NewToken() string {
	return TokenPrefix + strings.ToLower(ulid.Make().String())
}
