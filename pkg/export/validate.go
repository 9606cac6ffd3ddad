package export

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
)

// Input bounds.
const (
	MaxCredentialLength = 512
	MinPage             = 1
	MaxPage             = 10000
	MinPageSize         = 1
	MaxPageSize         = 200
)

var (
	tenantPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,62}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,127}$`)
)

// Validate checks an export request.
func (r Request) Validate() error {
	if err := ValidateAccess(r.Credentials, r.Version); err != nil {
		return err
	}
	if !identifierPattern.MatchString(r.Entity) {
		return invalid("entity", "must be an identifier of at most 128 characters")
	}
	if r.Schema != "" && !identifierPattern.MatchString(r.Schema) {
		return invalid("schema", "must be an identifier of at most 128 characters")
	}
	return nil
}

// Validate checks a single-page request including its pagination bounds.
func (r PageRequest) Validate() error {
	if err := r.Request.Validate(); err != nil {
		return err
	}
	if r.Page < MinPage || r.Page > MaxPage {
		return invalid("page", "must be between 1 and 10000")
	}
	if r.PageSize < MinPageSize || r.PageSize > MaxPageSize {
		return invalid("page_size", "must be between 1 and 200")
	}
	return nil
}

// ValidateAccess checks the credentials and protocol version shared by every
// inbound operation.
func ValidateAccess(creds docapi.Credentials, version docapi.Version) error {
	if !tenantPattern.MatchString(creds.TenantID) {
		return invalid("tenant_id", "must be 1-63 alphanumeric or '-' characters")
	}
	if err := validateCredential("access_key", creds.AccessKey); err != nil {
		return err
	}
	if err := validateCredential("access_secret", creds.AccessSecret); err != nil {
		return err
	}
	if !version.Valid() {
		return invalid("version", "must be v1 or v2")
	}
	return nil
}

func validateCredential(field, value string) error {
	if value == "" {
		return invalid(field, "is required")
	}
	if !utf8.ValidString(value) {
		return invalid(field, "must be valid UTF-8")
	}
	if utf8.RuneCountInString(value) > MaxCredentialLength {
		return invalid(field, "must not exceed 512 characters")
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return invalid(field, "must not contain control characters")
		}
	}
	return nil
}
