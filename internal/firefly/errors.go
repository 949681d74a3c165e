package firefly

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// APIError is a non-2xx response from the remote API, with the decoded
// validation payload when the body carried one.
type APIError struct {
	StatusCode int
	Message    string              `json:"message"`
	Errors     map[string][]string `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("firefly: API returned %d: %s", e.StatusCode, e.Message)
	}
	fields := make([]string, 0, len(e.Errors))
	for field, msgs := range e.Errors {
		fields = append(fields, field+": "+strings.Join(msgs, "; "))
	}
	sort.Strings(fields)
	return fmt.Sprintf("firefly: API returned %d: %s (%s)", e.StatusCode, e.Message, strings.Join(fields, ", "))
}

// IsServerError reports whether the error is a 5xx API response.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

var (
	duplicateMsgRe  = regexp.MustCompile(`^Duplicate of transaction #([0-9]+)\.$`)
	txDescriptionRe = regexp.MustCompile(`^transactions\.[0-9]+\.description$`)
)

// DuplicateTransactionIDs inspects a transaction-store validation error. When
// every reported error is a "Duplicate of transaction #N." message on a
// transaction description field, the upload is a clean re-run of an already
// imported group and it returns the remote ids. Any other validation error
// means the payload is genuinely broken.
func DuplicateTransactionIDs(err error) ([]string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Errors) == 0 {
		return nil, false
	}
	var ids []string
	for field, msgs := range apiErr.Errors {
		if !txDescriptionRe.MatchString(field) {
			return nil, false
		}
		for _, msg := range msgs {
			m := duplicateMsgRe.FindStringSubmatch(msg)
			if m == nil {
				return nil, false
			}
			ids = append(ids, m[1])
		}
	}
	return ids, true
}
