package upload

import (
	"regexp"

	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// fatalCodes match SQLSTATE classes a retry can never fix: data exceptions
// (22), integrity constraint violations (23) and insufficient privilege.
var fatalCodes = []*regexp.Regexp{
	regexp.MustCompile(`^22...$`),
	regexp.MustCompile(`^23...$`),
	regexp.MustCompile(`^42501$`),
}

// IsFatal reports whether a remote SQLSTATE code means the transaction must
// be discarded rather than retried.
func IsFatal(code string) bool {
	for _, re := range fatalCodes {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}

// IsFatalError applies IsFatal to the code of a remote rejection. Errors that
// carry no code, including cancellation and network failures, are retryable.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	return IsFatal(remote.CodeOf(err))
}
