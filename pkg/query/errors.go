// ABOUTME: Sentinel errors returned by the query engine
// ABOUTME: Callers match them with errors.Is

package query

import "github.com/cockroachdb/errors"

var (
	// ErrCharacterNotFound indicates a character number absent from the matrix
	ErrCharacterNotFound = errors.New("query: character not found")

	// ErrUnsupportedValue indicates a filter value with no matching predicate
	ErrUnsupportedValue = errors.New("query: unsupported filter value")
)

func characterNotFound(number int) error {
	return errors.Wrapf(ErrCharacterNotFound, "character %d", number)
}
