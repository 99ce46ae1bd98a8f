package docstore

import (
	"fmt"
	"strings"

	"github.com/dukerupert/pawlog/internal/common"
)

// Path addresses one document: {owner}/{collection}/{id}.
type Path struct {
	Owner      string
	Collection string
	ID         string
}

// Doc is shorthand for building a Path.
func Doc(owner, collection, id string) Path {
	return Path{Owner: owner, Collection: collection, ID: id}
}

// ParsePath parses "owner/collection/id".
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Path{}, common.Invalid("path", fmt.Sprintf("%q must have the form owner/collection/id", s))
	}
	p := Path{Owner: parts[0], Collection: parts[1], ID: parts[2]}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}

func (p Path) String() string {
	return p.Owner + "/" + p.Collection + "/" + p.ID
}

// CollectionKey identifies the collection the document lives in.
func (p Path) CollectionKey() string {
	return collectionKey(p.Owner, p.Collection)
}

// Validate rejects empty segments and segments containing a slash.
func (p Path) Validate() error {
	if err := validateSegment("owner", p.Owner); err != nil {
		return err
	}
	if err := validateSegment("collection", p.Collection); err != nil {
		return err
	}
	return validateSegment("id", p.ID)
}

func validateSegment(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return common.Invalid(name, "is required")
	}
	if strings.Contains(v, "/") {
		return common.Invalid(name, "must not contain '/'")
	}
	return nil
}

func collectionKey(owner, collection string) string {
	return owner + "/" + collection
}
