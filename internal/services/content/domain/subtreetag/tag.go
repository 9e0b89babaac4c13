// Package subtreetag implements subtree tags: short labels granted on an
// aggregate over an explicit set of dimension space points.
//
// A grant is keyed by (aggregate, tag, point). Untagging revokes only the
// named aggregate's grants at the named points; grants of the same tag on
// descendants are independent. Inheritance is computed by read models at
// query time, never stored per descendant.
package subtreetag

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

// ErrInvalidTag indicates a malformed subtree tag.
var ErrInvalidTag = apperrors.New(apperrors.CodeInvalidSubtreeTag, "invalid subtree tag")

var tagPattern = regexp.MustCompile(`^[a-z0-9_.-]{1,36}$`)

// Tag is a validated subtree tag.
type Tag string

// ParseTag validates value as a tag.
func ParseTag(value string) (Tag, error) {
	if !tagPattern.MatchString(value) {
		return "", apperrors.WrapWithMetadata(apperrors.CodeInvalidSubtreeTag,
			fmt.Sprintf("invalid subtree tag %q", value),
			map[string]string{"tag": value}, ErrInvalidTag)
	}
	return Tag(value), nil
}

// MustTag is ParseTag for constants; it panics on invalid input.
func MustTag(value string) Tag {
	tag, err := ParseTag(value)
	if err != nil {
		panic(err)
	}
	return tag
}

func (t Tag) String() string { return string(t) }

// Tags is an immutable sorted set of tags.
type Tags struct {
	tags []Tag
}

// NewTags builds a set from tags, dropping duplicates.
func NewTags(tags ...Tag) Tags {
	if len(tags) == 0 {
		return Tags{}
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:1]
	for _, tag := range sorted[1:] {
		if tag != out[len(out)-1] {
			out = append(out, tag)
		}
	}
	return Tags{tags: out}
}

// ParseTags validates every value.
func ParseTags(values ...string) (Tags, error) {
	tags := make([]Tag, 0, len(values))
	for _, value := range values {
		tag, err := ParseTag(value)
		if err != nil {
			return Tags{}, err
		}
		tags = append(tags, tag)
	}
	return NewTags(tags...), nil
}

// All returns the tags in ascending order.
func (t Tags) All() []Tag { return append([]Tag(nil), t.tags...) }

// Len returns the number of tags.
func (t Tags) Len() int { return len(t.tags) }

// IsEmpty reports whether the set has no tags.
func (t Tags) IsEmpty() bool { return len(t.tags) == 0 }

// Contains reports whether tag is in the set.
func (t Tags) Contains(tag Tag) bool {
	i := sort.Search(len(t.tags), func(i int) bool { return t.tags[i] >= tag })
	return i < len(t.tags) && t.tags[i] == tag
}

// With returns the set plus tag.
func (t Tags) With(tag Tag) Tags {
	if t.Contains(tag) {
		return t
	}
	return NewTags(append(t.All(), tag)...)
}

// Without returns the set minus tag.
func (t Tags) Without(tag Tag) Tags {
	out := make([]Tag, 0, len(t.tags))
	for _, existing := range t.tags {
		if existing != tag {
			out = append(out, existing)
		}
	}
	return Tags{tags: out}
}

// Union returns the tags in either set.
func (t Tags) Union(other Tags) Tags {
	return NewTags(append(t.All(), other.tags...)...)
}

// Equal reports whether both sets hold the same tags.
func (t Tags) Equal(other Tags) bool {
	if len(t.tags) != len(other.tags) {
		return false
	}
	for i := range t.tags {
		if t.tags[i] != other.tags[i] {
			return false
		}
	}
	return true
}

// Strings returns the tags as strings.
func (t Tags) Strings() []string {
	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		out[i] = string(tag)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (t Tags) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Strings())
}

// UnmarshalJSON decodes and validates an array of tags.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	parsed, err := ParseTags(values...)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
