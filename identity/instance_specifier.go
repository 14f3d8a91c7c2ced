package identity

import (
	"fmt"
	"strings"

	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// InstanceSpecifier is a validated meta-model shortname used to look up
// configured deployments. It is a thin wrapper over string
// so that a validated specifier can't be constructed except through
// NewInstanceSpecifier.
type InstanceSpecifier struct {
	value string
}

func isSpecifierHead(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_' || b == '/'
}

func isSpecifierTail(b byte) bool {
	return isSpecifierHead(b) || (b >= '0' && b <= '9')
}

// NewInstanceSpecifier accepts only strings matching
// [A-Za-z_/][A-Za-z_/0-9]* with no duplicate or trailing '/'; anything else
// fails with ErrInvalidMetaModelShortname.
func NewInstanceSpecifier(s string) (InstanceSpecifier, error) {
	if s == "" {
		return InstanceSpecifier{}, fmt.Errorf("%w: empty specifier", mwerrors.ErrInvalidMetaModelShortname)
	}
	if !isSpecifierHead(s[0]) {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q must start with [A-Za-z_/]", mwerrors.ErrInvalidMetaModelShortname, s)
	}
	if strings.HasSuffix(s, "/") {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q has a trailing '/'", mwerrors.ErrInvalidMetaModelShortname, s)
	}
	if strings.Contains(s, "//") {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q has a duplicate '/'", mwerrors.ErrInvalidMetaModelShortname, s)
	}
	for i := 1; i < len(s); i++ {
		if !isSpecifierTail(s[i]) {
			return InstanceSpecifier{}, fmt.Errorf("%w: %q contains invalid character %q", mwerrors.ErrInvalidMetaModelShortname, s, s[i])
		}
	}
	return InstanceSpecifier{value: s}, nil
}

func (s InstanceSpecifier) String() string        { return s.value }
func (s InstanceSpecifier) Equal(o InstanceSpecifier) bool { return s.value == o.value }
