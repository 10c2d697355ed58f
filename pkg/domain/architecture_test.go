package domain

import (
	"testing"

	"stitchcore/testutil"
)

// TestDomainBoundaries enforces that the domain layer stays at the bottom of
// the import graph. The slot algebra and rule primitives are shared by every
// other package, so they must not depend on internal implementations or drag
// external modules into consumers that only want the types.
func TestDomainBoundaries(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"domain must not import internal packages")

	testutil.AssertNoTransitiveDependency(t, ".", testutil.ThirdPartyImportForbidden,
		"domain must stay standard-library only")
}
