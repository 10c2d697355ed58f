package design

import (
	"testing"

	"stitchcore/testutil"
)

// The decoder is shared by the service core, the HTTP adapter, and the
// command-line checker. It may lean on the domain types and the JSON codec
// but must not reach into any internal package.
func TestDecoderImportsStayFlat(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"design decodes documents for every layer above it")
}
