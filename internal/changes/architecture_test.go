package changes_test

import (
	"chainledger/testutil"
	"testing"
)

func TestTrackerStaysStorageFree(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.AnyOf(testutil.InfraImportForbidden, testutil.DriverImportForbidden), "the tracker compiles patches, sinks apply them")
}
