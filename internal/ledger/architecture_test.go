package ledger_test

import (
	"chainledger/testutil"
	"testing"
)

// Ledger queries are pure reads of the chain graph.
func TestLedgerStaysStorageFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "ledger must not reach storage adapters")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.DriverImportForbidden, "ledger must not link database or object store clients")
}
