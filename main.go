// =============================================================================
// POS Ledger Merger - Main Entry Point
// =============================================================================
//
// USAGE:
//   ledger merge       - Merge exports into the ledger
//   ledger validate    - Check exports without merging
//   ledger diff        - Compare ledgers or check expected totals
//   ledger version     - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : parsing, validation, merge, output and the pipeline
//   - pkg/           : file management shared by the pipeline
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/pos-ledger-merger/cmd"
)

func main() {
	cmd.Execute()
}
