// Package main is the eapproval command: the validation service itself and
// the offline tools used to check rulesets and documents before deploying.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// errDocumentRejected makes `validate` exit with status 2.
var errDocumentRejected = errors.New("document failed validation")

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, errDocumentRejected):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
