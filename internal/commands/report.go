package commands

import (
	"errors"
	"fmt"
	"io"

	"tasksync/internal/exitcode"
	"tasksync/internal/service"
	"tasksync/internal/store"
	"tasksync/internal/syncer"
)

// report prints err and returns the exit code it maps to. listName names
// the list the user asked for, if any.
func report(errOut io.Writer, listName string, err error) int {
	switch {
	case errors.Is(err, store.ErrAmbiguous):
		fmt.Fprintf(errOut, "error: ambiguous list name: %s\n", listName)
	case errors.Is(err, store.ErrNotFound) && listName != "":
		fmt.Fprintf(errOut, "error: list not found: %s\n", listName)
	case isUserError(err):
		fmt.Fprintf(errOut, "error: %v\n", err)
	default:
		fmt.Fprintf(errOut, "error: store error: %v\n", err)
		return exitcode.StoreError
	}
	return exitcode.UserError
}

// syncExitCode maps the worst failure among results to an exit code.
// Credential problems win over transport failures.
func syncExitCode(results []syncer.Result) int {
	code := exitcode.Success
	for _, r := range results {
		if r.Success() {
			continue
		}
		switch kind, ok := service.KindOf(r.Err); {
		case ok && (kind == service.Unauthorized || kind == service.Configuration):
			return exitcode.AuthError
		case !ok && !errors.Is(r.Err, syncer.ErrPassInFlight):
			code = max(code, exitcode.StoreError)
		default:
			code = max(code, exitcode.BackendError)
		}
	}
	return code
}

// reportSync prints one error line per failed pass.
func reportSync(errOut io.Writer, results []syncer.Result) {
	for _, r := range results {
		if r.Success() {
			continue
		}
		fmt.Fprintf(errOut, "error: %s/%s: %s: %v\n", r.Service, r.Account, r.Reason(), r.Err)
		if service.IsKind(r.Err, service.Unauthorized) {
			fmt.Fprintln(errOut, "hint: run: tasksync login")
		}
	}
}
