package session

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/frederikbeimgraben/mcssh/internal/service"
)

// Executor runs a single line.
type Executor interface {
	Execute(ctx context.Context, user, line string) (service.Result, error)
}

// RunExec runs one command without a terminal and returns the exit status.
func RunExec(ctx context.Context, exec Executor, user, line string, w io.Writer) uint32 {
	res, err := exec.Execute(ctx, user, line)
	if err != nil {
		log.Printf("[session] exec for %s failed: %v", user, err)
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	return 0
}
