// jobmate-swipe-service
//
// Job matching feed and swipe workflow.
// Exposes a REST API used by the Gateway to implement:
//   - feed(limit, query)                 ranked, filtered job cards
//   - decide(jobId, action)              apply or pass, once per job
//   - toggleSave(jobId)                  bookmark / unbookmark
//   - employer and admin posting workflow
//   - application kanban moves
//
// The same feed and decision operations are served over gRPC.
// Publishes decision and lifecycle events to Redis for Gateway SSE forward.
package main

import (
	"context"
	"os"

	"jobmate/swipe-service/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
