package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// statusToProto renders the status as a google.protobuf.Struct with the
// same keys as the JSON body.
func statusToProto(r StatusResponse) (*structpb.Struct, error) {
	components := make([]any, 0, len(r.Components))
	for _, c := range r.Components {
		components = append(components, map[string]any{
			"component": c.Component,
			"serving":   c.Serving,
			"since":     c.Since.UTC().Format(time.RFC3339),
		})
	}

	queue := map[string]any{
		"pending": r.Queue.Pending,
		"synced":  r.Queue.Synced,
	}
	if r.Queue.OldestPendingAt != "" {
		queue["oldest_pending_at"] = r.Queue.OldestPendingAt
	}

	return structpb.NewStruct(map[string]any{
		"agent_id":        r.AgentID,
		"healthy":         r.Healthy,
		"queue":           queue,
		"directory_users": r.DirectoryUsers,
		"components":      components,
		"server_time":     r.ServerTime,
	})
}
