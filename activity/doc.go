// Package activity records a human-readable trail of dispatches as JSON
// lines: one {timestamp, agent_id, summary, event_id} object per line.
// Entries are encoded by zap and read back with Tail for the /activity
// endpoint.
package activity
