// Package store provides type-safe Go definitions and Redis schema patterns
// for the roost workbench state. Redis is the single durable store: agent
// instances, per-instance logs, bus events, teams, team blackboards,
// workflows, workflow runs, and traces all live here and survive process
// restarts.
//
// All Redis keys and channels are namespaced by workbench name so multiple
// workbenches can safely coexist on a single Redis server.
package store
