// Package sync implements bidirectional synchronization between local
// appointments and external calendar accounts.
//
// The Orchestrator runs one pass for one account:
//   - Import: remote events inside the import window are pulled in. Events
//     already correlated with an appointment update it only when the remote
//     copy is strictly newer. New events are matched against the account
//     owner's patients and dropped when no match is found.
//   - Export: local appointments inside the export window are pushed out.
//     Already-correlated appointments overwrite the remote event; the rest
//     are created remotely and correlated by the returned event ID.
//
// Individual event failures are collected into the Result and never abort
// the pass. Only a missing or disabled account, a token that cannot be
// refreshed, or a remote listing failure abort the whole run.
//
// The Scheduler fans a pass out over every sync-enabled account, isolating
// failures per account and coalescing concurrent triggers for the same
// account.
//
// Example usage:
//
//	orch := sync.NewOrchestrator(st.Accounts(), st.Appointments(), tokens, provider, matcher, logger)
//	sched := sync.NewScheduler(st.Accounts(), orch, logger)
//	reports, err := sched.RunAll(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
package sync
