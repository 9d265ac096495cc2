// Package harness runs usage scenarios against the engine and checks the
// resulting ledger.
//
// A scenario is a timed list of operations (logins, heartbeats, logouts,
// document submissions) followed by assertions on sessions, events and
// reports. Each scenario runs against a fresh in-memory store with a step
// clock, so the ledger it produces is byte-for-byte reproducible and can be
// compared against a golden trace.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: idle_heartbeat
//	description: "A heartbeat within grace ends the session at the heartbeat"
//	start: 2025-03-10T12:00:00Z
//	steps:
//	  - at: 0
//	    op: create_user
//	    user: ana
//	  - at: 300
//	    op: heartbeat
//	    user: ana
//	    expect:
//	      outcome: closed
//	assertions:
//	  - type: session_durations
//	    user: ana
//	    durations: [300]
//
// Step offsets ("at") are seconds after start. Unknown fields are rejected.
//
// # Operations
//
//   - create_user, login, heartbeat, logout, reconcile: per-user session ops
//   - reconcile_all, reconcile_idle: sweeps across every open session
//   - submit_document, add_metric, user_changes, delete_document: document ops,
//     where "document" is a label chosen by the scenario
//
// # Assertion Types
//
//   - event_count: the user has exactly count events of kind
//   - session_count: the user has exactly count sessions (login_ts rows)
//   - session_durations: the user's closed session durations, in order
//   - document_metric: the latest value of a metric on a document
//   - overview: selected fields of the user's overview report
//   - weekly: the seven activity labels of the user's weekly report
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/idle_heartbeat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
