// Package harness runs cache lifecycle scenarios as executable contract
// tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: incremental_update
//	description: "Unchanged assets survive a redeploy"
//	origin: https://app.example
//	manifests:
//	  v1:
//	    resources: {"/": r1, main.js: m1}
//	    core: ["/", main.js]
//	files:
//	  /: "<html>"
//	  /main.js: "main()"
//	flow:
//	  - deploy: v1
//	    expect:
//	      outcome: ok
//	      result: {mode: fresh}
//	  - network:
//	      serve: {/main.js: "main2()"}
//	  - fetch: /main.js
//	    expect:
//	      result: {body: "main()"}
//	assertions:
//	  - type: network_count
//	    path: /main.js
//	    count: 1
//	  - type: cached
//	    partition: content
//	    keys: ["/", main.js]
//
// # Steps
//
// Each flow step names exactly one action:
//
//   - deploy: install and activate a manifest through the registration
//   - fetch: intercept a GET request through the controlling worker
//   - message: deliver a control message
//   - network: change what the origin serves (serve, remove, fail, offline)
//   - restart: drop the registration and keep the storage
//   - resume: adopt an already activated manifest after a restart
//
// # Assertion Types
//
//   - trace_contains: a step with the given target and outcome was executed
//   - trace_count: the number of steps of a kind with a given outcome
//   - network_count: how many times a path was requested from the origin
//   - cached: the exact set of keys in a partition
//   - controller: the controlling worker and its manifest
//
// # Deterministic Testing
//
// Worker ids are sequential (worker-1, worker-2, ...) and each step records
// the origin paths it requested in sorted order, so traces are identical
// across runs and can be compared against golden files.
package harness
