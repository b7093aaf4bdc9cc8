// Package harness runs YAML load scenarios against a real engine.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	base_dir: fixtures          # relative to the scenario file
//	files:                      # or: inline files in a fresh temp dir
//	  pages/index.html: "<h1>home</h1>"
//	collections:                # defaults to the four built-in collections
//	  - {singular: page, plural: pages, convention: sync}
//	steps:
//	  - call: pages
//	    args: ["pages/*.html"]
//	    locals: {site: docs}
//	    convention: deferred     # per-call override
//	    expect:
//	      keys: [pages/index.html]
//	assertions:
//	  - type: keys
//	    collection: pages
//	    keys: [pages/index.html]
//
// # Assertion Types
//
//   - keys: the collection holds exactly these keys
//   - count: the collection holds exactly count records
//   - record: a record's content and a subset of its data
//   - state: the collection's lifecycle state
//   - journal: the number of journaled loads, optionally by status
//
// # Deterministic Testing
//
// Steps run one at a time. Load IDs come from a sequential generator and
// every scenario gets a fresh engine and an in-memory journal, so the
// snapshot of a run is byte-identical across runs.
package harness
