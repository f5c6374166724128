/*
Package definition loads declarative pipeline definitions and builds engines
from them using stages registered on a pipeline.Factory.

A definition names its stages; the stage instances themselves come from the
factory registry:

	id: orders
	name: Order feed
	enable_cache: true
	cache_ttl: 5m
	timeout: 2s
	error_strategy: skip
	stages: [dedupe, by-date, page-1]

Several definitions may share one document under a pipelines key:

	pipelines:
	  - id: orders
	    stages: [dedupe]
	  - id: users
	    stages: [by-name]

Parse reads YAML (and therefore JSON). LoadFile reads YAML, JSON or TOML
through viper and lets environment variables such as FLOWPIPE_TIMEOUT
override individual fields.
*/
package definition
