// Package core defines the shared data model of the infermesh kernel:
// tasks, execution plans, results, stream chunks and the error taxonomy,
// together with the collaborator contracts (plan producer, response
// cache, result fuser) consumed by the scheduler.
package core
