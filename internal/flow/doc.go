// Package flow implements CommandFlow, the ordered log of reversible
// operations with an applied cursor and bound collaborators.
//
// The flow owns no global state. It is handed exactly one framework and one
// user interface through SetReceiver and SetInterface, and every mutation
// of that framework goes through an operation applied or reverted here.
//
// States:
//
//	Idle      → Executing → Idle      (an operation succeeded or was rejected)
//	Idle      → Executing → Halted    (a batch run, or a halting flow, failed)
//	Halted    → Idle                  (Resume)
//
// CommandFlow is not safe for concurrent use. Runner serializes requests
// from other goroutines onto one consumer.
package flow
