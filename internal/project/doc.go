// Package project encodes and decodes project documents.
//
// A document has a required execution-log section (flow) and an optional
// state section holding a registry snapshot. Loading without a state
// section replays the log; loading with one restores the snapshot directly
// and, unless verification is turned off, proves it equal to a replay
// first. No partially loaded flow or framework is ever returned.
package project
