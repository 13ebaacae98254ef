package project

import (
	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
)

const (
	// FormatName is the value of every document's format field.
	FormatName = "meshflow-project"
	// Version is the document version written by Encode.
	Version = "1"
)

// Document is the on-disk form of a project.
type Document struct {
	Format  string              `json:"format" yaml:"format"`
	Version string              `json:"version" yaml:"version"`
	ID      string              `json:"id,omitempty" yaml:"id,omitempty"`
	Flow    *FlowSection        `json:"flow" yaml:"flow"`
	State   *framework.Snapshot `json:"state,omitempty" yaml:"state,omitempty"`
}

// FlowSection is the execution log.
type FlowSection struct {
	Operations []OperationRecord `json:"operations" yaml:"operations"`
}

// OperationRecord is one logged operation. ID is derived from the record's
// position and content; it may be omitted in hand-written documents.
type OperationRecord struct {
	ID     string    `json:"id,omitempty" yaml:"id,omitempty"`
	Tag    string    `json:"tag" yaml:"tag"`
	Params ir.Object `json:"params" yaml:"params"`
}

// Validate checks the header and the presence of the flow section.
func (d *Document) Validate() error {
	if d == nil {
		return errs.LoadError("empty document")
	}
	if d.Format != FormatName {
		return errs.LoadError("format is %q, want %q", d.Format, FormatName)
	}
	if d.Version != Version {
		return errs.LoadError("unsupported document version %q", d.Version)
	}
	if d.Flow == nil {
		return errs.LoadError("document has no flow section")
	}
	return nil
}

// HasState reports whether the document carries a snapshot.
func (d *Document) HasState() bool { return d != nil && d.State != nil }
