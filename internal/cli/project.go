package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/meshflow/internal/export"
	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/ui"
)

// session is one loaded project: its flow bound to a registry over a
// fresh reference kernel.
type session struct {
	id     string
	kernel kernel.Kernel
	fw     *framework.Framework
	flow   *flow.CommandFlow
}

// loadOptions tune openProject.
type loadOptions struct {
	UI         ui.Interface
	NoVerify   bool
	FlowOption []flow.Option
}

// defaultUI answers prompts with the configured default.
func (o *RootOptions) defaultUI() ui.Interface {
	return ui.NewConsole(o.Config.ConfirmDefault, o.logger())
}

// openProject reads the project at path. An empty path starts an empty
// project with a new id.
func openProject(ctx context.Context, opts *RootOptions, path string, lo loadOptions) (*session, error) {
	if lo.UI == nil {
		lo.UI = opts.defaultUI()
	}
	flowOpts := append([]flow.Option{flow.WithLogger(opts.logger())}, lo.FlowOption...)
	s := &session{kernel: kernel.NewReference()}

	if path == "" {
		s.id = project.UUIDv7Generator{}.Generate()
		s.fw = framework.New(s.kernel, framework.WithLogger(opts.logger()))
		s.flow = flow.New(flowOpts...)
		if err := s.flow.SetReceiver(s.fw); err != nil {
			return nil, err
		}
		if err := s.flow.SetInterface(lo.UI); err != nil {
			return nil, err
		}
		return s, nil
	}

	doc, err := project.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load project", err)
	}
	s.id = doc.ID
	if s.id == "" {
		s.id = project.UUIDv7Generator{}.Generate()
	}
	s.flow, s.fw, err = project.Load(ctx, doc, s.kernel, project.Options{
		SkipVerify:  lo.NoVerify || !opts.Config.VerifySnapshot,
		UI:          lo.UI,
		Logger:      opts.logger(),
		FlowOptions: lo.FlowOption,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load project", err)
	}
	opts.logger().Debug("project loaded",
		"path", path,
		"operations", s.flow.Len(),
		"applied", s.flow.Applied(),
		"objects", s.fw.Len(),
	)
	return s, nil
}

// close drops every kernel object the session owns: those still bound and
// those only held by undo data.
func (s *session) close(opts *RootOptions) {
	if err := s.flow.Close(); err != nil {
		opts.logger().Debug("flow close failed", "error", err)
	}
	s.fw.Clear()
}

// save writes the applied prefix and a snapshot when the whole log is
// applied; otherwise only the log, so pending operations survive.
func (s *session) save(path string) error {
	fw := s.fw
	if s.flow.CanRedo() {
		fw = nil
	}
	doc, err := project.Encode(s.id, s.flow, fw)
	if err != nil {
		return err
	}
	if err := project.WriteFile(path, doc); err != nil {
		return WrapExitError(ExitCommandError, "failed to save project", err)
	}
	return nil
}

// exportSpec is one --export request.
type exportSpec struct {
	Name   string
	Kind   kernel.Kind
	Format export.Format
	File   string
}

// parseExportSpec parses name:kind:format:file.
func parseExportSpec(s string) (exportSpec, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 || parts[0] == "" || parts[3] == "" {
		return exportSpec{}, fmt.Errorf("invalid export %q: want name:kind:format:file", s)
	}
	kind, err := kernel.ParseKind(parts[1])
	if err != nil {
		return exportSpec{}, fmt.Errorf("invalid export %q: %w", s, err)
	}
	format, err := export.ParseFormat(parts[2])
	if err != nil {
		return exportSpec{}, fmt.Errorf("invalid export %q: %w", s, err)
	}
	return exportSpec{Name: parts[0], Kind: kind, Format: format, File: parts[3]}, nil
}

// exportObject writes one registered object to e.File.
func (s *session) exportObject(e exportSpec) error {
	tables, err := s.fw.Tables(e.Kind, e.Name)
	if err != nil {
		return err
	}
	if err := export.WriteFile(e.File, e.Format, tables, export.Options{Title: e.Name}); err != nil {
		return fmt.Errorf("export %s %s: %w", e.Kind, e.Name, err)
	}
	return nil
}
