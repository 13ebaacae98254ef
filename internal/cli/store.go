package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/store"
)

// StoreOptions holds flags shared by the store subcommands.
type StoreOptions struct {
	*RootOptions
	Database string
}

// database resolves --db against MESHFLOW_DB.
func (o *StoreOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.Config.DB
}

func (o *StoreOptions) open() (*store.Store, error) {
	st, err := store.Open(o.database())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// NewStoreCommand creates the store command and its subcommands.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Keep project revisions in a SQLite database",
		Long: `Save, load and list project revisions in a SQLite database.

Every save appends a new revision; load picks the latest one unless
--rev is given. The database defaults to MESHFLOW_DB (meshflow.db).`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $MESHFLOW_DB)")

	cmd.AddCommand(newStoreSaveCommand(opts))
	cmd.AddCommand(newStoreLoadCommand(opts))
	cmd.AddCommand(newStoreListCommand(opts))
	cmd.AddCommand(newStoreDeleteCommand(opts))

	return cmd
}

// StoreSaveResult is the store save payload.
type StoreSaveResult struct {
	Name string `json:"name"`
	Seq  int64  `json:"seq"`
}

func (r StoreSaveResult) String() string {
	return fmt.Sprintf("Saved %s revision %d", r.Name, r.Seq)
}

func newStoreSaveCommand(opts *StoreOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "save <project-file>",
		Short: "Save a project file as a new revision",
		Long: `Save a project file as the next revision of a stored project.

The stored name defaults to the file name without its extension.

Example:
  meshflow store save duct.json --db ./projects.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := project.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load project", err)
			}
			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if doc.ID == "" {
				doc.ID = project.UUIDv7Generator{}.Generate()
			}

			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			seq, err := st.SaveProject(cmd.Context(), name, doc)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to save project", err)
			}
			opts.logger().Info("project saved", "name", name, "seq", seq, "db", opts.database())
			return newFormatter(opts.RootOptions, cmd).Success(StoreSaveResult{Name: name, Seq: seq})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "stored project name (default: file name)")
	return cmd
}

// StoreLoadResult is the store load payload.
type StoreLoadResult struct {
	Name       string `json:"name"`
	Seq        int64  `json:"seq,omitempty"`
	File       string `json:"file"`
	Operations int    `json:"operations"`
}

func (r StoreLoadResult) String() string {
	return fmt.Sprintf("Wrote %s (%d operations) to %s", r.Name, r.Operations, r.File)
}

func newStoreLoadCommand(opts *StoreOptions) *cobra.Command {
	var rev int64
	cmd := &cobra.Command{
		Use:   "load <name> <project-file>",
		Short: "Write a stored revision to a project file",
		Long: `Write a stored project revision to a file. The file format follows its
extension (.json, .yaml or .yml).

Example:
  meshflow store load duct duct.yaml --rev 2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			doc, err := st.LoadProject(cmd.Context(), args[0], rev)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load project", err)
			}
			if err := project.WriteFile(args[1], doc); err != nil {
				return WrapExitError(ExitCommandError, "failed to write project", err)
			}
			return newFormatter(opts.RootOptions, cmd).Success(StoreLoadResult{
				Name:       args[0],
				Seq:        rev,
				File:       args[1],
				Operations: len(doc.Flow.Operations),
			})
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", 0, "revision to load (default latest)")
	return cmd
}

// StoredProject is one row of store list.
type StoredProject struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Revisions int    `json:"revisions"`
	Latest    int64  `json:"latest"`
}

// StoredRevision is one row of store list <name>.
type StoredRevision struct {
	Seq        int64 `json:"seq"`
	HasState   bool  `json:"has_state"`
	Operations int   `json:"operations"`
	Objects    int   `json:"objects"`
}

type projectList []StoredProject

func (l projectList) String() string {
	if len(l) == 0 {
		return "No projects stored."
	}
	var b strings.Builder
	for i, p := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-20s %d revision(s), latest %d  %s", p.Name, p.Revisions, p.Latest, p.ID)
	}
	return b.String()
}

type revisionList []StoredRevision

func (l revisionList) String() string {
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		state := "log"
		if r.HasState {
			state = "log+state"
		}
		fmt.Fprintf(&b, "%4d  %-9s %d operation(s), %d object(s)", r.Seq, state, r.Operations, r.Objects)
	}
	return b.String()
}

func newStoreListCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list [name]",
		Short:         "List stored projects, or one project's revisions",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			out := newFormatter(opts.RootOptions, cmd)
			if len(args) == 1 {
				revs, err := st.ListRevisions(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list revisions", err)
				}
				list := make(revisionList, len(revs))
				for i, r := range revs {
					list[i] = StoredRevision{Seq: r.Seq, HasState: r.HasState, Operations: r.Operations, Objects: r.Objects}
				}
				return out.Success(list)
			}

			projects, err := st.ListProjects(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list projects", err)
			}
			list := make(projectList, len(projects))
			for i, p := range projects {
				list[i] = StoredProject{Name: p.Name, ID: p.ID, Revisions: p.Revisions, Latest: p.Latest}
			}
			return out.Success(list)
		},
	}
}

func newStoreDeleteCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a stored project and all its revisions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteProject(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "failed to delete project", err)
			}
			return newFormatter(opts.RootOptions, cmd).Success(fmt.Sprintf("Deleted %s", args[0]))
		},
	}
}
