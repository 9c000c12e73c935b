package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sdejongh/filenorris/pkg/aggregate"
	"github.com/sdejongh/filenorris/pkg/models"
)

// NewListCommand creates the ls command
func NewListCommand() *cobra.Command {
	var sortFlag string

	cmd := &cobra.Command{
		Use:   "ls <storage-id> [path]",
		Short: "List a folder",
		Long: `List the immediate children of a folder, directories first.
The sort defaults to the saved file sort preference.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			path := ""
			if len(args) == 2 {
				path = args[1]
			}

			sortCfg, err := a.prefs.FileSort(ctx)
			if err != nil {
				return err
			}
			if sortFlag != "" {
				if sortCfg, err = models.ParseSortConfig(sortFlag); err != nil {
					return err
				}
			}

			listing, err := a.browser().List(ctx, args[0], path, sortCfg)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				if err := writeJSON(os.Stdout, listing); err != nil {
					return err
				}
			} else if !listing.Failed() {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, it := range listing.Items {
					name, size := it.Name, humanize.IBytes(uint64(it.Size))
					if it.IsDir {
						name, size = it.Name+"/", "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", formatTime(it.LastModified), size, name)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if listing.Failed() {
				fmt.Fprintln(os.Stderr, listing.Message)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sortFlag, "sort", "s", "", "sort: name, date or size, with optional :asc or :desc")
	return cmd
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

// NewTreeCommand creates the tree command
func NewTreeCommand() *cobra.Command {
	var (
		folderSort string
		fileSort   string
		maxDepth   int
		maxItems   int
		saveSort   bool
	)

	cmd := &cobra.Command{
		Use:   "tree <storage-id> [root]",
		Short: "Show every file below a folder, grouped by folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			root := ""
			if len(args) == 2 {
				root = args[1]
			}

			folders, err := sortOrPreference(folderSort, func() (models.SortConfig, error) { return a.prefs.FolderSort(ctx) })
			if err != nil {
				return err
			}
			files, err := sortOrPreference(fileSort, func() (models.SortConfig, error) { return a.prefs.FileSort(ctx) })
			if err != nil {
				return err
			}
			if saveSort {
				if err := errors.Join(a.prefs.SetFolderSort(ctx, folders), a.prefs.SetFileSort(ctx, files)); err != nil {
					return err
				}
			}

			if cmd.Flags().Changed("max-depth") {
				a.cfg.Aggregate.MaxDepth = maxDepth
			}
			if cmd.Flags().Changed("max-items") {
				a.cfg.Aggregate.MaxItems = maxItems
			}

			res, err := a.browser().Tree(ctx, uuid.NewString(), args[0], root, folders, files)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(os.Stdout, res)
			}
			printTree(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&folderSort, "folder-sort", "", "folder order (default from preferences)")
	cmd.Flags().StringVar(&fileSort, "file-sort", "", "file order within a folder (default from preferences)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum folder depth, 0 for unlimited")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum number of entries, 0 for unlimited")
	cmd.Flags().BoolVar(&saveSort, "save-sort", false, "remember the sort orders")

	return cmd
}

func sortOrPreference(flag string, pref func() (models.SortConfig, error)) (models.SortConfig, error) {
	if flag != "" {
		return models.ParseSortConfig(flag)
	}
	return pref()
}

func printTree(res aggregate.Result) {
	w := os.Stdout
	for _, row := range res.Rows() {
		switch row.Kind {
		case aggregate.HeaderRow:
			fmt.Fprintf(w, "\n%s\n", row.Label)
		case aggregate.FileRow:
			fmt.Fprintf(w, "  %-40s %10s  %s\n", row.Label, humanize.IBytes(uint64(row.Item.Size)), formatTime(row.Item.LastModified))
		}
	}

	fmt.Fprintf(w, "\n%d folders, %d files\n", res.Folders, res.Files)
	if res.Truncated {
		fmt.Fprintln(w, "Listing truncated by --max-depth or --max-items")
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", s.Path, s.Err)
	}
}
