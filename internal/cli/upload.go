package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/output"
	"github.com/sdejongh/filenorris/pkg/ratelimit"
	"github.com/sdejongh/filenorris/pkg/upload"
)

// UploadFlags holds upload command flags
type UploadFlags struct {
	Dest       string
	Folder     bool
	Bandwidth  string
	Exclude    []string
	NoProgress bool
}

var uploadFlags UploadFlags

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <storage-id> <local-path>...",
		Short: "Upload files or a folder",
		Long: `Upload local files into a folder of a storage, one after the other.
A file that fails does not stop the others. With --folder each path is a
local directory uploaded as a new folder, all or nothing.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runUpload,
	}

	cmd.Flags().StringVarP(&uploadFlags.Dest, "dest", "d", "", "destination folder (default is the storage root)")
	cmd.Flags().BoolVar(&uploadFlags.Folder, "folder", false, "upload local directories as folders")
	cmd.Flags().StringVarP(&uploadFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g., \"10MB\", \"512KiB\")")
	cmd.Flags().StringSliceVar(&uploadFlags.Exclude, "exclude", nil, "glob patterns to exclude from folder uploads (added to config)")
	cmd.Flags().BoolVar(&uploadFlags.NoProgress, "no-progress", false, "print one line per file instead of a progress bar")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	storageID, paths := args[0], args[1:]

	limit := a.cfg.BandwidthLimit()
	if uploadFlags.Bandwidth != "" {
		if limit, err = ratelimit.ParseLimit(uploadFlags.Bandwidth); err != nil {
			return err
		}
	}

	repo, err := a.registry.Resolve(ctx, storageID)
	if err != nil {
		return err
	}

	coordinator := upload.New(upload.Options{
		StorageID: storageID,
		Formatter: uploadFormatter(a),
		Output:    stdout(),
		Limiter:   ratelimit.NewLimiter(limit),
		Exclude:   append(a.cfg.Transfer.Exclude, uploadFlags.Exclude...),
		Logger:    a.logger,
	})

	var reports []*models.UploadReport
	if uploadFlags.Folder {
		for _, dir := range paths {
			report, err := coordinator.UploadFolder(ctx, repo, uploadFlags.Dest, dir)
			if report != nil {
				reports = append(reports, report)
			}
			if err != nil && report == nil {
				return err
			}
			if ctx.Err() != nil {
				break
			}
		}
	} else {
		sources := make([]upload.Source, 0, len(paths))
		for _, p := range paths {
			src, err := upload.LocalFile(p)
			if err != nil {
				return err
			}
			sources = append(sources, src)
		}
		report, _ := coordinator.UploadFiles(ctx, repo, uploadFlags.Dest, sources)
		reports = append(reports, report)
	}

	code := 0
	for _, r := range reports {
		code = max(code, r.Status.ExitCode())
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func uploadFormatter(a *app) output.Formatter {
	switch {
	case a.jsonOutput():
		return output.NewJSONFormatter()
	case globalFlags.Quiet:
		return nil
	case a.cfg.Output.Progress && !uploadFlags.NoProgress && isTerminal(os.Stdout):
		return output.NewProgressFormatter()
	default:
		return output.NewHumanFormatter()
	}
}
