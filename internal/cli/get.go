package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/sdejongh/filenorris/pkg/imageload"
)

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "get <storage-id> <path>",
		Short: "Download a file",
		Long:  `Download a file to the current directory, to --out, or to stdout with --out -.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return fetch(cmd.Context(), a, imageload.Request{
				StorageID: args[0],
				Path:      args[1],
				Kind:      imageload.Original,
			}, out, path.Base(args[1]))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "O", "", "output file, - for stdout")
	return cmd
}

// NewThumbCommand creates the thumb command
func NewThumbCommand() *cobra.Command {
	var (
		out  string
		size int
		save bool
	)

	cmd := &cobra.Command{
		Use:   "thumb <storage-id> <path>",
		Short: "Download a preview of an image",
		Long: `Download a JPEG preview of an image. When the storage cannot produce a
preview the original file is written instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			switch {
			case save:
				err = a.prefs.SetThumbnailSize(ctx, size)
			case size == 0:
				size, err = a.prefs.ThumbnailSize(ctx)
			}
			if err != nil {
				return err
			}

			return fetch(ctx, a, imageload.Request{
				StorageID: args[0],
				Path:      args[1],
				Kind:      imageload.Thumbnail,
				Size:      size,
			}, out, "thumb-"+path.Base(args[1]))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "O", "", "output file, - for stdout")
	cmd.Flags().IntVar(&size, "size", 0, "longest edge in pixels (default from preferences)")
	cmd.Flags().BoolVar(&save, "save-size", false, "remember --size")
	return cmd
}

func fetch(ctx context.Context, a *app, req imageload.Request, out, defaultName string) error {
	rc, err := a.fetcher().Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer rc.Close()

	if out == "-" {
		_, err := io.Copy(os.Stdout, rc)
		return err
	}
	if out == "" {
		out = defaultName
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Fprintf(stdout(), "%s: %d bytes\n", out, n)
	return nil
}
