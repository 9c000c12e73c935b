package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

// storageFlags holds the fields of every storage kind
type storageFlags struct {
	Name         string
	Host         string
	Port         int
	Domain       string
	Username     string
	Password     string
	StartDir     string
	SiteID       string
	TenantID     string
	ClientID     string
	DriveID      string
	ClientSecret string
	Root         string
	AskSecret    bool
}

// NewStorageCommand creates the storage command
func NewStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage configured storages",
		Long:  `Add, inspect, edit and remove the SMB, SFTP, SharePoint and local storages known to filenorris.`,
	}

	cmd.AddCommand(newStorageAddCommand())
	cmd.AddCommand(newStorageListCommand())
	cmd.AddCommand(newStorageShowCommand())
	cmd.AddCommand(newStorageEditCommand())
	cmd.AddCommand(newStorageRemoveCommand())
	cmd.AddCommand(newStorageWatchCommand())

	return cmd
}

func newStorageAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a storage",
	}

	for _, kind := range []models.StorageKind{models.KindSMB, models.KindSFTP, models.KindSharePoint, models.KindLocal} {
		cmd.AddCommand(newStorageAddKindCommand(kind))
	}
	return cmd
}

func newStorageAddKindCommand(kind models.StorageKind) *cobra.Command {
	var flags storageFlags

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Add a %s storage", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := buildConfig(kind, flags, a)
			var secret string
			if models.RequiresCredential(cfg) {
				if secret, err = secretFlag(kind, flags, true); err != nil {
					return err
				}
			}

			added, err := a.configs.Add(cmd.Context(), cfg, secret)
			if err != nil {
				return fmt.Errorf("failed to add storage: %w", err)
			}

			if a.jsonOutput() {
				return writeJSON(os.Stdout, storageView(added, true))
			}
			fmt.Fprintf(stdout(), "Storage %q added with id %s\n", added.DisplayName(), added.StorageID())
			return nil
		},
	}

	addKindFlags(cmd, kind, &flags)
	cmd.MarkFlagRequired("name")
	return cmd
}

// addKindFlags registers the flags relevant to kind
func addKindFlags(cmd *cobra.Command, kind models.StorageKind, flags *storageFlags) {
	cmd.Flags().StringVar(&flags.Name, "name", "", "display name")

	switch kind {
	case models.KindSMB:
		cmd.Flags().StringVar(&flags.Host, "host", "", `server host name, or a UNC path such as \\server`)
		cmd.Flags().IntVar(&flags.Port, "port", 0, "server port (default from config, 445)")
		cmd.Flags().StringVar(&flags.Domain, "domain", "", "NTLM domain")
		cmd.Flags().StringVar(&flags.Username, "username", "", "user name")
		cmd.Flags().StringVar(&flags.Password, "password", "", "password (prompted when omitted)")
	case models.KindSFTP:
		cmd.Flags().StringVar(&flags.Host, "host", "", "server host name")
		cmd.Flags().IntVar(&flags.Port, "port", 0, "server port (default 22)")
		cmd.Flags().StringVar(&flags.Username, "username", "", "user name")
		cmd.Flags().StringVar(&flags.Password, "password", "", "password (prompted when omitted)")
		cmd.Flags().StringVar(&flags.StartDir, "start-dir", "", "remote start directory (default from config)")
	case models.KindSharePoint:
		cmd.Flags().StringVar(&flags.SiteID, "site-id", "", "SharePoint site id")
		cmd.Flags().StringVar(&flags.TenantID, "tenant-id", "", "Azure AD tenant id")
		cmd.Flags().StringVar(&flags.ClientID, "client-id", "", "application (client) id")
		cmd.Flags().StringVar(&flags.DriveID, "drive-id", "", "document library drive id (default drive when omitted)")
		cmd.Flags().StringVar(&flags.ClientSecret, "client-secret", "", "client secret (prompted when omitted)")
	case models.KindLocal:
		cmd.Flags().StringVar(&flags.Root, "root", "", "root directory")
	}
}

func buildConfig(kind models.StorageKind, f storageFlags, a *app) models.StorageConfiguration {
	switch kind {
	case models.KindSMB:
		host := f.Host
		if platform.IsUNCPath(host) {
			host, _, _ = platform.ParseUNCPath(host)
		}
		port := f.Port
		if port == 0 && a.cfg.SMB.Port != models.DefaultSMBPort {
			port = a.cfg.SMB.Port
		}
		return models.SMBConfig{Name: f.Name, Host: host, Port: port, Domain: f.Domain, Username: f.Username}
	case models.KindSFTP:
		startDir := f.StartDir
		if startDir == "" {
			startDir = a.cfg.SFTP.StartDir
		}
		return models.SFTPConfig{Name: f.Name, Host: f.Host, Port: f.Port, Username: f.Username, StartDir: startDir}
	case models.KindSharePoint:
		return models.SharePointConfig{Name: f.Name, ObjectID: f.SiteID, TenantID: f.TenantID, ClientID: f.ClientID, DriveID: f.DriveID}
	default:
		return models.LocalConfig{Name: f.Name, RootPath: platform.ExpandHome(f.Root)}
	}
}

// secretFlag returns the secret flag of kind, prompting when it is empty and
// prompt is set
func secretFlag(kind models.StorageKind, f storageFlags, prompt bool) (string, error) {
	secret, label := f.Password, "Password: "
	if kind == models.KindSharePoint {
		secret, label = f.ClientSecret, "Client secret: "
	}
	if secret != "" || !prompt {
		return secret, nil
	}
	return readSecret(label)
}

func newStorageListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List storages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.configs.List(cmd.Context())
			if err != nil {
				return err
			}
			return printStorages(cmd.Context(), a, os.Stdout, list)
		},
	}
}

func printStorages(ctx context.Context, a *app, w io.Writer, list []models.StorageConfiguration) error {
	if a.jsonOutput() {
		views := make([]map[string]any, 0, len(list))
		for _, cfg := range list {
			has, _ := a.creds.Has(ctx, cfg.StorageID())
			views = append(views, storageView(cfg, has || !models.RequiresCredential(cfg)))
		}
		return writeJSON(w, views)
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No storages configured")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tLOCATION")
	for _, cfg := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cfg.StorageID(), cfg.DisplayName(), cfg.Kind(), location(cfg))
	}
	return tw.Flush()
}

func location(cfg models.StorageConfiguration) string {
	switch c := cfg.(type) {
	case models.SMBConfig:
		return `\\` + c.Address()
	case models.SFTPConfig:
		return c.Username + "@" + c.Address() + ":" + c.StartDir
	case models.SharePointConfig:
		if c.DriveID != "" {
			return "site " + c.ObjectID + " drive " + c.DriveID
		}
		return "site " + c.ObjectID
	case models.LocalConfig:
		return c.RootPath
	}
	return ""
}

// storageView renders cfg without secrets
func storageView(cfg models.StorageConfiguration, hasSecret bool) map[string]any {
	view := map[string]any{
		"id":   cfg.StorageID(),
		"name": cfg.DisplayName(),
		"kind": cfg.Kind(),
	}
	switch c := cfg.(type) {
	case models.SMBConfig:
		view["host"], view["port"], view["domain"], view["username"] = c.Host, c.Port, c.Domain, c.Username
	case models.SFTPConfig:
		view["host"], view["port"], view["username"], view["start_dir"] = c.Host, c.Port, c.Username, c.StartDir
	case models.SharePointConfig:
		view["site_id"], view["tenant_id"], view["client_id"], view["drive_id"] = c.ObjectID, c.TenantID, c.ClientID, c.DriveID
	case models.LocalConfig:
		view["root"] = c.RootPath
	}
	if models.RequiresCredential(cfg) {
		view["credential"] = hasSecret
	}
	return view
}

func newStorageShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <storage-id>",
		Short: "Show a storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.configs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			has, err := a.creds.Has(ctx, cfg.StorageID())
			if err != nil {
				return err
			}

			view := storageView(cfg, has)
			if a.jsonOutput() {
				return writeJSON(os.Stdout, view)
			}

			keys := []string{"id", "name", "kind", "host", "port", "domain", "username", "start_dir", "site_id", "tenant_id", "client_id", "drive_id", "root", "credential"}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				if v, ok := view[k]; ok {
					fmt.Fprintf(tw, "%s:\t%v\n", strings.ReplaceAll(k, "_", " "), v)
				}
			}
			return tw.Flush()
		},
	}
}

func newStorageEditCommand() *cobra.Command {
	var flags storageFlags

	cmd := &cobra.Command{
		Use:   "edit <storage-id>",
		Short: "Edit a storage",
		Long: `Edit a storage. Only the flags given are changed; the secret is kept
unless --password, --client-secret or --ask-secret is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			current, err := a.configs.Get(ctx, id)
			if err != nil {
				return err
			}

			updated := applyEdits(current, cmd, flags)

			var secret *string
			changed := cmd.Flags().Changed("password") || cmd.Flags().Changed("client-secret")
			if changed || flags.AskSecret {
				s, err := secretFlag(updated.Kind(), flags, flags.AskSecret)
				if err != nil {
					return err
				}
				secret = &s
			}

			if err := a.configs.Update(ctx, id, updated, secret); err != nil {
				return fmt.Errorf("failed to update storage: %w", err)
			}
			if err := a.registry.Evict(id); err != nil {
				a.logger.Warn(ctx, "failed to close previous connection", logging.Fields{"storage_id": id, "error": err.Error()})
			}

			fmt.Fprintf(stdout(), "Storage %s updated\n", id)
			return nil
		},
	}

	// every kind's flags; edits that do not apply to the stored kind are ignored
	cmd.Flags().StringVar(&flags.Name, "name", "", "display name")
	cmd.Flags().StringVar(&flags.Host, "host", "", "server host name")
	cmd.Flags().IntVar(&flags.Port, "port", 0, "server port")
	cmd.Flags().StringVar(&flags.Domain, "domain", "", "NTLM domain")
	cmd.Flags().StringVar(&flags.Username, "username", "", "user name")
	cmd.Flags().StringVar(&flags.Password, "password", "", "new password")
	cmd.Flags().StringVar(&flags.StartDir, "start-dir", "", "remote start directory")
	cmd.Flags().StringVar(&flags.SiteID, "site-id", "", "SharePoint site id")
	cmd.Flags().StringVar(&flags.TenantID, "tenant-id", "", "Azure AD tenant id")
	cmd.Flags().StringVar(&flags.ClientID, "client-id", "", "application (client) id")
	cmd.Flags().StringVar(&flags.DriveID, "drive-id", "", "document library drive id")
	cmd.Flags().StringVar(&flags.ClientSecret, "client-secret", "", "new client secret")
	cmd.Flags().StringVar(&flags.Root, "root", "", "root directory")
	cmd.Flags().BoolVar(&flags.AskSecret, "ask-secret", false, "prompt for a new secret")

	return cmd
}

// applyEdits copies the changed flags onto cfg
func applyEdits(cfg models.StorageConfiguration, cmd *cobra.Command, f storageFlags) models.StorageConfiguration {
	set := cmd.Flags().Changed

	switch c := cfg.(type) {
	case models.SMBConfig:
		if set("name") {
			c.Name = f.Name
		}
		if set("host") {
			c.Host = f.Host
			if platform.IsUNCPath(c.Host) {
				c.Host, _, _ = platform.ParseUNCPath(c.Host)
			}
		}
		if set("port") {
			c.Port = f.Port
		}
		if set("domain") {
			c.Domain = f.Domain
		}
		if set("username") {
			c.Username = f.Username
		}
		return c
	case models.SFTPConfig:
		if set("name") {
			c.Name = f.Name
		}
		if set("host") {
			c.Host = f.Host
		}
		if set("port") {
			c.Port = f.Port
		}
		if set("username") {
			c.Username = f.Username
		}
		if set("start-dir") {
			c.StartDir = f.StartDir
		}
		return c
	case models.SharePointConfig:
		if set("name") {
			c.Name = f.Name
		}
		if set("site-id") {
			c.ObjectID = f.SiteID
		}
		if set("tenant-id") {
			c.TenantID = f.TenantID
		}
		if set("client-id") {
			c.ClientID = f.ClientID
		}
		if set("drive-id") {
			c.DriveID = f.DriveID
		}
		return c
	case models.LocalConfig:
		if set("name") {
			c.Name = f.Name
		}
		if set("root") {
			c.RootPath = platform.ExpandHome(f.Root)
		}
		return c
	}
	return cfg
}

func newStorageRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <storage-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a storage and its credential",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			if err := a.configs.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to remove storage: %w", err)
			}
			if err := a.registry.Evict(id); err != nil {
				a.logger.Warn(ctx, "failed to close connection", logging.Fields{"storage_id": id, "error": err.Error()})
			}

			fmt.Fprintf(stdout(), "Storage %s removed\n", id)
			return nil
		},
	}
}

func newStorageWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the storage list now and after every change",
		Long: `Print the storage list now and every time it changes, until interrupted.
Changes made by other filenorris processes are not observed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for list := range a.configs.Watch(ctx) {
				if !a.jsonOutput() {
					fmt.Fprintf(os.Stdout, "--- %d storages ---\n", len(list))
				}
				if err := printStorages(ctx, a, os.Stdout, list); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
