package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/sprout/internal/api"
	"github.com/kalambet/sprout/internal/config"
	"github.com/kalambet/sprout/internal/filestore"
)

// --- care ---

var careCmd = &cobra.Command{
	Use:   "care",
	Short: "Plant-care assistant service",
}

var careStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the care service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runCare(port)
	},
}

func init() {
	careStartCmd.Flags().Int("port", 0, "listen port (default from server.care_port)")
	careCmd.AddCommand(careStartCmd)
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "File storage service and client",
}

var filesStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the files service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runFiles(port)
	},
}

var filesMCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the file store to an MCP client over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilesMCP()
	},
}

var filesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored files, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		kind, _ := cmd.Flags().GetString("type")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		files, err := listFiles(cmd.Context(), client)
		if err != nil {
			return err
		}
		files = filterFiles(files, filestore.Category(kind))

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(files)
		}
		if len(files) == 0 {
			fmt.Println("No files stored.")
			return nil
		}
		writeFileTable(os.Stdout, files)
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files; each lands in the folder for its type",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Uploading %d file(s)...", len(args))
		stored, err := uploadFiles(cmd.Context(), client, args)
		if err != nil {
			return err
		}
		for _, f := range stored {
			printSuccess("Stored %s/%s (%s)", f.Subfolder, f.Name, humanSize(f.Size))
		}
		if skipped := len(args) - len(stored); skipped > 0 {
			printWarning("%d file(s) skipped: unusable names", skipped)
		}
		return nil
	},
}

var filesRenameCmd = &cobra.Command{
	Use:   "rename <sub>/<name> <new-name>",
	Short: "Rename a stored file; it moves if its type changes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := renameFile(cmd.Context(), client, ref, args[1])
		if err != nil {
			return err
		}
		printSuccess("Renamed %s/%s to %s/%s", ref.Sub, ref.Name, resp.NewSub, resp.NewName)
		return nil
	},
}

var filesRmCmd = &cobra.Command{
	Use:   "rm <sub>/<name>...",
	Short: "Delete stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs := make([]filestore.Ref, 0, len(args))
		for _, a := range args {
			ref, err := parseRef(a)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := deleteFiles(cmd.Context(), client, refs)
		if err != nil {
			return err
		}
		printSuccess("Deleted %d of %d file(s)", n, len(refs))
		return nil
	},
}

func init() {
	filesStartCmd.Flags().Int("port", 0, "listen port (default from server.files_port)")
	filesLsCmd.Flags().Bool("json", false, "print JSON")
	filesLsCmd.Flags().String("type", "", "only files of this type (image, video, html, text, doc)")

	filesCmd.AddCommand(filesStartCmd)
	filesCmd.AddCommand(filesMCPCmd)
	filesCmd.AddCommand(filesLsCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesRenameCmd)
	filesCmd.AddCommand(filesRmCmd)
}

// parseRef splits "sub/name" into a file reference.
func parseRef(s string) (filestore.Ref, error) {
	sub, name, ok := strings.Cut(s, "/")
	if !ok || sub == "" || name == "" || strings.Contains(name, "/") {
		return filestore.Ref{}, fmt.Errorf("invalid file reference %q, want <sub>/<name>", s)
	}
	return filestore.Ref{Sub: sub, Name: name}, nil
}

func listFiles(ctx context.Context, c *apiClient) ([]filestore.File, error) {
	resp, err := c.get(ctx, "/api/files")
	if err != nil {
		return nil, err
	}
	var out struct {
		Files []filestore.File `json:"files"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func filterFiles(files []filestore.File, kind filestore.Category) []filestore.File {
	if kind == "" {
		return files
	}
	out := files[:0:0]
	for _, f := range files {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

func writeFileTable(w io.Writer, files []filestore.File) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, colorize(colorBold, "NAME\tTYPE\tFOLDER\tSIZE\tMODIFIED"))
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Name, f.Type, f.Subfolder, humanSize(f.Size), f.Date)
	}
	tw.Flush()
}

func uploadFiles(ctx context.Context, c *apiClient, paths []string) ([]filestore.File, error) {
	resp, err := c.upload(ctx, paths)
	if err != nil {
		return nil, err
	}
	var out api.StatusResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func renameFile(ctx context.Context, c *apiClient, ref filestore.Ref, newName string) (api.StatusResponse, error) {
	resp, err := c.post(ctx, "/rename", api.RenameRequest{OldName: ref.Name, NewName: newName, Sub: ref.Sub})
	if err != nil {
		return api.StatusResponse{}, err
	}
	var out api.StatusResponse
	if err := decodeJSON(resp, &out); err != nil {
		return api.StatusResponse{}, err
	}
	return out, nil
}

func deleteFiles(ctx context.Context, c *apiClient, refs []filestore.Ref) (int, error) {
	resp, err := c.post(ctx, "/delete", api.DeleteRequest{Files: refs})
	if err != nil {
		return 0, err
	}
	var out api.StatusResponse
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}
	if out.Deleted == nil {
		return 0, fmt.Errorf("server response missing deleted count")
	}
	return *out.Deleted, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret in the platform secret store (value read from stdin)",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return fmt.Errorf("empty secret on stdin")
		}
		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configSetSecretCmd.ValidArgs = config.SecretKeys()
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
