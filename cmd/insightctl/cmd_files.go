package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/insights/internal/app"
	"github.com/JonMunkholm/insights/internal/config"
	"github.com/JonMunkholm/insights/internal/core"
)

// openApp builds the service from the environment. The command line acts
// as admin: whoever can run it can reach the store directly.
func openApp(cmd *cobra.Command) (*app.App, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, core.ContextWithAdmin(ctx), nil
}

func runFilesList(cmd *cobra.Command, args []string) error {
	a, ctx, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := a.Service.Files(ctx)
	if err != nil {
		return err
	}

	tw := newTable(cmd.OutOrStdout(), []string{"name", "original", "size", "saved"})
	for _, f := range files {
		tw.Append([]string{f.Name, f.Original, fmt.Sprint(f.Size), f.SavedAt.Format("2006-01-02 15:04:05")})
	}
	tw.Render()
	return nil
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	a, ctx, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := a.Service.Upload(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", entry.Name)
	return nil
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	a, ctx, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Service.Delete(ctx, args...)
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d files\n", n, len(args))
	return err
}

func runFilesClear(cmd *cobra.Command, args []string) error {
	a, ctx, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Service.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d files\n", n)
	return nil
}
