package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ameet2r/workout/internal/cache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear locally cached session state",
	}
	cmd.AddCommand(cacheShowCmd())
	cmd.AddCommand(cacheClearCmd())
	return cmd
}

func openCache(cmd *cobra.Command) (*cache.Cache, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog := newLogger(cfg)
	c, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		closeLog()
	}, nil
}

func cacheShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeAll, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer closeAll()

			prefix := "session:"
			if id, _ := cmd.Flags().GetString("session"); id != "" {
				prefix = "session:" + id + ":"
			}
			entries, err := c.Keys(prefix)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no cached sessions")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tBYTES\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Key, e.Size, e.UpdatedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("session", "", "only show this session")
	return cmd
}

func cacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached state for one session, or all with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("session")
			all, _ := cmd.Flags().GetBool("all")
			if (id == "") == !all {
				return errors.New("specify exactly one of --session or --all")
			}

			c, closeAll, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer closeAll()

			ids := []string{id}
			if all {
				if ids, err = c.SessionIDs(); err != nil {
					return err
				}
			}
			for _, id := range ids {
				c.Clear(id)
				fmt.Printf("cleared %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().String("session", "", "session id to clear")
	cmd.Flags().Bool("all", false, "clear every cached session")
	return cmd
}
