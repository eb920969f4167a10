package ctl

import (
	"fmt"

	"github.com/matheus3301/imstore/internal/api"
	"github.com/spf13/cobra"
)

// NewQueryCmd creates the query command.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <locator>",
		Short: "Read rows from a locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, _ := cmd.Flags().GetStringSlice("columns")
			where, _ := cmd.Flags().GetString("where")
			order, _ := cmd.Flags().GetStringSlice("order")
			limit, _ := cmd.Flags().GetInt("limit")
			spec, err := parseSpec(columns, where, order, limit)
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			res, err := c.Query(ctx, args[0], spec)
			if err != nil {
				return err
			}
			rows := make([]map[string]any, len(res.Rows))
			for i, r := range res.Rows {
				rows[i] = api.EncodeValues(r)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"columns": res.Columns,
				"rows":    rows,
				"notify":  res.Notify,
			})
		},
	}
	cmd.Flags().StringSlice("columns", nil, "columns to return")
	cmd.Flags().String("where", "", `filter as JSON, e.g. {"op":"eq","col":"username","val":"bob"}`)
	cmd.Flags().StringSlice("order", nil, "sort columns; prefix with - for descending")
	cmd.Flags().Int("limit", 0, "maximum rows")
	return cmd
}

// NewInsertCmd creates the insert command.
func NewInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <locator>",
		Short: "Insert a row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("values")
			vals, err := parseValues(raw)
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			loc, err := c.Insert(ctx, args[0], vals)
			if err != nil {
				return err
			}
			if loc == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "no row created")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}
	cmd.Flags().String("values", "{}", "column values as a JSON object")
	return cmd
}

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <locator>",
		Short: "Update matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawVals, _ := cmd.Flags().GetString("values")
			vals, err := parseValues(rawVals)
			if err != nil {
				return err
			}
			rawWhere, _ := cmd.Flags().GetString("where")
			where, err := parseWhere(rawWhere)
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			n, err := c.Update(ctx, args[0], vals, where)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().String("values", "{}", "column values as a JSON object")
	cmd.Flags().String("where", "", "filter as JSON")
	return cmd
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <locator>",
		Short: "Delete matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawWhere, _ := cmd.Flags().GetString("where")
			where, err := parseWhere(rawWhere)
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			n, err := c.Delete(ctx, args[0], where)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().String("where", "", "filter as JSON")
	return cmd
}

// NewTypeCmd creates the type command.
func NewTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "type <locator>",
		Short: "Print the content type of a locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			t, err := c.Type(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

// NewWatchCmd creates the watch command. It runs until interrupted.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [locator]",
		Short: "Stream change notifications",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := ""
			if len(args) == 1 {
				ns = args[0]
			}
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			changes, err := c.Watch(cmd.Context(), ns)
			if err != nil {
				return err
			}
			for ch := range changes {
				if ch.Origin != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(from %s)\n", ch.Locator, ch.Origin)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), ch.Locator)
			}
			return nil
		},
	}
}
