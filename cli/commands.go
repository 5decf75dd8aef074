package cli

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func parseKey(arg string) (int32, error) {
	k, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "key %q", arg)
	}
	return int32(k), nil
}

var addCmd = &cobra.Command{
	Use:   "add [key...]",
	Short: "Insert keys, skipping those already present",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			count := 0
			for _, arg := range args {
				k, err := parseKey(arg)
				if err != nil {
					return err
				}
				added, err := s.tree.Add(k)
				if err != nil {
					return err
				}
				if added {
					count++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Add %d items.\n", count)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [key...]",
	Short: "Remove keys, skipping those absent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			count := 0
			for _, arg := range args {
				k, err := parseKey(arg)
				if err != nil {
					return err
				}
				deleted, err := s.tree.Delete(k)
				if err != nil {
					return err
				}
				if deleted {
					count++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %d items.\n", count)
			return nil
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find [key]",
	Short: "Look up a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withTree(func(s *session) error {
			_, found, err := s.tree.Find(k)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), foundMessage(found))
			return nil
		})
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the number of keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			n, err := s.tree.Size()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the tree one level per line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			return s.tree.Dump(cmd.OutOrStdout())
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify block store and tree invariants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			if err := s.check(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		})
	},
}

var nthCmd = &cobra.Command{
	Use:   "nth [index]",
	Short: "Print the key at a 0-based rank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "index %q", args[0])
		}
		return withTree(func(s *session) error {
			k, err := s.tree.Nth(i)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		})
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session (add, delete, find, print, size, check, quit)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(s *session) error {
			return s.shell(cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(cmd.InOrStdin()))
		})
	},
}

func foundMessage(found bool) string {
	if found {
		return "Key found."
	}
	return "Key not found."
}

func (s *session) check() error {
	if err := s.store.Validate(); err != nil {
		return err
	}
	return s.tree.Check()
}
