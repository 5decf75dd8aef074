package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// shell reads one command per line until quit or end of input. Tree
// errors end the session; malformed input only prints a message.
func (s *session) shell(in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		tokens := strings.Fields(strings.ToLower(scanner.Text()))
		if len(tokens) == 0 {
			continue
		}

		switch tokens[0] {
		case "quit", "exit", "bye":
			fmt.Fprintln(out, "Bye!")
			return nil
		case "add", "delete":
			count := 0
			for _, tok := range tokens[1:] {
				k, err := strconv.ParseInt(tok, 10, 32)
				if err != nil {
					continue
				}
				var changed bool
				if tokens[0] == "add" {
					changed, err = s.tree.Add(int32(k))
				} else {
					changed, err = s.tree.Delete(int32(k))
				}
				if err != nil {
					return err
				}
				if changed {
					count++
				}
			}
			verb := "Add"
			if tokens[0] == "delete" {
				verb = "Delete"
			}
			fmt.Fprintf(out, "%s %d items.\n", verb, count)
		case "find":
			found := false
			if len(tokens) > 1 {
				if k, err := strconv.ParseInt(tokens[1], 10, 32); err == nil {
					if _, found, err = s.tree.Find(int32(k)); err != nil {
						return err
					}
				}
			}
			fmt.Fprintln(out, foundMessage(found))
		case "print":
			if err := s.tree.Dump(out); err != nil {
				return err
			}
		case "size":
			n, err := s.tree.Size()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, n)
		case "check":
			if err := s.check(); err != nil {
				fmt.Fprintf(out, "Check failed: %v\n", err)
			} else {
				fmt.Fprintln(out, "OK")
			}
		default:
			fmt.Fprintln(out, "Unknown command")
		}
	}
}
