package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvdb/pkg/client"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kvsql",
	Short:   "kvsql is a line-oriented SQL REPL for kvdb",
	Version: Version,
	RunE:    runREPL,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("kvsql version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().StringP("host", "h", "127.0.0.1", "server host")
	rootCmd.Flags().IntP("port", "p", 9605, "server port")
}

func runREPL(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	addr := fmt.Sprintf("%s:%d", host, port)

	c, err := client.Dial(addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer c.Close()

	fmt.Printf("Connected to kvdb at %s\n", addr)
	fmt.Println("Enter SQL statements terminated by a newline; .exit to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("kvdb> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ".exit" || line == ".quit" {
			return nil
		}
		runStatement(c, line)
	}
}

func runStatement(c *client.Client, sql string) {
	result, err := c.Execute(sql)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	switch result.Summary.Kind {
	case "query":
		printRows(result)
	case "explain":
		fmt.Println(result.Summary.Explain)
	case "create_table":
		fmt.Printf("Table %q created.\n", result.Summary.Name)
	case "drop_table":
		fmt.Printf("Table %q dropped.\n", result.Summary.Name)
	case "create":
		fmt.Printf("%d row(s) inserted.\n", result.Summary.Count)
	case "update":
		fmt.Printf("%d row(s) updated.\n", result.Summary.Count)
	case "delete":
		fmt.Printf("%d row(s) deleted.\n", result.Summary.Count)
	default:
		fmt.Println("OK")
	}
}

func printRows(result *client.ExecuteResult) {
	if len(result.Summary.Columns) > 0 {
		fmt.Println(strings.Join(result.Summary.Columns, " | "))
	}
	for _, row := range result.Rows {
		cols := make([]string, len(row))
		for i, v := range row {
			cols[i] = v.String()
		}
		fmt.Println(strings.Join(cols, " | "))
	}
	fmt.Printf("(%d row(s))\n", len(result.Rows))
}
