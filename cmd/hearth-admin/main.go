// ABOUTME: Admin CLI for hearthd member and token management
// ABOUTME: Talks to the admin HTTP API using the static admin token

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
 _                     _   _                 _           _
| |__   ___  __ _ _ __| |_| |__         __ _| |_ __ ___ (_)_ __
| '_ \ / _ \/ _' | '__| __| '_ \ _____ / _' | | '_ ' _ \| | '_ \
| | | |  __/ (_| | |  | |_| | | |_____| (_| | | | | | | | | | | |
|_| |_|\___|\__,_|_|   \__|_| |_|      \__,_|_|_| |_| |_|_|_| |_|
`

const requestTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("HEARTH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	token := getAdminToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "members":
		err = cmdMembers(baseURL, token, args)
	case "token":
		err = cmdToken(baseURL, token, args)
	case "stats":
		err = cmdStats(baseURL, token)
	case "health":
		err = cmdHealth(baseURL)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hearth-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  members                 List all members")
	fmt.Println("  members list            List all members")
	fmt.Println("  members add             Register a new member")
	fmt.Println("  token create            Generate a member JWT")
	fmt.Println("  stats                   Show deployment stats")
	fmt.Println("  health                  Check server health")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HEARTH_URL              Server base URL (default: http://localhost:8080)")
	fmt.Println("  HEARTH_ADMIN_TOKEN      Admin token (falls back to the config-dir token file)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export HEARTH_ADMIN_TOKEN=\"...\"")
	fmt.Println("  hearth-admin members")
	fmt.Println("  hearth-admin members add --handle grace --name 'Grace Hopper' --company 'Eckert-Mauchly'")
	fmt.Println("  hearth-admin token create --member <member-id> --expires 720h")
	fmt.Println()
}

// getAdminToken resolves the admin token from the environment or the
// admin-token file next to the config.
func getAdminToken() string {
	if token := os.Getenv("HEARTH_ADMIN_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	data, err := os.ReadFile(filepath.Join(configDir, "hearth", "admin-token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// request performs an authenticated JSON request against the admin API.
func request(baseURL, token, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s (status %d)", errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type member struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
}

func cmdMembers(baseURL, token string, args []string) error {
	if token == "" {
		return fmt.Errorf("HEARTH_ADMIN_TOKEN environment variable is required")
	}

	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdMembersList(baseURL, token)
	case "add", "create":
		return cmdMembersAdd(baseURL, token, args)
	default:
		return fmt.Errorf("unknown members subcommand: %s (use list, add)", subcmd)
	}
}

func cmdMembersList(baseURL, token string) error {
	var resp struct {
		Members []member `json:"members"`
	}
	if err := request(baseURL, token, http.MethodGet, "/admin/members", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Members")
	cyan.Println("  -------")

	if len(resp.Members) == 0 {
		fmt.Println("  (no members)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tHANDLE\tNAME\tCOMPANY")
	fmt.Fprintln(w, "  --\t------\t----\t-------")

	for _, m := range resp.Members {
		fmt.Fprintf(w, "  %s\t@%s\t%s\t%s\n", truncate(m.ID, 12), m.Handle, truncate(m.DisplayName, 24), truncate(m.Company, 20))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdMembersAdd(baseURL, token string, args []string) error {
	var handle, name, jobTitle, company string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--handle", "-u":
			if i+1 < len(args) {
				handle = args[i+1]
				i++
			}
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--title", "-t":
			if i+1 < len(args) {
				jobTitle = args[i+1]
				i++
			}
		case "--company", "-c":
			if i+1 < len(args) {
				company = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if handle == "" || name == "" {
		return fmt.Errorf("--handle and --name are required")
	}

	var created member
	err := request(baseURL, token, http.MethodPost, "/admin/members", map[string]string{
		"handle":       handle,
		"display_name": name,
		"job_title":    jobTitle,
		"company":      company,
	}, &created)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created member: %s (@%s)\n", created.DisplayName, created.Handle)
	fmt.Printf("  ID: %s\n", created.ID)
	return nil
}

func cmdToken(baseURL, token string, args []string) error {
	if token == "" {
		return fmt.Errorf("HEARTH_ADMIN_TOKEN environment variable is required")
	}

	if len(args) < 1 || args[0] != "create" {
		return fmt.Errorf("usage: hearth-admin token create --member <id> [--expires 720h]")
	}
	args = args[1:]

	var memberID, expires string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--member", "-m":
			if i+1 < len(args) {
				memberID = args[i+1]
				i++
			}
		case "--expires", "-e":
			if i+1 < len(args) {
				expires = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if memberID == "" {
		return fmt.Errorf("--member is required")
	}

	body := map[string]string{"member_id": memberID}
	if expires != "" {
		body["expires_in"] = expires
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := request(baseURL, token, http.MethodPost, "/admin/tokens", body, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("  ✓ Token issued")
	fmt.Println()
	fmt.Println(resp.Token)
	return nil
}

func cmdStats(baseURL, token string) error {
	if token == "" {
		return fmt.Errorf("HEARTH_ADMIN_TOKEN environment variable is required")
	}

	var resp struct {
		Members int `json:"members"`
	}
	if err := request(baseURL, token, http.MethodGet, "/admin/stats", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Deployment")
	cyan.Println("  ----------")
	fmt.Printf("  Members: %d\n", resp.Members)
	fmt.Println()
	return nil
}

func cmdHealth(baseURL string) error {
	if err := request(baseURL, "", http.MethodGet, "/healthz", nil, nil); err != nil {
		return err
	}
	fmt.Println("healthy")
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
