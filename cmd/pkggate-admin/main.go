// ABOUTME: Admin CLI for pkggate user and audit management
// ABOUTME: Talks to the gateway HTTP API with an API key credential

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const banner = `
        _                   _                        _           _
  _ __ | | ____ _  __ _  __ _| |_ ___        __ _  __| |_ __ ___ (_)_ __
 | '_ \| |/ / _' |/ _' |/ _' | __/ _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
 | |_) |   < (_| | (_| | (_| | ||  __/_____| (_| | (_| | | | | | | | | | |
 | .__/|_|\_\__, |\__, |\__,_|\__\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
 |_|        |___/ |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PKGGATE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8315"
	}
	apiKey := os.Getenv("PKGGATE_API_KEY")

	client := &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "users":
		err = cmdUsers(client, args)
	case "audit":
		err = cmdAudit(client, args)
	case "status":
		err = cmdStatus(client)
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
	fmt.Println("Usage: pkggate-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  users                      List users")
	fmt.Println("  users list                 List users")
	fmt.Println("  users create               Create a user (--name, --role, optionally --prompt)")
	fmt.Println("  users delete <username>    Delete a user")
	fmt.Println("  audit                      List audit records (--actor, --action, --outcome, --limit)")
	fmt.Println("  status                     Check gateway health")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PKGGATE_URL                Gateway base URL (default: http://localhost:8315)")
	fmt.Println("  PKGGATE_API_KEY            Admin credential (required for most commands)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export PKGGATE_API_KEY=\"...\"")
	fmt.Println("  pkggate-admin users create --name carol --role user")
	fmt.Println("  pkggate-admin audit --outcome denied --limit 20")
	fmt.Println()
}

// apiClient wraps HTTP calls to the gateway API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// apiError carries the error and reason fields of a non-2xx response.
type apiError struct {
	status int
	body   map[string]string
}

func (e *apiError) Error() string {
	if msg := e.body["error"]; msg != "" {
		if reason := e.body["reason"]; reason != "" {
			return fmt.Sprintf("%s (%s)", msg, reason)
		}
		return msg
	}
	return fmt.Sprintf("gateway returned status %d", e.status)
}

func (c *apiClient) do(method, path string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{status: resp.StatusCode, body: map[string]string{}}
		json.NewDecoder(resp.Body).Decode(&apiErr.body)
		return apiErr
	}

	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func cmdUsers(c *apiClient, args []string) error {
	if len(args) == 0 {
		return usersList(c)
	}
	switch args[0] {
	case "list":
		return usersList(c)
	case "create":
		return usersCreate(c, args[1:])
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: pkggate-admin users delete <username>")
		}
		return usersDelete(c, args[1])
	default:
		return fmt.Errorf("unknown users subcommand: %s", args[0])
	}
}

func usersList(c *apiClient) error {
	var resp struct {
		Users []struct {
			Username  string `json:"username"`
			Role      string `json:"role"`
			CreatedAt string `json:"created_at"`
		} `json:"users"`
	}
	if err := c.do(http.MethodGet, "/v1/users", nil, &resp); err != nil {
		return err
	}

	if len(resp.Users) == 0 {
		fmt.Println("No users.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tCREATED")
	for _, u := range resp.Users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, u.Role, u.CreatedAt)
	}
	return w.Flush()
}

func usersCreate(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("users create", flag.ExitOnError)
	name := fs.String("name", "", "username")
	role := fs.String("role", "user", "role (admin or user)")
	prompt := fs.Bool("prompt", false, "prompt for a credential instead of generating one")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	req := struct {
		Username   string `json:"username"`
		Role       string `json:"role"`
		Credential string `json:"credential,omitempty"`
	}{Username: *name, Role: *role}

	if *prompt {
		credential, err := readSecret("Credential: ")
		if err != nil {
			return err
		}
		confirm, err := readSecret("Confirm credential: ")
		if err != nil {
			return err
		}
		if credential != confirm {
			return fmt.Errorf("credentials do not match")
		}
		req.Credential = credential
	}

	var resp struct {
		Username   string `json:"username"`
		Role       string `json:"role"`
		Credential string `json:"credential"`
	}
	if err := c.do(http.MethodPost, "/v1/users", req, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	bold := color.New(color.Bold)

	green.Print("✓ ")
	fmt.Printf("Created %s user %s\n", resp.Role, resp.Username)
	if !*prompt {
		fmt.Println("\nCredential (shown once, store it safely):")
		bold.Printf("  %s\n", resp.Credential)
	}
	return nil
}

func usersDelete(c *apiClient, username string) error {
	if err := c.do(http.MethodDelete, "/v1/users/"+url.PathEscape(username), nil, nil); err != nil {
		return err
	}
	color.Green("✓ Deleted user %s", username)
	return nil
}

// readSecret prompts for a secret without echoing it.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	return string(data), nil
}

func cmdAudit(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	actor := fs.String("actor", "", "filter by actor")
	action := fs.String("action", "", "filter by action")
	outcome := fs.String("outcome", "", "filter by outcome (allowed, denied, error)")
	limit := fs.Int("limit", 0, "max records")
	fs.Parse(args)

	q := url.Values{}
	if *actor != "" {
		q.Set("actor", *actor)
	}
	if *action != "" {
		q.Set("action", *action)
	}
	if *outcome != "" {
		q.Set("outcome", *outcome)
	}
	if *limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", *limit))
	}

	path := "/v1/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Records []struct {
			Seq       int64  `json:"seq"`
			Actor     string `json:"actor"`
			Action    string `json:"action"`
			Outcome   string `json:"outcome"`
			Reason    string `json:"reason"`
			Timestamp string `json:"timestamp"`
		} `json:"records"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	if len(resp.Records) == 0 {
		fmt.Println("No audit records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tACTOR\tACTION\tOUTCOME\tREASON")
	for _, r := range resp.Records {
		ts := r.Timestamp
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ts = t.Local().Format("2006-01-02 15:04:05")
		}
		outcome := r.Outcome
		switch r.Outcome {
		case "allowed":
			outcome = color.GreenString(r.Outcome)
		case "denied":
			outcome = color.RedString(r.Outcome)
		case "error":
			outcome = color.YellowString(r.Outcome)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Seq, ts, r.Actor, r.Action, outcome, r.Reason)
	}
	return w.Flush()
}

func cmdStatus(c *apiClient) error {
	var resp map[string]string
	if err := c.do(http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	color.Green("✓ Gateway healthy at %s (status: %s)", c.baseURL, resp["status"])
	return nil
}
