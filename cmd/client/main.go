// Package main provides the teamboard command-line client. It speaks the
// line protocol for interactive sessions and the HTTP API for one-shot
// queries.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lllypuk/teamboard/internal/wire"
)

const requestTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Teamboard CLI",
	Long: `Teamboard is a shared task board with team chat.
Use 'tb connect' for an interactive session over the command protocol,
or the query subcommands against the HTTP API (login first with 'tb login').`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "127.0.0.1:9090", "command protocol address")
	rootCmd.PersistentFlags().String("api", "http://127.0.0.1:8080", "HTTP API base URL")
	rootCmd.PersistentFlags().String("token", "", "API access token")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON instead of tables")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(
		connectCmd(),
		loginCmd(),
		tasksCmd(),
		overdueCmd(),
		onlineCmd(),
		messagesCmd(),
		dashboardCmd(),
	)
}

// connectCmd runs an interactive session: lines typed on stdin are sent as
// command frames, everything the server pushes is printed as it arrives.
func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := viper.GetString("server")
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", addr, err)
			}
			defer conn.Close()

			done := make(chan struct{})
			go func() {
				defer close(done)
				scanner := bufio.NewScanner(conn)
				scanner.Buffer(make([]byte, 0, 4096), wire.MaxLineBytes)
				for scanner.Scan() {
					fmt.Println(scanner.Text())
				}
			}()

			stdin := bufio.NewScanner(cmd.InOrStdin())
			for stdin.Scan() {
				line := strings.TrimSpace(stdin.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					return nil
				}
				if _, err := fmt.Fprintln(conn, wire.Command(line)); err != nil {
					return fmt.Errorf("send: %w", err)
				}
				select {
				case <-done:
					return errors.New("server closed the connection")
				default:
				}
			}
			return stdin.Err()
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Obtain an API access token",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{
				"username": args[0],
				"password": args[1],
			})
			if err != nil {
				return err
			}

			var resp struct {
				Token    string `json:"token"`
				Username string `json:"username"`
				Role     string `json:"role"`
			}
			if err := apiPost("/api/login", body, &resp); err != nil {
				return err
			}

			fmt.Printf("Logged in as %s (%s)\n", resp.Username, resp.Role)
			fmt.Println("export TEAMBOARD_TOKEN=" + resp.Token)
			return nil
		},
	}
}

type taskRow struct {
	Key               string `json:"key"`
	Title             string `json:"title"`
	Status            string `json:"status"`
	Priority          string `json:"priority"`
	AssigneeID        int    `json:"assigneeId"`
	DaysUntilDeadline int    `json:"daysUntilDeadline"`
	IsOverdue         bool   `json:"isOverdue"`
}

func tasksCmd() *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := "/api/tasks"
			switch {
			case assignee != "":
				path += "?assignee=" + assignee
			case status != "":
				path += "?status=" + status
			}
			var tasks []taskRow
			if err := apiGet(path, &tasks); err != nil {
				return err
			}
			return renderTasks(tasks)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (TODO, PROGRESS, REVIEW, DONE, BLOCKED)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id filter")
	return cmd
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List overdue tasks",
		RunE: func(_ *cobra.Command, _ []string) error {
			var tasks []taskRow
			if err := apiGet("/api/tasks/overdue", &tasks); err != nil {
				return err
			}
			return renderTasks(tasks)
		},
	}
}

func onlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List online users",
		RunE: func(_ *cobra.Command, _ []string) error {
			var users []struct {
				ID       int    `json:"id"`
				Username string `json:"username"`
				Role     string `json:"role"`
			}
			if err := apiGet("/api/users/online", &users); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(users)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Username", "Role"})
			for _, u := range users {
				tw.AppendRow(table.Row{u.ID, u.Username, u.Role})
			}
			tw.Render()
			return nil
		},
	}
}

func messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent chat messages",
		RunE: func(_ *cobra.Command, _ []string) error {
			var messages []struct {
				Type       string `json:"type"`
				SenderName string `json:"senderName"`
				Content    string `json:"content"`
				Timestamp  string `json:"timestamp"`
			}
			if err := apiGet(fmt.Sprintf("/api/messages?limit=%d", limit), &messages); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(messages)
			}
			for _, m := range messages {
				fmt.Printf("%s [%s] %s\n", m.Timestamp, m.SenderName, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of messages")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the project dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			var dash struct {
				Text     string         `json:"text"`
				ByStatus map[string]int `json:"byStatus"`
			}
			if err := apiGet("/api/dashboard", &dash); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(dash)
			}
			fmt.Println(dash.Text)
			return nil
		},
	}
}

func renderTasks(tasks []taskRow) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Key", "Title", "Status", "Priority", "Assignee", "Days Left"})
	for _, t := range tasks {
		assignee := ""
		if t.AssigneeID > 0 {
			assignee = fmt.Sprintf("%d", t.AssigneeID)
		}
		daysLeft := fmt.Sprintf("%d", t.DaysUntilDeadline)
		if t.IsOverdue {
			daysLeft += " (overdue)"
		}
		tw.AppendRow(table.Row{t.Key, t.Title, t.Status, t.Priority, assignee, daysLeft})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// apiEnvelope mirrors the gateway response wrapper.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiGet(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, viper.GetString("api")+path, nil)
	if err != nil {
		return err
	}
	return apiDo(req, out)
}

func apiPost(path string, body []byte, out any) error {
	req, err := http.NewRequest(http.MethodPost, viper.GetString("api")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return apiDo(req, out)
}

func apiDo(req *http.Request, out any) error {
	if token := viper.GetString("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
