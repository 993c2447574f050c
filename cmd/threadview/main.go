package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/threadview/threadview/pkg/client"
	"github.com/threadview/threadview/pkg/domain"
	"github.com/threadview/threadview/pkg/store"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type profile struct {
	BaseURL    string `yaml:"baseUrl"`
	Token      string `yaml:"token"`
	AgentToken string `yaml:"agentToken"`
	Admin      bool   `yaml:"admin"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".threadview", "config.yaml"), nil
}

func loadCLIConfig() (cliConfig, string, error) {
	var cfg cliConfig
	path, err := configPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

func saveCLIConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if flag != "" {
		return flag
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func isLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

func prompt(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func main() {
	baseURL := getenv("THREADVIEW_BASE_URL", "http://localhost:8080")
	token := getenv("THREADVIEW_TOKEN", "")
	agentToken := getenv("THREADVIEW_AGENT_TOKEN", "")
	admin := getenvBool("THREADVIEW_ADMIN", isLocalURL(baseURL))
	profileName := getenv("THREADVIEW_PROFILE", "")
	out := newUI()

	root := &cobra.Command{
		Use:   "threadview",
		Short: "threadview CLI",
		Long:  "threadview CLI for tailing threads, approving plans, and replaying agent events.",
	}
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Gateway base URL")
	root.PersistentFlags().StringVar(&token, "token", token, "Client token")
	root.PersistentFlags().StringVar(&agentToken, "agent-token", agentToken, "Agent token (event ingest)")
	root.PersistentFlags().BoolVar(&admin, "admin", admin, "Send X-Role: ADMIN (dev only)")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadCLIConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("THREADVIEW_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("token") {
			if v := strings.TrimSpace(os.Getenv("THREADVIEW_TOKEN")); v != "" {
				token = v
			} else if prof.Token != "" {
				token = prof.Token
			}
		}
		if !flags.Changed("agent-token") {
			if v := strings.TrimSpace(os.Getenv("THREADVIEW_AGENT_TOKEN")); v != "" {
				agentToken = v
			} else if prof.AgentToken != "" {
				agentToken = prof.AgentToken
			}
		}
		if !flags.Changed("admin") {
			if v := strings.TrimSpace(os.Getenv("THREADVIEW_ADMIN")); v != "" {
				admin = getenvBool("THREADVIEW_ADMIN", admin)
			} else if prof.Admin {
				admin = true
			} else if isLocalURL(baseURL) {
				admin = true
			}
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, out))
	root.AddCommand(authCmd(&profileName, out))
	root.AddCommand(tailCmd(&baseURL, &token, out))
	root.AddCommand(tasksCmd(&baseURL, &token, out))
	root.AddCommand(approveCmd(&baseURL, &token, out))
	root.AddCommand(rejectCmd(&baseURL, &token, out))
	root.AddCommand(postCmd(&baseURL, &agentToken, out))
	root.AddCommand(threadsCmd(&baseURL, &token, &admin, out))
	root.AddCommand(clearCmd(&baseURL, &token, out))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, out.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, out *ui) *cobra.Command {
	var (
		baseURL    string
		token      string
		agentToken string
		admin      bool
		noPrompt   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadCLIConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if token == "" {
					token = prompt(reader, "Client token (optional)", "")
				}
				if agentToken == "" {
					agentToken = prompt(reader, "Agent token (optional)", "")
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if agentToken != "" {
				prof.AgentToken = strings.TrimSpace(agentToken)
			}
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveCLIConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", out.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Gateway base URL")
	cmd.Flags().StringVar(&token, "token", "", "Client token")
	cmd.Flags().StringVar(&agentToken, "agent-token", "", "Agent token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, out *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var (
		token      string
		agentToken string
		admin      bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store tokens in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" && agentToken == "" && !cmd.Flags().Changed("admin") {
				var err error
				token, err = promptSecret("Client token")
				if err != nil {
					return err
				}
			}
			cfg, cfgPath, err := loadCLIConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if agentToken != "" {
				prof.AgentToken = strings.TrimSpace(agentToken)
			}
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveCLIConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", out.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&token, "token", "", "Client token")
	set.Flags().StringVar(&agentToken, "agent-token", "", "Agent token")
	set.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")

	auth.AddCommand(set)
	return auth
}

func tailCmd(baseURL *string, token *string, out *ui) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "tail <thread-id>",
		Short: "Follow a thread's live event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := args[0]
			c := client.New(*baseURL, *token)
			st := store.New(nil)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " connecting to " + *baseURL
			sp.Start()

			errCh := make(chan error, 1)
			go func() {
				errCh <- c.Subscribe(ctx, threadID, st)
			}()

			changes := st.Changes()
			connected := false
			for {
				select {
				case err := <-errCh:
					sp.Stop()
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					fmt.Println(out.dim("stream closed"))
					return nil
				case <-changes:
					if !connected {
						sp.Stop()
						connected = true
					}
					if raw {
						continue
					}
					renderThread(out, threadID, st)
				case <-ctx.Done():
					sp.Stop()
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVar(&raw, "quiet", false, "Suppress state rendering (connect only)")
	return cmd
}

func renderThread(out *ui, threadID string, st *store.Store) {
	tasks := st.Sync()
	pending, waiting := st.ApprovalState()

	fmt.Println()
	fmt.Printf("%s %s %s\n", out.title("thread"), threadID, out.dim(string(st.Status())))
	for _, t := range tasks {
		fmt.Printf("  %s %s %s\n", statusBadge(out, t.Status), t.Title, out.dim(t.ID))
		for _, a := range t.Artifacts {
			marker := out.dim("done")
			if a.Streaming {
				marker = out.warn("streaming")
			}
			fmt.Printf("    - [%s] %s %s (%d bytes)\n", a.Type, a.Title, marker, len(a.Content))
		}
	}
	if waiting {
		fmt.Printf("  %s plan with %d step(s) awaits approval\n", out.warn("[!]"), len(pending))
	}
}

func statusBadge(out *ui, s domain.TaskStatus) string {
	switch s {
	case domain.StatusCompleted:
		return out.ok("[done]")
	case domain.StatusFailed:
		return out.err("[fail]")
	case domain.StatusRunning:
		return out.info("[run ]")
	default:
		return out.dim("[wait]")
	}
}

func tasksCmd(baseURL *string, token *string, out *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <thread-id>",
		Short: "List a thread's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*baseURL, *token)
			tasks, status, err := c.Tasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s %s\n", out.title("thread"), args[0], out.dim(string(status)))
			for _, t := range tasks {
				fmt.Printf("  %s %s %s (%d artifacts)\n", statusBadge(out, t.Status), t.Title, out.dim(t.ID), len(t.Artifacts))
			}
			return nil
		},
	}
}

func approveCmd(baseURL *string, token *string, out *ui) *cobra.Command {
	var planFile string
	cmd := &cobra.Command{
		Use:   "approve <thread-id>",
		Short: "Approve the pending plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan domain.Plan
			if planFile != "" {
				data, err := os.ReadFile(planFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &plan); err != nil {
					return fmt.Errorf("parse plan file: %w", err)
				}
			}
			c := client.New(*baseURL, *token)
			if err := c.Resume(cmd.Context(), args[0], true, plan); err != nil {
				return err
			}
			fmt.Printf("%s Plan approved for %s\n", out.ok("[OK]"), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "JSON file with an edited plan")
	return cmd
}

func rejectCmd(baseURL *string, token *string, out *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <thread-id>",
		Short: "Reject the pending plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*baseURL, *token)
			if err := c.Resume(cmd.Context(), args[0], false, nil); err != nil {
				return err
			}
			fmt.Printf("%s Plan rejected for %s\n", out.ok("[OK]"), args[0])
			return nil
		},
	}
}

func postCmd(baseURL *string, agentToken *string, out *ui) *cobra.Command {
	var delayMS int
	cmd := &cobra.Command{
		Use:   "post <thread-id> <events-file>",
		Short: "Replay agent events from a JSON-lines file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := args[0]
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			var events []domain.Event
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(line), &ev); err != nil {
					return fmt.Errorf("parse event line: %w", err)
				}
				ev.ThreadID = threadID
				events = append(events, ev)
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if len(events) == 0 {
				return errors.New("no events in file")
			}

			c := client.New(*baseURL, *agentToken)
			bar := progressbar.NewOptions(len(events),
				progressbar.OptionSetDescription("posting events"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			for _, ev := range events {
				if err := c.IngestEvent(cmd.Context(), ev); err != nil {
					return fmt.Errorf("post %s: %w", ev.Type, err)
				}
				_ = bar.Add(1)
				if delayMS > 0 {
					time.Sleep(time.Duration(delayMS) * time.Millisecond)
				}
			}
			fmt.Printf("%s Posted %d event(s) to %s\n", out.ok("[OK]"), len(events), threadID)
			return nil
		},
	}
	cmd.Flags().IntVar(&delayMS, "delay-ms", 0, "Delay between events (simulates streaming)")
	return cmd
}

func threadsCmd(baseURL *string, token *string, admin *bool, out *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List live threads (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(*baseURL, "/")+"/v1/admin/threads", nil)
			if err != nil {
				return err
			}
			if *token != "" {
				req.Header.Set("Authorization", "Bearer "+*token)
			}
			if *admin {
				req.Header.Set("X-Role", "ADMIN")
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			var parsed struct {
				Threads []struct {
					ThreadID    string `json:"thread_id"`
					Status      string `json:"status"`
					Tasks       int    `json:"tasks"`
					Subscribers int    `json:"subscribers"`
				} `json:"threads"`
				Count int `json:"count"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return err
			}
			fmt.Printf("%s %d thread(s)\n", out.title("threads"), parsed.Count)
			for _, th := range parsed.Threads {
				fmt.Printf("  %s %s tasks=%d subscribers=%d\n", th.ThreadID, out.dim(th.Status), th.Tasks, th.Subscribers)
			}
			return nil
		},
	}
}

func clearCmd(baseURL *string, token *string, out *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <thread-id>",
		Short: "Delete a thread and its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*baseURL, *token)
			if err := c.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Cleared %s\n", out.ok("[OK]"), args[0])
			return nil
		},
	}
}
