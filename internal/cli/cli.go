// Package cli implements shramctl, an operator client for the ShramSaathi API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/pkg/chat"
	"shramsaathi-backend/pkg/client"
	"shramsaathi-backend/pkg/realtime"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	token   string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return client.New(o.server, client.WithToken(o.token))
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// channel returns a connected realtime channel for the configured server.
func (o *options) channel(ctx context.Context, c *client.Client) (*realtime.Channel, error) {
	ch := realtime.NewChannel(realtime.NewWebsocketTransport(c.WebsocketURL(), nil))
	if err := ch.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect realtime channel: %w", err)
	}
	return ch, nil
}

func BuildCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "shramctl",
		Short:         "Command-line client for the ShramSaathi API",
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("SHRAMCTL_SERVER", "http://localhost:8083/api"), "API base URL")
	rootCmd.PersistentFlags().StringVarP(&opts.token, "token", "t", os.Getenv("SHRAMCTL_TOKEN"), "session token (see: shramctl login)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(buildLoginCommand(opts))
	rootCmd.AddCommand(buildJobsCommand(opts))
	rootCmd.AddCommand(buildApplyCommand(opts))
	rootCmd.AddCommand(buildApplicationsCommand(opts))
	rootCmd.AddCommand(buildStatusCommand(opts))
	rootCmd.AddCommand(buildWorkersCommand(opts))
	rootCmd.AddCommand(buildChatCommand(opts))
	rootCmd.AddCommand(buildLocationCommand(opts))

	return rootCmd
}

func buildLoginCommand(opts *options) *cobra.Command {
	var phone, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().Login(ctx, phone, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "registered phone number")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func buildJobsCommand(opts *options) *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			c := opts.client()
			var (
				jobs []domain.Job
				err  error
			)
			if ownerID > 0 {
				jobs, err = c.ListJobsByOwner(ctx, ownerID)
			} else {
				jobs, err = c.ListJobs(ctx)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "only jobs posted by this owner")

	cmd.AddCommand(buildJobCreateCommand(opts))
	return cmd
}

func buildJobCreateCommand(opts *options) *cobra.Command {
	var job domain.Job

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a job as the logged-in owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			created, err := opts.client().CreateJob(ctx, job)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}

	cmd.Flags().StringVar(&job.Title, "title", "", "job title")
	cmd.Flags().StringVar(&job.SkillNeeded, "skill", "", "skill needed")
	cmd.Flags().StringVar(&job.Location, "location", "", "work location")
	cmd.Flags().Float64Var(&job.Pay, "pay", 0, "pay per day")
	cmd.Flags().StringVar(&job.Duration, "duration", "", "expected duration")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("skill")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func buildApplyCommand(opts *options) *cobra.Command {
	var name, skill string

	cmd := &cobra.Command{
		Use:   "apply <jobId>",
		Short: "Apply to a job as the logged-in worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.client().Apply(ctx, domain.ApplyInput{JobID: jobID, WorkerName: name, WorkerSkill: skill})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), app)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name shown to the owner")
	cmd.Flags().StringVar(&skill, "skill", "", "skill shown to the owner")
	return cmd
}

func buildApplicationsCommand(opts *options) *cobra.Command {
	var jobID, workerID int64

	cmd := &cobra.Command{
		Use:   "applications",
		Short: "List applications of a job (owner) or a worker (self)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (jobID == 0) == (workerID == 0) {
				return fmt.Errorf("exactly one of --job or --worker is required")
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			c := opts.client()
			var (
				apps []domain.Application
				err  error
			)
			if jobID > 0 {
				apps, err = c.ApplicationsByJob(ctx, jobID)
			} else {
				apps, err = c.ApplicationsByWorker(ctx, workerID)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), apps)
		},
	}

	cmd.Flags().Int64Var(&jobID, "job", 0, "job id")
	cmd.Flags().Int64Var(&workerID, "worker", 0, "worker id")
	return cmd
}

func buildStatusCommand(opts *options) *cobra.Command {
	var supersede bool

	cmd := &cobra.Command{
		Use:   "status <applicationId> <PENDING|ACCEPTED|REJECTED>",
		Short: "Change an application's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			change, err := opts.client().SetStatus(ctx, id, args[1], supersede)
			if err != nil {
				return err
			}
			if len(change.CascadeFailures) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d pending applications could not be rejected\n", len(change.CascadeFailures))
			}
			return printJSON(cmd.OutOrStdout(), change)
		},
	}

	cmd.Flags().BoolVar(&supersede, "supersede", false, "replace the currently accepted worker")
	return cmd
}

func buildWorkersCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Browse the worker directory",
	}

	var (
		c                              filter.Criteria
		minAge, maxAge, minExp, maxExp float64
	)
	search := &cobra.Command{
		Use:   "search",
		Short: "Search workers by age, experience and pincode",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("min-age") {
				c.MinAge = &minAge
			}
			if flags.Changed("max-age") {
				c.MaxAge = &maxAge
			}
			if flags.Changed("min-experience") {
				c.MinExperience = &minExp
			}
			if flags.Changed("max-experience") {
				c.MaxExperience = &maxExp
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().SearchWorkers(ctx, c)
			if err != nil {
				return err
			}
			for _, e := range res.Excluded {
				fmt.Fprintf(cmd.ErrOrStderr(), "excluded user %d: %s\n", e.ProfileID, e.Reason)
			}
			return printJSON(cmd.OutOrStdout(), res.Profiles)
		},
	}

	search.Flags().Float64Var(&minAge, "min-age", 0, "minimum age")
	search.Flags().Float64Var(&maxAge, "max-age", 0, "maximum age")
	search.Flags().Float64Var(&minExp, "min-experience", 0, "minimum years of experience")
	search.Flags().Float64Var(&maxExp, "max-experience", 0, "maximum years of experience")
	search.Flags().StringVar(&c.Pincode, "pincode", "", "exact pincode")
	search.Flags().BoolVar(&c.ShowAll, "show-all", false, "ignore every filter")

	cmd.AddCommand(search)
	return cmd
}

func buildChatCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat on an accepted application",
	}
	cmd.AddCommand(buildChatSendCommand(opts), buildChatHistoryCommand(opts), buildChatTailCommand(opts))
	return cmd
}

func buildChatSendCommand(opts *options) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "send <applicationId> <message>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			c := opts.client()
			me, err := c.Me(ctx)
			if err != nil {
				return err
			}

			var ch chat.Channel
			if !offline {
				live, err := opts.channel(ctx, c)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; sending without realtime delivery\n", err)
				} else {
					defer live.Disconnect()
					ch = live
				}
			}

			stored, published, err := chat.Send(ctx, c, ch, chat.Outgoing{ApplicationID: appID, SenderID: me.ID, Text: args[1]})
			if err != nil {
				return err
			}
			if !published {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: stored only; the other party sees it on next refresh")
			}
			return printJSON(cmd.OutOrStdout(), stored)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "persist only, skip the realtime channel")
	return cmd
}

func buildChatHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <applicationId>",
		Short: "Print the conversation, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			msgs, err := chat.LoadHistory(ctx, opts.client(), appID)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func buildChatTailCommand(opts *options) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "tail <applicationId>",
		Short: "Follow a conversation until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := opts.client()
			var ch chat.Channel
			dialCtx, cancel := opts.context(cmd)
			live, err := opts.channel(dialCtx, c)
			cancel()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; polling every %s\n", err, interval)
			} else {
				defer live.Disconnect()
				ch = live
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			printed := 0
			session, err := chat.Open(ctx, appID, c, ch,
				chat.WithPollInterval(interval),
				chat.WithOnChange(func(msgs []domain.ChatMessage) {
					// live appends and poll refreshes arrive on different goroutines
					mu.Lock()
					defer mu.Unlock()
					if len(msgs) < printed {
						printed = 0
					}
					for _, m := range msgs[printed:] {
						printMessage(out, m)
					}
					printed = len(msgs)
				}),
			)
			if err != nil {
				return err
			}
			defer session.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "poll", chat.DefaultPollInterval, "history refresh interval while realtime is unavailable")
	return cmd
}

func buildLocationCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Share a worker's live location",
	}

	ping := &cobra.Command{
		Use:   "ping <lat> <lon>",
		Short: "Publish the logged-in worker's position once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q", args[0])
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q", args[1])
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			c := opts.client()
			me, err := c.Me(ctx)
			if err != nil {
				return err
			}
			ch, err := opts.channel(ctx, c)
			if err != nil {
				return err
			}
			defer ch.Disconnect()

			ping := domain.LocationPing{WorkerID: me.ID, Lat: lat, Lon: lon, Timestamp: time.Now().UnixMilli()}
			if err := ch.Send(realtime.LocationDestination(me.ID), ping); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ping)
		},
	}

	cmd.AddCommand(ping)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessage(w io.Writer, m domain.ChatMessage) {
	fmt.Fprintf(w, "%s  #%d  %s\n", m.SentAt.Local().Format("2006-01-02 15:04:05"), m.SenderID, m.Message)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
