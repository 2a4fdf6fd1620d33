package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/simlive/internal/alert"
	simlivev1 "github.com/victornm/simlive/internal/api/simlivev1"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/syncclient"
	"github.com/victornm/simlive/internal/telemetry"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a live session from the terminal like a student viewer",
	RunE:  runWatch,
}

var (
	watchCode  string
	watchAddr  string
	watchQuery string
)

func init() {
	watchCmd.Flags().StringVar(&watchCode, "code", "", "Public join code")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "gRPC address (defaults to localhost and the configured port)")
	watchCmd.Flags().StringVar(&watchQuery, "flags", "", "Viewer flags as a query string, e.g. mute=1&autoreport=1")
	_ = watchCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(false)
	if err != nil {
		return err
	}

	q, err := url.ParseQuery(watchQuery)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	addr := watchAddr
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", c.GRPC.Port)
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		telemetry.GRPCClientInterceptor(),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	client := simlivev1.NewSessionServiceClient(conn)
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := syncclient.Config{
		Code:     watchCode,
		Puller:   syncclient.GRPCPuller{Client: client},
		Interval: c.Sync.Interval,
		Flags:    syncclient.ParseFlags(q),
		Alerter: alert.New(alert.Config{
			Player:   terminalPlayer{w: out},
			Unlocked: true,
		}),
		OnChange: func(s domain.Snapshot) {
			printSnapshot(out, s, syncclient.ParseFlags(q).Clean)
		},
		OnEnded: func(sessionID string) {
			printReport(ctx, out, client, sessionID)
			stop()
		},
	}

	if len(c.Redis.Pubsub.Addrs) > 0 {
		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Redis.Pubsub.Addrs,
			Password: c.Redis.Pubsub.Pass,
		})
		defer r.Close()

		sc.Subscriber = syncclient.RedisSubscriber{Redis: r, Prefix: c.Redis.Pubsub.Prefix}
	}

	return syncclient.New(sc).Run(ctx)
}

type terminalPlayer struct {
	w io.Writer
}

func (p terminalPlayer) Play(_ context.Context, c alert.Cue) error {
	_, err := fmt.Fprintf(p.w, "\a[%s]\n", c)
	return err
}

func printSnapshot(w io.Writer, s domain.Snapshot, clean bool) {
	var b strings.Builder

	if !clean {
		phase := "-"
		if s.Phase != nil {
			phase = s.Phase.Name
		}
		elapsed := domain.Elapsed(time.Now(), s.StartedAt, s.EndedAt).Truncate(time.Second)
		fmt.Fprintf(&b, "── %s  phase: %s  elapsed: %s  rev: %d\n", s.Code, phase, elapsed, s.Revision)
		if s.Banner != "" {
			fmt.Fprintf(&b, "   %s\n", s.Banner)
		}
	}

	for _, v := range s.Variables {
		value := "-"
		if v.Value != nil {
			value = *v.Value
		}
		fmt.Fprintf(&b, "   %-16s %s %s\n", v.Label, value, v.Unit)
	}

	_, _ = io.WriteString(w, b.String())
}

func printReport(ctx context.Context, w io.Writer, client *simlivev1.SessionServiceClient, sessionID string) {
	resp, err := client.GetReport(ctx, &simlivev1.GetReportRequest{SessionId: sessionID})
	if err != nil {
		fmt.Fprintf(w, "report unavailable: %v\n", errors.FromGRPC(err))
		return
	}

	b, err := json.MarshalIndent(resp.Report, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "report unavailable: %v\n", err)
		return
	}

	fmt.Fprintf(w, "%s\n", b)
}
