package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thorwhalen/pacing/internal/agent/auditor"
	"github.com/thorwhalen/pacing/internal/app"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/session"
)

// RunReport is printed by `pacing run` once the session has ended.
type RunReport struct {
	Session    models.SessionContext `json:"session"`
	Chunks     int64                 `json:"chunks"`
	Ended      string                `json:"endedBy"`
	Error      string                `json:"error,omitempty"`
	Platform   session.Status        `json:"platform"`
	Review     auditor.Stats         `json:"review"`
	ReviewList []models.ReviewItem   `json:"reviewQueue"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session and print the review queue",
		RunE:  runSession,
	}

	cmd.Flags().String("session-id", "", "Session id (default: random UUID)")
	cmd.Flags().String("patient", "demo-patient", "Patient id")
	cmd.Flags().String("clinician", "demo-clinician", "Clinician id")
	cmd.Flags().String("type", models.DefaultSessionType, "Session type")
	cmd.Flags().Int("chunks", -1, "Audio chunks to generate, 0 = until interrupted (default: config)")
	cmd.Flags().Bool("fast", false, "Disable real-time pacing of generated audio")
	cmd.Flags().Bool("adaptive", false, "Use the adaptive-confidence mock transcriber")
	cmd.Flags().Int64("seed", 0, "Mock transcriber seed (default: config)")
	cmd.Flags().Duration("duration", 0, "Stop the session after this long (0 = until the audio ends)")
	cmd.Flags().Bool("unreviewed", false, "Only print unreviewed items")

	RootCmd.AddCommand(cmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	// Logs go to stderr so the report on stdout stays machine readable.
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	if chunks, _ := cmd.Flags().GetInt("chunks"); chunks >= 0 {
		cfg.Audio.TotalChunks = chunks
	}
	if fast, _ := cmd.Flags().GetBool("fast"); fast {
		cfg.Audio.Realtime = false
	}
	if adaptive, _ := cmd.Flags().GetBool("adaptive"); adaptive {
		cfg.STT.Adaptive = true
	}
	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		cfg.STT.Seed = seed
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	unreviewed, _ := cmd.Flags().GetBool("unreviewed")

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	sid, _ := cmd.Flags().GetString("session-id")
	patient, _ := cmd.Flags().GetString("patient")
	clinician, _ := cmd.Flags().GetString("clinician")
	sessionType, _ := cmd.Flags().GetString("type")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := application.StartSession(ctx, models.SessionContext{
		SessionID:   sid,
		PatientID:   patient,
		ClinicianID: clinician,
		SessionType: sessionType,
	})
	if err != nil {
		application.Shutdown(context.Background())
		return fmt.Errorf("start session: %w", err)
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	report := RunReport{Session: run.Session()}
	select {
	case <-run.Done():
		report.Ended = "audio"
		if err := run.Wait(context.Background()); err != nil {
			report.Ended = "fault"
			report.Error = err.Error()
		}
	case <-timeout:
		report.Ended = "duration"
	case <-ctx.Done():
		report.Ended = "interrupt"
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.StopSession(shutdownCtx); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}

	report.Chunks = run.Chunks()
	report.Platform = application.Orchestrator.Status()
	report.Review = application.Auditor.Stats()
	if unreviewed {
		report.ReviewList = application.Auditor.ListUnreviewed()
	} else {
		report.ReviewList = application.Auditor.ListAll()
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
