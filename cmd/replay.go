package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"turnmemory/core"
	"turnmemory/events/session"
	"turnmemory/factories"
	"turnmemory/handlers/turns"
	"turnmemory/protocol"
	"turnmemory/services/memory"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	replayPersona string
	replaySession string
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.jsonl>",
	Short: "Feed a recorded session through the turn correlator",
	Long: `Read realtime events, one JSON object per line, and run them through a fresh
correlator in file order. Completed turns are written to the configured memory
store. Event timestamps (ms since epoch) drive the stale-half sweep, so a
recording replays the same way it ran live.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		sink, err := factories.BuildSink(settings.Memory, core.GetLogger())
		if err != nil {
			return fmt.Errorf("memory sink: %w", err)
		}
		defer sink.Close()

		summary, err := replay(cmd.Context(), f, sink, settings.Turns, replaySession, replayPersona, core.GetLogger())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayPersona, "persona", "", "Persona the turns belong to")
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Session id stamped on turns (random if empty)")
	rootCmd.AddCommand(replayCmd)
}

type replaySummary struct {
	Lines      int
	Malformed  int
	Ignored    int
	Evicted    int
	Turns      int
	Persisted  int
	Duplicates int
	Failed     int
}

func (s replaySummary) String() string {
	return fmt.Sprintf("lines=%d malformed=%d ignored=%d evicted=%d turns=%d persisted=%d duplicates=%d failed=%d",
		s.Lines, s.Malformed, s.Ignored, s.Evicted, s.Turns, s.Persisted, s.Duplicates, s.Failed)
}

// replay drives a correlator from r. Turns are persisted inline, one at a
// time, so the summary is final when replay returns. A failed write is
// counted and dropped like it is in a live session.
func replay(ctx context.Context, r io.Reader, sink memory.Sink, config turns.TurnsConfig, sessionID, personaID string, logger *core.Logger) (replaySummary, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	logger = logger.With(map[string]interface{}{"session_id": sessionID, "persona_id": personaID})

	var summary replaySummary
	persist := turns.PersisterFunc(func(turn core.ConversationTurn) {
		status, err := sink.Persist(ctx, turn)
		switch status {
		case core.PersistOK:
			summary.Persisted++
		case core.PersistDuplicate:
			summary.Duplicates++
		default:
			summary.Failed++
			logger.With(map[string]interface{}{"turn_id": turn.ID, "error": err}).Warn("turn dropped")
		}
	})

	var clock time.Time
	correlator := turns.NewCorrelator(config, persist, logger,
		turns.WithSession(sessionID, personaID),
		turns.WithClock(func() time.Time { return clock }))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		summary.Lines++

		event, err := protocol.DecodeSessionEvent(line, time.Now())
		if err != nil {
			summary.Malformed++
			logger.With(map[string]interface{}{"line": summary.Lines, "error": err}).Debug("skipping malformed line")
			continue
		}
		if reset, ok := event.(*session.ResetEvent); ok {
			correlator.Reset()
			logger.With(map[string]interface{}{"reason": reset.Reason}).Info("turn state reset")
			continue
		}

		clock = eventTime(event)
		outcome := correlator.Process(event)
		summary.Evicted += len(outcome.Evicted)
		switch outcome.Kind {
		case turns.OutcomeIgnored:
			summary.Ignored++
		case turns.OutcomePaired:
			summary.Turns++
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("replay: read: %w", err)
	}
	return summary, nil
}

func eventTime(event core.IEvent) time.Time {
	switch ev := event.(type) {
	case *session.UserTranscriptEvent:
		return ev.Timestamp
	case *session.AssistantTranscriptEvent:
		return ev.Timestamp
	case *session.ItemCreatedEvent:
		return ev.Timestamp
	case *session.OtherEvent:
		return ev.Timestamp
	}
	return time.Now()
}
