package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	"github.com/savaki/secrets-rotator/internal/di"
)

type historyEntry struct {
	ID        string `json:"id" yaml:"id"`
	Time      string `json:"time" yaml:"time"`
	Token     string `json:"token" yaml:"token"`
	Step      string `json:"step" yaml:"step"`
	Outcome   string `json:"outcome" yaml:"outcome"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// HistoryCommand prints recorded rotation steps
func HistoryCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded rotation steps for a secret",
		Description: `Reads the rotation history table (HISTORY_TABLE_NAME, or {env}-secrets-rotator-history).

Examples:
  rotation-admin --env prd history --secret-id DemoAuroraServerlessMySQLSecret
  rotation-admin --env prd history --secret-id DemoAuroraServerlessMySQLSecret --token manual-2Fz... --output yaml
  rotation-admin --env prd history --secret-id DemoAuroraServerlessMySQLSecret --id 2Fz...`,
		Flags: []cli.Flag{
			secretIDFlag(),
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "Only show steps for this ClientRequestToken",
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Show the single entry with this ID",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of entries (0 for all)",
				Value:   20,
			},
			outputFlag(),
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			dao, err := di.Get[*historydao.DAO](container)
			if err != nil {
				return err
			}

			secretID := c.String("secret-id")
			records, err := loadHistory(c.Context, dao, historyQuery{
				SecretID: secretID,
				ID:       c.String("id"),
				Token:    c.String("token"),
				Limit:    c.Int("limit"),
			})
			if err != nil {
				return err
			}

			logger.Debug().Str("secret_id", secretID).Int("count", len(records)).Msg("Loaded rotation history")
			return renderHistory(c.App.Writer, c.String("output"), records)
		},
	}
}

type historyReader interface {
	Find(ctx context.Context, id historydao.ID) (*historydao.Record, error)
	Query(ctx context.Context, secretID string, limit int) ([]historydao.Record, error)
	QueryByToken(ctx context.Context, secretID, token string) ([]historydao.Record, error)
}

type historyQuery struct {
	SecretID string
	ID       string
	Token    string
	Limit    int
}

func loadHistory(ctx context.Context, reader historyReader, q historyQuery) ([]historydao.Record, error) {
	switch {
	case q.ID != "":
		record, err := reader.Find(ctx, historydao.NewID(historydao.NewPK(q.SecretID), q.ID))
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, fmt.Errorf("history entry %s not found for %s", q.ID, q.SecretID)
		}
		return []historydao.Record{*record}, nil
	case q.Token != "":
		return reader.QueryByToken(ctx, q.SecretID, q.Token)
	default:
		return reader.Query(ctx, q.SecretID, q.Limit)
	}
}

func toHistoryEntries(records []historydao.Record) []historyEntry {
	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, historyEntry{
			ID:        r.SK,
			Time:      time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
			Token:     r.Token,
			Step:      r.Step,
			Outcome:   r.Outcome,
			ErrorKind: r.ErrorKind,
			Error:     r.ErrorMsg,
		})
	}
	return entries
}

func renderHistory(w io.Writer, format string, records []historydao.Record) error {
	entries := toHistoryEntries(records)
	if format != outputText {
		return encode(w, format, entries)
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No rotation history recorded")
		return err
	}

	fmt.Fprintf(w, "%-27s  %-20s  %-12s  %-9s  %s\n", "ID", "TIME", "STEP", "OUTCOME", "TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 110))
	for _, e := range entries {
		fmt.Fprintf(w, "%-27s  %-20s  %-12s  %-9s  %s\n", e.ID, e.Time, e.Step, e.Outcome, e.Token)
		if e.Error != "" {
			fmt.Fprintf(w, "%-27s  %s: %s\n", "", e.ErrorKind, e.Error)
		}
	}
	return nil
}
