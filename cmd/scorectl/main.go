// Package main provides scorectl, an offline tool for inspecting persisted
// games.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/courtside/scorekeeper-server-go/internal/game"
	"github.com/courtside/scorekeeper-server-go/internal/store"
)

const defaultDBPath = "data/scorekeeper.db"

var (
	dbPath     string
	archiveDir string
	outPath    string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scorectl",
		Short:         "Inspect and export scorekeeper games",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "sqlite event store path")
	rootCmd.PersistentFlags().StringVar(&archiveDir, "archive", "", "read games from this archive directory instead of the event store")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newExportCmd())
	return rootCmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List games in the event store",
		Args:  cobra.NoArgs,
		RunE:  runListCmd,
	}
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer st.Close()

	games, err := st.ListGames(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tQUARTER\tHOME\tAWAY\tSCORE")
	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d-%d\n",
			g.ID, g.Status, g.CurrentQuarter, teamName(g.HomeTeamName, g.HomeTeamID), teamName(g.AwayTeamName, g.AwayTeamID), g.HomeScore, g.AwayScore)
	}
	return w.Flush()
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <game-id>",
		Short: "Rebuild a game from its event log and verify the stored score",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	archive, err := loadArchive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sess, err := archive.Restore()
	if err != nil {
		return fmt.Errorf("failed to replay game: %w", err)
	}
	sum, err := sess.Checksum()
	if err != nil {
		return err
	}
	home, away := sess.Ledger().Score()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "game:     %s (%s)\n", archive.Game.ID, archive.Game.Status)
	fmt.Fprintf(out, "events:   %d\n", len(archive.Events))
	fmt.Fprintf(out, "quarter:  %d\n", sess.Ledger().Quarter())
	fmt.Fprintf(out, "score:    %s %d - %d %s\n",
		teamName(archive.Game.HomeTeamName, archive.Game.HomeTeamID), home, away,
		teamName(archive.Game.AwayTeamName, archive.Game.AwayTeamID))
	fmt.Fprintf(out, "checksum: %s (v%d)\n", sum.Hash, sum.Version)

	if home != archive.Game.HomeScore || away != archive.Game.AwayScore {
		return fmt.Errorf("stored score %d-%d does not match replayed score %d-%d",
			archive.Game.HomeScore, archive.Game.AwayScore, home, away)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <game-id>",
		Short: "Export a game's box score as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) (err error) {
	archive, err := loadArchive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sess, err := archive.Restore()
	if err != nil {
		return fmt.Errorf("failed to replay game: %w", err)
	}

	out := cmd.OutOrStdout()
	if outPath != "" {
		var f *os.File
		f, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	}
	return writeBoxScore(out, sess.Ledger().Snapshot())
}

var boxScoreHeader = []string{
	"team_id", "player_id", "number", "name", "pts",
	"fgm", "fga", "3pm", "3pa", "ftm", "fta",
	"oreb", "dreb", "reb", "ast", "stl", "blk", "tov",
	"pf", "tech", "flagrant", "fouled_out", "ejected",
}

// writeBoxScore writes one row per player followed by a totals row per team.
func writeBoxScore(w io.Writer, snap game.LedgerSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(boxScoreHeader); err != nil {
		return err
	}
	itoa := strconv.Itoa
	for _, p := range snap.Players {
		if err := cw.Write([]string{
			p.TeamID, p.PlayerID, p.Number, p.Name, itoa(p.Points),
			itoa(p.FieldGoalsMade), itoa(p.FieldGoalsAttempted),
			itoa(p.ThreePointersMade), itoa(p.ThreePointersAttempted),
			itoa(p.FreeThrowsMade), itoa(p.FreeThrowsAttempted),
			itoa(p.OffensiveRebounds), itoa(p.DefensiveRebounds), itoa(p.Rebounds()),
			itoa(p.Assists), itoa(p.Steals), itoa(p.Blocks), itoa(p.Turnovers),
			itoa(p.Fouls), itoa(p.TechnicalFouls), itoa(p.FlagrantFouls + p.Flagrant2Fouls),
			strconv.FormatBool(p.FouledOut), strconv.FormatBool(p.Ejected),
		}); err != nil {
			return err
		}
	}
	for _, t := range snap.Teams {
		row := make([]string, len(boxScoreHeader))
		row[0] = t.TeamID
		row[1] = "TEAM"
		row[4] = itoa(t.Points)
		row[13] = itoa(t.TeamRebounds)
		row[18] = itoa(t.TeamFoulsTotal)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func loadArchive(ctx context.Context, gameID string) (game.Archive, error) {
	if archiveDir != "" {
		return game.LoadArchiveFile(archiveDir, gameID)
	}
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return game.Archive{}, fmt.Errorf("event store %s does not exist", dbPath)
		}
		return game.Archive{}, err
	}
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return game.Archive{}, fmt.Errorf("failed to open db: %w", err)
	}
	defer st.Close()
	return store.Load(ctx, st, gameID)
}

func teamName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
