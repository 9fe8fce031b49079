package cmd

import (
	"fmt"
	"io"
	"strings"

	"turnmemory/core"
	"turnmemory/factories"
	"turnmemory/services/memory"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	turnsPersona string
	turnsLimit   int
	exportFormat string
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var turnsCmd = &cobra.Command{
	Use:   "turns",
	Short: "Inspect turns stored in the SQLite memory store",
}

var turnsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored turns, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		stored, err := loadStoredTurns(cmd)
		if err != nil {
			return err
		}
		renderTurns(cmd.OutOrStdout(), stored)
		return nil
	},
}

var turnsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored turns as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		stored, err := loadStoredTurns(cmd)
		if err != nil {
			return err
		}
		return exportTurns(cmd.OutOrStdout(), stored, exportFormat)
	},
}

func init() {
	turnsCmd.PersistentFlags().StringVar(&turnsPersona, "persona", "", "Only turns of this persona")
	turnsCmd.PersistentFlags().IntVar(&turnsLimit, "limit", 0, "Maximum number of turns (0 = all)")
	turnsExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or yaml")

	turnsCmd.AddCommand(turnsListCmd, turnsExportCmd)
	rootCmd.AddCommand(turnsCmd)
}

func loadStoredTurns(cmd *cobra.Command) ([]memory.StoredTurn, error) {
	if settings.Memory.Driver != factories.MemoryDriverSQLite {
		return nil, fmt.Errorf("turns: only the sqlite memory driver can be read back (driver is %q)", settings.Memory.Driver)
	}
	sink, err := memory.OpenSQLiteSink(settings.Memory.SQLite, nil, core.GetLogger())
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	return sink.List(cmd.Context(), turnsPersona, turnsLimit)
}

func renderTurns(w io.Writer, stored []memory.StoredTurn) {
	if len(stored) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No turns stored"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d turn(s)", len(stored))))
	fmt.Fprintln(w)

	for _, st := range stored {
		persona := st.PersonaID
		if persona == "" {
			persona = "-"
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			idStyle.Render(st.ID),
			dateStyle.Render(st.CompletedAt.Local().Format("2006-01-02 15:04:05")),
			dateStyle.Render(persona))
		fmt.Fprintf(w, "  %s %s\n", userStyle.Render("User:"), truncate(st.UserText, 100))
		fmt.Fprintf(w, "  %s %s\n", assistantStyle.Render("Assistant:"), truncate(st.AssistantText, 100))
		fmt.Fprintln(w, strings.Repeat("─", 60))
	}
}

func exportTurns(w io.Writer, stored []memory.StoredTurn, format string) error {
	if stored == nil {
		stored = []memory.StoredTurn{}
	}
	switch strings.ToLower(format) {
	case "json":
		data, err := sonic.ConfigStd.MarshalIndent(stored, "", "  ")
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stored); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("export: unsupported format %q (want json or yaml)", format)
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
