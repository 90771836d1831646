package cli

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/matching/health"
)

var apiAddr string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and manage the API key pool of a running server",
}

var keysStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every API key with its failures and calls today",
	RunE:  runKeysStatus,
}

var keysSwitchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Rotate to the next usable API key",
	RunE:  runKeysSwitch,
}

var keysResetCmd = &cobra.Command{
	Use:   "reset [index]",
	Short: "Reset failure counts of all keys, or of one key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeysReset,
}

func init() {
	keysCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "server address")
	keysCmd.AddCommand(keysStatusCmd, keysSwitchCmd, keysResetCmd)
	rootCmd.AddCommand(keysCmd)
}

func keyRows(statuses []domain.CredentialStatus) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		active := ""
		if s.IsActive {
			active = "*"
		}
		lastUsed := "-"
		if s.LastUsed != nil {
			lastUsed = s.LastUsed.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			active,
			strconv.Itoa(s.Index),
			s.KeyHint,
			strconv.Itoa(s.FailureCount),
			strconv.FormatInt(s.CallsToday, 10),
			lastUsed,
			s.LastError,
		})
	}
	return rows
}

func printKeys(statuses []domain.CredentialStatus) {
	fmt.Println(renderTable(
		[]string{"", "Index", "Key", "Failures", "Calls Today", "Last Used", "Last Error"},
		keyRows(statuses),
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func runKeysStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newAPIClient(apiAddr)

	var h domain.KeyHealth
	if _, err := client.do(ctx, http.MethodGet, "/api/api-key/health", nil, &h); err != nil {
		return err
	}
	var statuses []domain.CredentialStatus
	if _, err := client.do(ctx, http.MethodGet, "/api/api-key/status", nil, &statuses); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Status: %s  Active: %d/%d  Threshold: %d\n",
		health.Evaluate(h), h.CurrentKeyIndex, h.TotalKeys, h.Threshold)
	printKeys(statuses)
	return nil
}

func runKeysSwitch(cmd *cobra.Command, args []string) error {
	var h domain.KeyHealth
	msg, err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodPost, "/api/api-key/switch", nil, &h)
	if err != nil {
		return err
	}
	fmt.Printf("%s (active key %d)\n", msg, h.CurrentKeyIndex)
	return nil
}

func runKeysReset(cmd *cobra.Command, args []string) error {
	path := "/api/api-key/reset"
	if len(args) == 1 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid key index %q", args[0])
		}
		path += "/" + args[0]
	}
	msg, err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
