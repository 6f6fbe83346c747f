package cmd

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementCSV = `id,date,description,amount,balance,direction,counterparty
B1,2024-08-01,Payment,15000,15000,CREDIT,客户A
B2,2024-08-02,Instalment 1,5000,20000,CREDIT,BETA IND
B3,2024-08-03,Instalment 2,3000,23000,CREDIT,BETA IND
B4,2024-08-04,Deposit,100,23100,CREDIT,客户A有限责任公司
B5,2024-08-05,Transfer,1,23101,CREDIT,Gamma Logistics
`

const ordersCSV = `id,entity_id,amount,date
O1,CUST001,6000,2024-07-30
O2,CUST001,8000,2024-07-31
O3,CUST002,9600,2024-07-29
O4,CUST001,1000,2024-08-01
`

type result struct {
	stdout string
	stderr string
	code   int
}

// run executes one command line against the JSON store in dir
func run(t *testing.T, dir string, args ...string) result {
	t.Helper()

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{
		"--store-driver", "json",
		"--store-path", dir,
		"--actor", "tester",
		"--log-level", "error",
	}, args...))

	err := root.Execute()
	code := NewCLIErrorHandler(&errOut).HandleError(err)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func registerFixtures(t *testing.T, dir string) {
	t.Helper()
	r := run(t, dir, "alias", "register", "--entity-id", "CUST001", "--entity-name", "客户A有限公司", "--alias", "客户A")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, `Registered alias "客户A" for CUST001`)

	r = run(t, dir, "alias", "register", "--entity-id", "CUST002", "--entity-name", "Beta Industrial Co.", "--alias", "BETA IND")
	require.Equal(t, 0, r.code, r.stderr)
}

func TestAliasCommands(t *testing.T) {
	store := t.TempDir()
	registerFixtures(t, store)

	t.Run("duplicate is rejected", func(t *testing.T) {
		r := run(t, store, "alias", "register", "--entity-id", "CUST001", "--entity-name", "客户A有限公司", "--alias", " 客户a ")
		assert.Equal(t, 5, r.code)
		assert.Contains(t, r.stderr, "Error:")
	})

	t.Run("list filters by entity", func(t *testing.T) {
		r := run(t, store, "alias", "list", "--entity-id", "CUST002", "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var rows []models.AliasExportRow
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "BETA IND", rows[0].Alias)
		assert.Equal(t, "tester", rows[0].CreatedBy)
	})

	t.Run("resolve names", func(t *testing.T) {
		r := run(t, store, "alias", "resolve", "客户A有限责任公司", "beta ind")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "fuzzy")
		assert.Contains(t, r.stdout, "0.875")
		assert.Contains(t, r.stdout, "CUST002")
	})

	t.Run("suggest from arguments", func(t *testing.T) {
		r := run(t, store, "alias", "suggest", "--entity-id", "CUST001", "--format", "json",
			"客户A有限责任公司", "客户A", "Gamma Logistics")
		require.Equal(t, 0, r.code, r.stderr)

		var suggestions []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &suggestions))
		require.Len(t, suggestions, 1)
		assert.Equal(t, "客户A有限责任公司", suggestions[0]["candidate"])
	})

	t.Run("suggest for unknown entity", func(t *testing.T) {
		r := run(t, store, "alias", "suggest", "--entity-id", "CUST404", "anything")
		assert.Equal(t, 3, r.code)
	})

	t.Run("remove", func(t *testing.T) {
		r := run(t, store, "alias", "remove", "--entity-id", "CUST002", "--alias", "BETA IND")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "Removed alias")

		r = run(t, store, "alias", "remove", "--entity-id", "CUST002", "--alias", "BETA IND")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "No alias")
	})

	t.Run("conflicts are empty", func(t *testing.T) {
		r := run(t, store, "alias", "conflicts")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "(none)")
	})
}

func TestAliasExportImportRoundTrip(t *testing.T) {
	source := t.TempDir()
	registerFixtures(t, source)

	exported := filepath.Join(t.TempDir(), "aliases.csv")
	r := run(t, source, "alias", "export", "--output", exported)
	require.Equal(t, 0, r.code, r.stderr)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Entity ID,Entity Name,Alias,Created At,Created By\n"))

	target := t.TempDir()
	r = run(t, target, "alias", "import", exported)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Registered:")

	r = run(t, target, "alias", "list", "--format", "json")
	var rows []models.AliasExportRow
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "客户A", rows[0].Alias)
}

func TestAliasImportReportsFailures(t *testing.T) {
	store := t.TempDir()
	registerFixtures(t, store)

	batch := writeFile(t, t.TempDir(), "batch.csv", `entity_id,entity_name,alias
CUST003,Gamma Logistics,GAMMA
CUST003,Gamma Logistics,客户A
CUST004,,DELTA
`)
	r := run(t, store, "alias", "import", batch)
	assert.Equal(t, 5, r.code, "conflicts outrank validation failures")
	assert.Contains(t, r.stdout, string(errors.CodeAliasConflict))
	assert.Contains(t, r.stderr, "Failures by code")

	r = run(t, store, "alias", "list", "--entity-id", "CUST003", "--format", "json")
	var rows []models.AliasExportRow
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &rows))
	require.Len(t, rows, 1, "valid rows are still registered")
	assert.Equal(t, "GAMMA", rows[0].Alias)
}

func TestResolveStatement(t *testing.T) {
	store := t.TempDir()
	registerFixtures(t, store)
	statement := writeFile(t, t.TempDir(), "statement.csv", statementCSV)

	r := run(t, store, "resolve", "--bank-file", statement, "--format", "json")
	require.Equal(t, 0, r.code, r.stderr)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &decoded))
	assert.Equal(t, float64(3), decoded["auto_applicable"])
	assert.Equal(t, float64(1), decoded["needs_confirmation"])
	assert.Equal(t, float64(1), decoded["unresolved"])
}

func TestMatchLifecycle(t *testing.T) {
	store := t.TempDir()
	registerFixtures(t, store)
	inputs := t.TempDir()
	statement := writeFile(t, inputs, "statement.csv", statementCSV)
	orders := writeFile(t, inputs, "orders.csv", ordersCSV)

	createMatch := func(bankIDs, recordIDs string) models.FlexibleMatch {
		t.Helper()
		r := run(t, store, "match", "create", "-b", statement, "-l", orders,
			"--bank-ids", bankIDs, "--record-ids", recordIDs, "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var matches []models.FlexibleMatch
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &matches))
		require.Len(t, matches, 1)
		return matches[0]
	}

	overpaid := createMatch("B1", "O1,O2")
	assert.Equal(t, models.MatchOneToMany, overpaid.Kind)
	assert.True(t, overpaid.Balance.Equal(decimal.NewFromInt(1000)))

	underpaid := createMatch("B2,B3", "O3")
	assert.Equal(t, models.MatchManyToOne, underpaid.Kind)
	assert.True(t, underpaid.Balance.Equal(decimal.NewFromInt(-1600)))

	t.Run("many to many is rejected", func(t *testing.T) {
		r := run(t, store, "match", "create", "-b", statement, "-l", orders, "--bank-ids", "B4,B5", "--record-ids", "O3,O4")
		assert.Equal(t, 3, r.code)
	})

	t.Run("unknown id is rejected", func(t *testing.T) {
		r := run(t, store, "match", "create", "-b", statement, "-l", orders, "--bank-ids", "B9", "--record-ids", "O4")
		assert.Equal(t, 3, r.code)
		assert.Contains(t, r.stderr, "B9")
	})

	t.Run("balances", func(t *testing.T) {
		r := run(t, store, "balance", "--ledger-file", orders, "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var balances []models.CounterpartyBalance
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &balances))
		require.Len(t, balances, 2)
		assert.Equal(t, "CUST002", balances[0].EntityID)
		assert.Equal(t, "Beta Industrial Co.", balances[0].EntityName)
		assert.True(t, balances[0].UnreconciledBalance.Equal(decimal.NewFromInt(1600)))
		assert.Equal(t, "CUST001", balances[1].EntityID)
	})

	t.Run("list by kind", func(t *testing.T) {
		r := run(t, store, "match", "list", "--kind", "many_to_one", "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var matches []models.FlexibleMatch
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &matches))
		require.Len(t, matches, 1)
		assert.Equal(t, underpaid.ID, matches[0].ID)
	})

	t.Run("list rejects reversed range", func(t *testing.T) {
		today := time.Now().Format("2006-01-02")
		r := run(t, store, "match", "list", "--since", today, "--until", "2000-01-01")
		assert.Equal(t, 3, r.code)
	})

	t.Run("extend settles the underpaid match", func(t *testing.T) {
		r := run(t, store, "match", "extend", underpaid.ID, "-b", statement, "--bank-ids", "B4", "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var matches []models.FlexibleMatch
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &matches))
		assert.Len(t, matches[0].BankEntries, 3)
		assert.True(t, matches[0].Balance.Equal(decimal.NewFromInt(-1500)))
	})

	t.Run("undo keeps history", func(t *testing.T) {
		r := run(t, store, "match", "undo", overpaid.ID)
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "Undid match")

		r = run(t, store, "match", "undo", overpaid.ID)
		assert.Equal(t, 5, r.code)

		r = run(t, store, "match", "history", overpaid.ID, "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)
		var history []models.HistoryEntry
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &history))
		require.Len(t, history, 2)
		assert.Equal(t, models.ActionCreate, history[0].Action)
		assert.Equal(t, models.ActionUndo, history[1].Action)
		assert.Equal(t, "tester", history[1].Actor)
	})

	t.Run("whole ledger history", func(t *testing.T) {
		r := run(t, store, "match", "history", "--format", "csv")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Equal(t, 5, strings.Count(r.stdout, "\n"), "header plus create, create, extend, undo")
	})
}

func TestMatchPropose(t *testing.T) {
	store := t.TempDir()
	registerFixtures(t, store)
	inputs := t.TempDir()
	statement := writeFile(t, inputs, "statement.csv", statementCSV)
	orders := writeFile(t, inputs, "orders.csv", ordersCSV)

	r := run(t, store, "match", "propose", "-b", statement, "-l", orders, "--format", "json")
	require.Equal(t, 0, r.code, r.stderr)

	var set map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &set))
	proposals := set["proposals"].([]interface{})
	require.Len(t, proposals, 1)
	first := proposals[0].(map[string]interface{})
	assert.Equal(t, "one_to_many", first["kind"])
	assert.Equal(t, "CUST001", first["entity_id"])
	assert.Equal(t, "exact", first["quality"])
	assert.Len(t, first["ledger_records"], 3)
	assert.Len(t, set["unmatched_entries"], 4)

	t.Run("tight date tolerance", func(t *testing.T) {
		r := run(t, store, "match", "propose", "-b", statement, "-l", orders, "--date-tolerance", "1", "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &set))
		assert.Empty(t, set["proposals"])
	})

	t.Run("invalid group size", func(t *testing.T) {
		r := run(t, store, "match", "propose", "-b", statement, "-l", orders, "--max-group-size", "0")
		assert.Equal(t, 4, r.code)
	})

	t.Run("apply", func(t *testing.T) {
		r := run(t, store, "match", "propose", "-b", statement, "-l", orders, "--apply", "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)

		var matches []models.FlexibleMatch
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &matches))
		require.Len(t, matches, 1)
		assert.Equal(t, models.MatchOneToMany, matches[0].Kind)
		assert.True(t, matches[0].IsReconciled())
		assert.Contains(t, matches[0].Notes, "proposed: exact")

		r = run(t, store, "match", "propose", "-b", statement, "-l", orders, "--format", "json")
		require.Equal(t, 0, r.code, r.stderr)
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &set))
		assert.Empty(t, set["proposals"], "matched entries are not proposed again")
	})
}

func TestCommandErrors(t *testing.T) {
	store := t.TempDir()

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"invalid threshold", []string{"--similarity-threshold", "2", "alias", "list"}, 4},
		{"invalid format", []string{"--format", "xml", "alias", "list"}, 4},
		{"unknown driver", []string{"--store-driver", "mongo", "alias", "list"}, 4},
		{"missing bank file", []string{"resolve", "--bank-file", filepath.Join(store, "missing.csv")}, 2},
		{"missing required flag", []string{"resolve"}, 1},
		{"unknown command", []string{"reconcile"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, store, tt.args...)
			assert.Equal(t, tt.code, r.code, r.stderr)
			assert.Contains(t, r.stderr, "Error:")
		})
	}
}

func TestCLIErrorHandler(t *testing.T) {
	var out bytes.Buffer
	h := NewCLIErrorHandler(&out)

	assert.Equal(t, 0, h.HandleError(nil))
	assert.Empty(t, out.String())

	code := h.HandleError(errors.StorageError(errors.CodeStorageWrite, "matches", stderrors.New("disk unplugged")))
	assert.Equal(t, 6, code)
	assert.Contains(t, out.String(), "Storage error help")
	assert.Contains(t, out.String(), "disk unplugged")

	out.Reset()
	assert.Equal(t, 2, h.HandleError(os.ErrPermission))
	assert.Contains(t, out.String(), "Permission denied")
}
