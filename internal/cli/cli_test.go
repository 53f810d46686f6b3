package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gkobilansky/xgoat/internal/config"
)

const heroYAML = `id: hero
name: Hero headline
trafficAllocation: 100
variants:
  - id: control
    name: Ship Faster
    weight: 50
    config:
      headline: Ship Faster
  - id: test
    name: Build Better
    weight: 50
    config:
      headline: Build Better
`

// run executes the command tree against a fresh SQLite database in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", filepath.Join(dir, "xgoat.db")}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("xgoat %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func setupActive(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", heroYAML), "--activate")
	return dir
}

func TestCreate_YAML(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", heroYAML))
	expectations := []string{
		"Created experiment 'hero' (DRAFT) with 2 variants",
		"control: Ship Faster (50%)",
		"test: Build Better (50%)",
		"Traffic: 100%",
	}
	for _, expected := range expectations {
		if !strings.Contains(out, expected) {
			t.Errorf("create output missing %q\n\nGot:\n%s", expected, out)
		}
	}

	out = mustRun(t, dir, "show", "hero")
	if !strings.Contains(out, "STATUS: DRAFT") || !strings.Contains(out, "Build Better") {
		t.Errorf("unexpected show output:\n%s", out)
	}
}

func TestCreate_JSON(t *testing.T) {
	dir := t.TempDir()
	def := `{
		"id": "cta",
		"name": "CTA color",
		"trafficAllocation": 50,
		"variants": [
			{"id": "blue", "name": "Blue", "weight": 70, "config": {"color": "#00f"}},
			{"id": "green", "name": "Green", "weight": 30, "config": {"color": "#0f0"}}
		]
	}`

	out := mustRun(t, dir, "create", writeFile(t, dir, "cta.json", def), "--activate")
	if !strings.Contains(out, "Created experiment 'cta' (ACTIVE)") {
		t.Errorf("unexpected create output:\n%s", out)
	}

	out = mustRun(t, dir, "show", "cta", "--json")
	var exp struct {
		Status   string `json:"status"`
		Variants []struct {
			Config struct {
				Color string `json:"color"`
			} `json:"config"`
		} `json:"variants"`
	}
	if err := json.Unmarshal([]byte(out), &exp); err != nil {
		t.Fatalf("show --json is not JSON: %v\n%s", err, out)
	}
	if exp.Status != "ACTIVE" || exp.Variants[1].Config.Color != "#0f0" {
		t.Errorf("unexpected definition %+v", exp)
	}
}

func TestCreate_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(heroYAML, "weight: 50\n    config:\n      headline: Build Better", "weight: 40", 1)

	_, err := run(t, dir, "create", writeFile(t, dir, "bad.yaml", bad))
	if err == nil {
		t.Fatal("expected create to fail for weights that do not sum to 100")
	}
	if !strings.Contains(err.Error(), "weights-sum") {
		t.Errorf("expected weights-sum error, got: %v", err)
	}

	if _, err := run(t, dir, "create", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected create to fail for a missing file")
	}
}

func TestCreate_ActiveDefinitionWithActivate(t *testing.T) {
	dir := t.TempDir()
	active := heroYAML + "status: ACTIVE\n"

	out := mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", active), "--activate")
	if !strings.Contains(out, "Created experiment 'hero' (ACTIVE)") {
		t.Errorf("unexpected create output:\n%s", out)
	}
}

func TestCreate_NegativeWeight(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(heroYAML, "weight: 50", "weight: -10", 1)
	bad = strings.Replace(bad, "weight: 50", "weight: 110", 1)

	_, err := run(t, dir, "create", writeFile(t, dir, "bad.yaml", bad))
	if err == nil || !strings.Contains(err.Error(), "variant-weight") {
		t.Fatalf("expected variant-weight error, got: %v", err)
	}

	out := mustRun(t, dir, "list")
	if !strings.Contains(out, "No experiments yet.") {
		t.Errorf("expected nothing registered, got:\n%s", out)
	}
}

func TestFlagsAreScopedToCommandTree(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", heroYAML))

	// A fresh tree without --db falls back to the configured path.
	t.Setenv("XGOAT_DB_PATH", filepath.Join(t.TempDir(), "other.db"))
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out.String(), "No experiments yet.") {
		t.Errorf("--db from an earlier command tree leaked:\n%s", out.String())
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "list")
	if !strings.Contains(out, "No experiments yet.") {
		t.Errorf("expected empty message, got:\n%s", out)
	}

	mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", heroYAML), "--activate")
	mustRun(t, dir, "assign", "hero", "user-001")

	out = mustRun(t, dir, "list")
	for _, expected := range []string{"ID", "STATUS", "hero", "Hero headline", "ACTIVE"} {
		if !strings.Contains(out, expected) {
			t.Errorf("list output missing %q\n\nGot:\n%s", expected, out)
		}
	}
}

func TestLifecycle(t *testing.T) {
	dir := setupActive(t)

	out := mustRun(t, dir, "pause", "hero")
	if !strings.Contains(out, "Experiment 'hero' is now PAUSED") {
		t.Errorf("unexpected pause output: %s", out)
	}

	out = mustRun(t, dir, "assign", "hero", "user-001")
	if !strings.Contains(out, "not eligible") {
		t.Errorf("expected paused experiment to reject assignment, got: %s", out)
	}

	out = mustRun(t, dir, "resume", "hero")
	if !strings.Contains(out, "is now ACTIVE") {
		t.Errorf("unexpected resume output: %s", out)
	}

	if _, err := run(t, dir, "activate", "hero"); err == nil {
		t.Error("expected activate of an active experiment to fail")
	}

	if _, err := run(t, dir, "complete", "hero", "--winner", "nope"); err == nil {
		t.Error("expected complete with an unknown winner to fail")
	}

	out = mustRun(t, dir, "complete", "hero", "--winner", "test")
	if !strings.Contains(out, "is now COMPLETED") || !strings.Contains(out, "Winner: test") {
		t.Errorf("unexpected complete output: %s", out)
	}

	_, err := run(t, dir, "resume", "missing")
	if err == nil || !strings.Contains(err.Error(), "experiment 'missing' not found") {
		t.Errorf("expected not found error, got: %v", err)
	}
}

func TestAssign(t *testing.T) {
	dir := setupActive(t)

	out := mustRun(t, dir, "assign", "hero", "user-001")
	if !strings.Contains(out, "User 'user-001' -> test (Build Better)") {
		t.Errorf("unexpected assign output: %s", out)
	}

	// Sticky across invocations.
	out = mustRun(t, dir, "assign", "hero", "user-001", "--json")
	var a struct {
		VariantID string `json:"variantId"`
	}
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatalf("assign --json is not JSON: %v\n%s", err, out)
	}
	if a.VariantID != "test" {
		t.Errorf("expected test variant again, got %s", a.VariantID)
	}

	out = mustRun(t, dir, "assign", "unknown", "user-001")
	if !strings.Contains(out, "not eligible") {
		t.Errorf("expected unknown experiment to be not eligible, got: %s", out)
	}
}

func TestConvertResultsAndExport(t *testing.T) {
	dir := setupActive(t)

	mustRun(t, dir, "assign", "hero", "user-001")
	out := mustRun(t, dir, "convert", "hero", "user-001", "--variant", "test", "--type", "signup", "--value", "25")
	if !strings.Contains(out, "Recorded signup for 'user-001' on hero/test") {
		t.Errorf("unexpected convert output: %s", out)
	}

	if _, err := run(t, dir, "convert", "hero", "user-001"); err == nil {
		t.Error("expected convert without --variant to fail")
	}

	out = mustRun(t, dir, "results", "hero")
	for _, expected := range []string{
		"EXPERIMENT: hero",
		"STATUS: ACTIVE",
		"← LEADING",
		"Not enough data to compare yet",
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("results output missing %q\n\nGot:\n%s", expected, out)
		}
	}

	out = mustRun(t, dir, "export", "hero", "--format", "csv")
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("export is not CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 events, got %d rows", len(records))
	}
	if records[1][1] != "AB_TEST_ASSIGNMENT" || records[2][1] != "AB_TEST_CONVERSION" {
		t.Errorf("unexpected event order: %v", records)
	}
	if records[2][4] != "signup" || records[2][5] != "25" {
		t.Errorf("unexpected conversion row: %v", records[2])
	}

	out = mustRun(t, dir, "export", "hero", "--format", "json")
	var export jsonExport
	if err := json.Unmarshal([]byte(out), &export); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(export.Events) != 2 || export.Events[1].Value == nil || *export.Events[1].Value != 25 {
		t.Errorf("unexpected JSON export %+v", export)
	}

	if _, err := run(t, dir, "export", "hero", "--format", "xml"); err == nil {
		t.Error("expected export to reject xml")
	}
}

func TestResults_WithFlags(t *testing.T) {
	dir := setupActive(t)

	// bucket("alice") is 30.4, inside the 50% control share.
	out := mustRun(t, dir, "assign", "hero", "alice")
	if !strings.Contains(out, "-> control") {
		t.Fatalf("expected alice on control, got: %s", out)
	}
	mustRun(t, dir, "assign", "hero", "user-001")
	mustRun(t, dir, "convert", "hero", "user-001", "--variant", "test")

	out = mustRun(t, dir, "results", "hero", "--control", "control", "--test", "test")
	if !strings.Contains(out, "test vs control:") {
		t.Errorf("expected a significance line, got:\n%s", out)
	}
	if !strings.Contains(out, "uplift undefined") {
		t.Errorf("expected undefined uplift without control conversions, got:\n%s", out)
	}
	if !strings.Contains(out, "not significant yet") {
		t.Errorf("expected one conversion to be inconclusive, got:\n%s", out)
	}
}

func TestUsersSetAndTargeting(t *testing.T) {
	dir := t.TempDir()
	targeted := heroYAML + `targetAudience:
  minPoints: 100
  userTypes: [premium]
`
	mustRun(t, dir, "create", writeFile(t, dir, "hero.yaml", targeted), "--activate")

	out := mustRun(t, dir, "assign", "hero", "user-001")
	if !strings.Contains(out, "not eligible") {
		t.Errorf("expected unknown user to be rejected, got: %s", out)
	}

	out = mustRun(t, dir, "users", "set", "user-001", "--points", "250", "--type", "premium")
	if !strings.Contains(out, "Saved user 'user-001'") {
		t.Errorf("unexpected users set output: %s", out)
	}

	out = mustRun(t, dir, "assign", "hero", "user-001")
	if !strings.Contains(out, "-> test") {
		t.Errorf("expected targeted user to be assigned, got: %s", out)
	}
}

func TestToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	t.Setenv("XGOAT_TOKEN_FILE", path)

	if _, err := run(t, dir, "token"); err == nil {
		t.Error("expected token to fail before the server has run")
	}

	if err := os.WriteFile(path, []byte("abc123"), 0600); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}
	out := mustRun(t, dir, "token")
	if !strings.Contains(out, "Admin token: abc123") {
		t.Errorf("unexpected token output: %s", out)
	}
}

func TestNewMetrics_UsesConfig(t *testing.T) {
	cfg := config.New()
	cfg.MetricsNamespace = "shop"
	cfg.MetricsSubsystem = "ab"
	cfg.LatencyBuckets = []float64{0.05, 0.5}

	m := newMetrics(cfg)
	m.RecordAssignment("hero", "test")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["shop_ab_assignments_total"] {
		t.Errorf("expected shop_ab_assignments_total, got %v", names)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
	}
	for n, want := range cases {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}
