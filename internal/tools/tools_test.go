package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"finagent/internal/alerts"
	"finagent/internal/profile"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echo " + name,
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%s(%v)", name, args["value"]), nil
		},
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Execute(context.Background(), "nope", "{}"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestExecute_ValidArgs(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(echoTool("echo"))

	got, err := r.Execute(context.Background(), "echo", `{"value": 42}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "echo(42)" {
		t.Errorf("got %q", got)
	}
}

func TestExecute_RepairsMalformedArgs(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(echoTool("echo"))

	// Single quotes and a trailing comma: typical truncated model
	// output that a strict parser rejects.
	got, err := r.Execute(context.Background(), "echo", `{'value': 'hi',}`)
	if err != nil {
		t.Fatalf("Execute should repair malformed args: %v", err)
	}
	if got != "echo(hi)" {
		t.Errorf("got %q", got)
	}
}

func TestExecute_EmptyArgs(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(echoTool("echo"))

	if _, err := r.Execute(context.Background(), "echo", ""); err != nil {
		t.Errorf("empty args should be allowed: %v", err)
	}
}

func TestList_StableOrderAndSchema(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(echoTool("bravo"))
	r.Register(echoTool("alpha"))

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List = %d tools, want 2", len(list))
	}
	fn0 := list[0]["function"].(map[string]any)
	if fn0["name"] != "bravo" {
		t.Errorf("tool order should follow registration, got %v first", fn0["name"])
	}
	if list[0]["type"] != "function" {
		t.Errorf("schema type = %v", list[0]["type"])
	}
}

func TestArgAccessors(t *testing.T) {
	args := map[string]any{
		"s":      "text",
		"f":      3.5,
		"numstr": "150",
	}
	if got := strArg(args, "s"); got != "text" {
		t.Errorf("strArg = %q", got)
	}
	if got := strArg(args, "missing"); got != "" {
		t.Errorf("strArg missing = %q", got)
	}
	if f, ok := numArg(args, "f"); !ok || f != 3.5 {
		t.Errorf("numArg f = %v, %v", f, ok)
	}
	if f, ok := numArg(args, "numstr"); !ok || f != 150 {
		t.Errorf("numArg numstr = %v, %v", f, ok)
	}
	if got := intArg(args, "missing", 7); got != 7 {
		t.Errorf("intArg default = %d", got)
	}
}

func TestAlertTools_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	store := alerts.NewStore(filepath.Join(t.TempDir(), "alerts.json"))
	RegisterAlertTools(r, store)
	ctx := context.Background()

	out, err := r.Execute(ctx, "add_price_alert",
		`{"symbol": "600519.SH", "comparator": "<", "threshold": 1500}`)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "600519.SH < 1500.00") {
		t.Errorf("add output = %q", out)
	}

	out, err = r.Execute(ctx, "list_price_alerts", "{}")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "armed") {
		t.Errorf("list output = %q", out)
	}

	tasks, _ := store.List()
	out, err = r.Execute(ctx, "update_price_alert",
		fmt.Sprintf(`{"id": %q, "threshold": 1400}`, tasks[0].ID))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out, "1400.00") {
		t.Errorf("update output = %q", out)
	}

	if _, err := r.Execute(ctx, "remove_price_alert",
		fmt.Sprintf(`{"id": %q}`, tasks[0].ID)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if remaining, _ := store.List(); len(remaining) != 0 {
		t.Errorf("alerts remaining after remove: %d", len(remaining))
	}
}

func TestProfileTools(t *testing.T) {
	r := newTestRegistry(t)
	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	RegisterProfileTools(r, store)
	ctx := context.Background()

	out, err := r.Execute(ctx, "get_investor_profile", "{}")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "No investor profile on record." {
		t.Errorf("empty profile = %q", out)
	}

	out, err = r.Execute(ctx, "update_investor_profile",
		`{"risk_tolerance": "moderate", "preferred_sectors": "banks, energy"}`)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out, "risk tolerance: moderate") {
		t.Errorf("update output = %q", out)
	}

	p, _ := store.Load()
	if len(p.PreferredSectors) != 2 || p.PreferredSectors[1] != "energy" {
		t.Errorf("sectors = %v", p.PreferredSectors)
	}
}

func TestSystemTools_ReconfigureModel(t *testing.T) {
	r := newTestRegistry(t)
	var switched string
	RegisterSystemTools(r, func(model string) error {
		switched = model
		return nil
	})

	out, err := r.Execute(context.Background(), "reconfigure_model", `{"model": "deepseek-reasoner"}`)
	if err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if switched != "deepseek-reasoner" {
		t.Errorf("switched = %q", switched)
	}
	if !strings.Contains(out, "deepseek-reasoner") {
		t.Errorf("output = %q", out)
	}

	if _, err := r.Execute(context.Background(), "reconfigure_model", `{}`); err == nil {
		t.Error("missing model should error")
	}
}

func TestSystemTools_NilReconfigureOmitsTool(t *testing.T) {
	r := newTestRegistry(t)
	RegisterSystemTools(r, nil)
	if r.Get("reconfigure_model") != nil {
		t.Error("reconfigure_model should not be registered without a callback")
	}
	if r.Get("get_current_time") == nil {
		t.Error("get_current_time should always be registered")
	}
}
