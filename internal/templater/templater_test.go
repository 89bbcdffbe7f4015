package templater

import (
	"context"
	"testing"
)

func TestReplace_SingleMatch(t *testing.T) {
	engine := New()
	target := `{"host":"placeholder","port":5432}`

	result, err := engine.Replace(target, "host", `"db.internal"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"host":"db.internal","port":5432}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestReplace_NoMatchLeavesTargetUnchanged(t *testing.T) {
	engine := New()
	target := `{"host":"placeholder"}`

	result, err := engine.Replace(target, "missing.path", `"value"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != target {
		t.Fatalf("expected target unchanged when path has no match, got %s", result)
	}
}

func TestReplace_WildcardArrayPath(t *testing.T) {
	engine := New()
	target := `{"resources":[{"url":"a"},{"url":"b"}]}`

	result, err := engine.Replace(target, "resources.#.url", `"replaced"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"resources":[{"url":"replaced"},{"url":"replaced"}]}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestReplaceCustom_UsesMatchAndResourceIndex(t *testing.T) {
	engine := New()
	target := `{"resources":[{"name":"alpha"},{"name":"beta"}]}`

	script := `function(match, index) { return match + "-" + index; }`

	result, err := engine.ReplaceCustom(context.Background(), target, "resources.#.name", script, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"resources":[{"name":"alpha-0"},{"name":"beta-0"}]}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestReplaceCustom_ScriptErrorPropagates(t *testing.T) {
	engine := New()
	target := `{"value":"x"}`

	script := `function(match, index) { throw new Error("boom"); }`

	if _, err := engine.ReplaceCustom(context.Background(), target, "value", script, 0); err == nil {
		t.Fatal("expected script error to propagate")
	}
}

func TestReplaceCustom_SandboxHasNoSharedState(t *testing.T) {
	engine := New()
	target := `{"values":["x","y"]}`

	script := `function(match, index) { if (typeof globalThis.leaked !== "undefined") { return "leaked"; } globalThis.leaked = true; return "clean"; }`

	result, err := engine.ReplaceCustom(context.Background(), target, "values.#", script, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"values":["clean","clean"]}` {
		t.Fatalf("expected a fresh runtime per call with no leaked globals, got %s", result)
	}
}
