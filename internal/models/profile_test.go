package models

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStringList_ScalarAndSequence(t *testing.T) {
	var p Profile
	doc := "extends: base.yaml\nchecks: []\n"
	if err := yaml.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("unmarshal scalar extends: %v", err)
	}
	if len(p.Extends) != 1 || p.Extends[0] != "base.yaml" {
		t.Errorf("extends = %v, want [base.yaml]", p.Extends)
	}

	doc = "extends: [a.yaml, b.yaml]\nchecks: []\n"
	if err := yaml.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("unmarshal sequence extends: %v", err)
	}
	if len(p.Extends) != 2 || p.Extends[1] != "b.yaml" {
		t.Errorf("extends = %v, want [a.yaml b.yaml]", p.Extends)
	}
}

func TestParseAssertType_Aliases(t *testing.T) {
	tests := []struct {
		raw  string
		want AssertType
	}{
		{"exact", AssertExact},
		{"EXACT", AssertExact},
		{"allowlist", AssertAllowlist},
		{"custom_allowlist_file", AssertAllowlist},
		{"denylist", AssertDenylist},
		{"set_denylist", AssertDenylist},
	}
	for _, tt := range tests {
		got, err := ParseAssertType(tt.raw)
		if err != nil {
			t.Errorf("ParseAssertType(%q) failed: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAssertType(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}

	if _, err := ParseAssertType("fuzzy"); err == nil {
		t.Error("ParseAssertType should reject unknown types")
	}
}

func TestExpectation_Shapes(t *testing.T) {
	var rule Rule
	doc := "id: x\nexpect: enabled\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s, ok := rule.Expect.AsString(); !ok || s != "enabled" {
		t.Errorf("AsString = %q, %v", s, ok)
	}

	doc = "id: x\nexpect:\n  path: a.b\n  value: \"1\"\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal mapping expect: %v", err)
	}
	if _, ok := rule.Expect.AsString(); ok {
		t.Error("AsString should fail for mapping expects")
	}
	var shape struct {
		Path  string `yaml:"path"`
		Value string `yaml:"value"`
	}
	if err := rule.Expect.Decode(&shape); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if shape.Path != "a.b" || shape.Value != "1" {
		t.Errorf("decoded shape = %+v", shape)
	}
}

func TestWhenClause_Shapes(t *testing.T) {
	var rule Rule
	doc := "id: x\nwhen:\n  os.id: debian\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal equals when: %v", err)
	}
	mv, ok := rule.When.Equals["os.id"]
	if !ok || len(mv.Values) != 1 || mv.Values[0] != "debian" {
		t.Errorf("equals clause = %+v", rule.When)
	}

	doc = "id: x\nwhen:\n  any:\n    - os.id: debian\n    - os.id: ubuntu\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal any when: %v", err)
	}
	if len(rule.When.Any) != 2 {
		t.Errorf("any branches = %d, want 2", len(rule.When.Any))
	}

	doc = "id: x\nwhen:\n  os.id: {regexp: \"^deb\"}\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal regexp when: %v", err)
	}
	if rule.When.Equals["os.id"].Regexp != "^deb" {
		t.Errorf("regexp clause = %+v", rule.When.Equals["os.id"])
	}

	doc = "id: x\nwhen:\n  expr: 'level == \"strict\"'\n"
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal expr when: %v", err)
	}
	if rule.When.Expr != `level == "strict"` {
		t.Errorf("expr = %q", rule.When.Expr)
	}
}
