package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/HelpLine/internal/models"
)

func TestDefaultRegistryCoversEveryCategory(t *testing.T) {
	r := DefaultRegistry()
	cats := r.Categories()
	if len(cats) != 6 {
		t.Fatalf("expected 6 categories, got %d", len(cats))
	}
	wantPrompts := map[models.CategoryID]int{
		models.CategoryHardware: 3,
		models.CategorySoftware: 3,
		models.CategoryRede:     3,
		models.CategoryAcesso:   3,
		models.CategoryInfra:    3,
		models.CategoryOutros:   2,
	}
	for _, c := range cats {
		f, ok := r.FlowFor(c.ID)
		if !ok {
			t.Fatalf("missing flow for %s", c.ID)
		}
		if len(f.Issues) != 4 {
			t.Errorf("%s: expected 4 issues, got %d", c.ID, len(f.Issues))
		}
		if len(f.Prompts) != wantPrompts[c.ID] {
			t.Errorf("%s: expected %d prompts, got %d", c.ID, wantPrompts[c.ID], len(f.Prompts))
		}
	}
}

func TestCategoryTicketNames(t *testing.T) {
	c, ok := CategoryByID(models.CategoryInfra)
	if !ok {
		t.Fatal("infra category not found")
	}
	if c.TicketName != models.TicketCategorySO {
		t.Errorf("expected infra to map to %q, got %q", models.TicketCategorySO, c.TicketName)
	}
	if _, ok := CategoryByID("impressoras"); ok {
		t.Error("expected unknown category lookup to fail")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	cats := []models.Category{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}}
	valid := models.Flow{Issues: []string{"x"}}

	tests := []struct {
		name  string
		cats  []models.Category
		flows map[models.CategoryID]models.Flow
		want  error
	}{
		{
			name:  "missing flow",
			cats:  cats,
			flows: map[models.CategoryID]models.Flow{"a": valid},
			want:  models.ErrMissingFlow,
		},
		{
			name:  "flow for unknown category",
			cats:  cats[:1],
			flows: map[models.CategoryID]models.Flow{"a": valid, "b": valid},
			want:  models.ErrFlowForUnknownCategory,
		},
		{
			name: "choice without options",
			cats: cats[:1],
			flows: map[models.CategoryID]models.Flow{"a": {
				Prompts: []models.Prompt{{ID: "p", Question: "q?", Type: models.PromptTypeChoice}},
			}},
			want: models.ErrMissingChoiceOptions,
		},
		{
			name:  "duplicate category",
			cats:  []models.Category{{ID: "a"}, {ID: "a"}},
			flows: map[models.CategoryID]models.Flow{"a": valid},
			want:  models.ErrDuplicateCategory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.cats, tt.flows)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := NewRegistry(cats, map[models.CategoryID]models.Flow{"a": valid, "b": {}}); err != nil {
		t.Errorf("expected valid registry, got %v", err)
	}
}

func TestGuideText(t *testing.T) {
	id := models.CategoryRede
	text := GuideFor(&id).Text()
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected title and 3 steps, got %d lines: %q", len(lines), text)
	}
	if lines[0] != "Confirme estes pontos antes de encaminharmos:" {
		t.Errorf("unexpected title %q", lines[0])
	}
	for i, l := range lines[1:] {
		prefix := string(rune('1'+i)) + ". "
		if !strings.HasPrefix(l, prefix) {
			t.Errorf("step %d should start with %q, got %q", i+1, prefix, l)
		}
	}
}

func TestGuideDefault(t *testing.T) {
	if GuideFor(nil).Title != defaultGuide.Title {
		t.Error("nil category should use the default guide")
	}
	unknown := models.CategoryID("impressoras")
	if GuideFor(&unknown).Title != defaultGuide.Title {
		t.Error("unknown category should use the default guide")
	}
}

func TestFeedbackPolicy(t *testing.T) {
	var p FeedbackPolicy
	if p.ShouldEscalate(1) {
		t.Error("default policy should not escalate after one miss")
	}
	if !p.ShouldEscalate(2) {
		t.Error("default policy should escalate after two misses")
	}
	if (FeedbackPolicy{Threshold: 3}).ShouldEscalate(2) {
		t.Error("threshold 3 should not escalate after two misses")
	}
	if (FeedbackPolicy{Threshold: -1}).ShouldEscalate(100) {
		t.Error("negative threshold disables escalation")
	}
}
