package parser

import (
	"testing"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		expected  models.BankType
		wantScore int
	}{
		{
			name:      "two anchors",
			text:      "MALAYAN BANKING BERHAD\nMaybank Card Services",
			expected:  models.BankMaybank,
			wantScore: 4,
		},
		{
			name:      "anchor plus credit marker",
			text:      "Standard Chartered Bank Malaysia\n05/01/24 PAYMENT 100.00 CR",
			expected:  models.BankStandardChartered,
			wantScore: 3,
		},
		{
			name:      "anchor plus tab columns",
			text:      "Barclays\n4 Dec\tCARD\t10.00\t\t90.00\n5 Dec\tGIRO\t\t5.00\t95.00",
			expected:  models.BankBarclays,
			wantScore: 3,
		},
		{
			name:      "anchor plus parenthesised credit",
			text:      "Affin Bank Berhad\n05-01-2024 PAYMENT (100.00)",
			expected:  models.BankAffin,
			wantScore: 3,
		},
		{
			name:      "tie goes to declaration order",
			text:      "Alliance Bank allianceonline\nAffin Bank AffinAlways",
			expected:  models.BankAlliance,
			wantScore: 3,
		},
		{
			name:      "single weak anchor is not enough",
			text:      "OCBC\nsomething",
			expected:  "",
			wantScore: 1,
		},
		{
			name:      "unknown bank",
			text:      "Some Unknown Bank\nStatement",
			expected:  "",
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, s := Detect(tt.text)
			if got != tt.expected {
				t.Errorf("bank: got %q, want %q", got, tt.expected)
			}
			if s != tt.wantScore {
				t.Errorf("score: got %d, want %d", s, tt.wantScore)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	templates := Templates()
	if len(templates) != 15 {
		t.Fatalf("got %d templates, want 15", len(templates))
	}

	seen := map[models.BankType]bool{}
	for _, tmpl := range templates {
		if seen[tmpl.ID] {
			t.Errorf("duplicate template %q", tmpl.ID)
		}
		seen[tmpl.ID] = true
		if len(tmpl.Anchors) == 0 {
			t.Errorf("%s: no anchors", tmpl.ID)
		}
		if len(tmpl.Lines) == 0 {
			t.Errorf("%s: no line patterns", tmpl.ID)
		}
		if len(tmpl.Required) == 0 {
			t.Errorf("%s: no required fields", tmpl.ID)
		}
		if tmpl.Sign == SignSuffix && tmpl.CreditMarker == "" {
			t.Errorf("%s: suffix rule without marker", tmpl.ID)
		}
	}

	if templates[0].ID != models.BankMaybank || templates[14].ID != models.BankMetro {
		t.Errorf("unexpected declaration order: first %q, last %q", templates[0].ID, templates[14].ID)
	}
	if _, ok := Lookup(models.BankUniversal); !ok {
		t.Error("universal layout not found")
	}
	if _, ok := Lookup("nosuchbank"); ok {
		t.Error("expected lookup of unknown bank to fail")
	}
}
