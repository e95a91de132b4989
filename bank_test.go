package gatekeeper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testBank(t *testing.T, challenges ...Challenge) (*Bank, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := &Config{
		GraceSeconds: 120,
		BanSeconds:   300,
		Messages:     DefaultMessages(),
		Challenges:   challenges,
	}
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	return NewBank(cfg, path), path
}

func TestBankAdd_RejectsDuplicateQuestion(t *testing.T) {
	bank, _ := testBank(t, Challenge{Question: "What is Go?", Answer: "A language", Wrong: []string{"A game"}})

	err := bank.Add(Challenge{Question: "  what is go? ", Answer: "Other", Wrong: []string{"X"}})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}
	if bank.Len() != 1 {
		t.Errorf("expected 1 challenge, got %d", bank.Len())
	}
}

func TestBankAdd_RejectsInvalid(t *testing.T) {
	bank, _ := testBank(t)

	if err := bank.Add(Challenge{Question: "Q?", Answer: "A"}); err == nil {
		t.Error("expected error for challenge with no wrong answers")
	}
}

func TestBankSnapshot_IsACopy(t *testing.T) {
	bank, _ := testBank(t, Challenge{Question: "Q?", Answer: "A", Wrong: []string{"B"}})

	snap := bank.Snapshot()
	snap[0].Question = "tampered"

	got, err := bank.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Question != "Q?" {
		t.Errorf("snapshot mutation reached the bank: %q", got.Question)
	}
}

func TestBankUpdateDelete_Bounds(t *testing.T) {
	bank, _ := testBank(t, Challenge{Question: "Q?", Answer: "A", Wrong: []string{"B"}})

	valid := Challenge{Question: "New?", Answer: "A", Wrong: []string{"B"}}
	if err := bank.Update(5, valid); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for out-of-range update, got %v", err)
	}
	if err := bank.Delete(-1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for negative delete, got %v", err)
	}

	if err := bank.Update(0, valid); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := bank.Get(0)
	if got.Question != "New?" {
		t.Errorf("update did not apply, got %q", got.Question)
	}

	if err := bank.Delete(0); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if bank.Len() != 0 {
		t.Errorf("expected empty bank, got %d", bank.Len())
	}
}

func TestBankSave_PersistsChallenges(t *testing.T) {
	bank, path := testBank(t)

	if err := bank.Add(Challenge{Question: "Q?", Answer: "A", Wrong: []string{"B"}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := bank.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Challenges) != 1 {
		t.Errorf("expected 1 saved challenge, got %d", len(cfg.Challenges))
	}
}

func TestBankReload_SwapsList(t *testing.T) {
	bank, path := testBank(t, Challenge{Question: "Old?", Answer: "A", Wrong: []string{"B"}})

	updated := &Config{
		GraceSeconds: 120,
		BanSeconds:   300,
		Messages:     DefaultMessages(),
		Challenges: []Challenge{
			{Question: "New1?", Answer: "A", Wrong: []string{"B"}},
			{Question: "New2?", Answer: "A", Wrong: []string{"B"}},
		},
	}
	if err := SaveConfig(path, updated); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	n, err := bank.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if n != 2 || bank.Len() != 2 {
		t.Errorf("expected 2 challenges after reload, got n=%d len=%d", n, bank.Len())
	}
}

func TestBankReload_KeepsListOnCorruptFile(t *testing.T) {
	bank, path := testBank(t, Challenge{Question: "Q?", Answer: "A", Wrong: []string{"B"}})

	if err := os.WriteFile(path, []byte("{not yaml"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := bank.Reload(); err == nil {
		t.Error("expected error reloading corrupt file")
	}
	if bank.Len() != 1 {
		t.Errorf("corrupt reload changed the bank, len=%d", bank.Len())
	}
}
