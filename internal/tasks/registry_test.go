package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wonny/argos/internal/contracts"
)

func newTask(id, symbol string) *contracts.Task {
	return &contracts.Task{
		ID:           id,
		Kind:         contracts.KindSingle,
		Symbol:       symbol,
		AnalysisDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:       contracts.StatusPending,
		CreatedAt:    time.Now(),
	}
}

func TestRegistryReserve(t *testing.T) {
	reg := NewRegistry()

	view, ok := reg.Reserve(newTask("t1", "NVDA"), func() {})
	if !ok {
		t.Fatal("first reserve rejected")
	}
	if view.Status != contracts.StatusInitializing {
		t.Errorf("reserved status = %s, want INITIALIZING", view.Status)
	}

	// Same symbol is occupied; the occupant's view comes back
	existing, ok := reg.Reserve(newTask("t2", "NVDA"), func() {})
	if ok {
		t.Fatal("second reserve for the same symbol accepted")
	}
	if existing.TaskID != "t1" {
		t.Errorf("conflict view task = %s, want t1", existing.TaskID)
	}

	// A different symbol is free
	if _, ok := reg.Reserve(newTask("t3", "AAPL"), func() {}); !ok {
		t.Fatal("reserve for a free symbol rejected")
	}

	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestRegistryReserveBulkParent(t *testing.T) {
	reg := NewRegistry()

	parent := newTask("bulk-1", "")
	parent.Kind = contracts.KindBulk

	if _, ok := reg.Reserve(parent, func() {}); !ok {
		t.Fatal("bulk parent reserve rejected")
	}

	// A symbol-less parent occupies no slot
	if _, ok := reg.Reserve(newTask("t1", "NVDA"), func() {}); !ok {
		t.Fatal("symbol reserve rejected after bulk parent")
	}
	if _, ok := reg.GetBySymbol(""); ok {
		t.Error("empty symbol resolved to an entry")
	}
}

func TestRegistryTerminalReleasesSlot(t *testing.T) {
	reg := NewRegistry()
	reg.Reserve(newTask("t1", "NVDA"), func() {})

	reg.SetStatus("t1", contracts.StatusRunning, "")
	if _, ok := reg.GetBySymbol("NVDA"); !ok {
		t.Fatal("running symbol lost its slot")
	}

	reg.SetStatus("t1", contracts.StatusCompleted, "")

	// Slot freed even though the entry still exists
	if _, ok := reg.GetBySymbol("NVDA"); ok {
		t.Error("terminal entry still occupies the symbol slot")
	}
	if _, ok := reg.Reserve(newTask("t2", "NVDA"), func() {}); !ok {
		t.Error("symbol not reusable after terminal status")
	}

	// Terminal entries never move again
	reg.SetStatus("t1", contracts.StatusRunning, "")
	view, _ := reg.Get("t1")
	if view.Status != contracts.StatusCompleted {
		t.Errorf("terminal entry moved to %s", view.Status)
	}
}

func TestRegistryCancel(t *testing.T) {
	reg := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	reg.Reserve(newTask("t1", "NVDA"), cancel)
	reg.SetStatus("t1", contracts.StatusRunning, "")

	if !reg.Cancel("NVDA") {
		t.Fatal("cancel by symbol failed")
	}
	if ctx.Err() == nil {
		t.Fatal("cancel did not fire the context")
	}

	// Idempotent: a second cancel on a live entry is still true,
	// firing an already-cancelled context is a no-op
	if !reg.Cancel("t1") {
		t.Error("repeat cancel by task id failed")
	}

	reg.SetStatus("t1", contracts.StatusCancelled, "")
	if reg.Cancel("t1") {
		t.Error("cancelled a terminal entry")
	}
	if reg.Cancel("UNKNOWN") {
		t.Error("cancelled an unknown reference")
	}
}

// Exercised under -race: Cancel's terminal check must not read entry
// state outside the lock while SetStatus is writing it
func TestRegistryCancelConcurrentWithTransitions(t *testing.T) {
	reg := NewRegistry()

	_, cancel := context.WithCancel(context.Background())
	reg.Reserve(newTask("t1", "NVDA"), cancel)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.SetStatus("t1", contracts.StatusRunning, "")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.Cancel("t1")
			}
		}()
	}
	wg.Wait()

	reg.SetStatus("t1", contracts.StatusCancelled, "")
	if reg.Cancel("t1") {
		t.Error("cancelled a terminal entry")
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.Reserve(newTask("t1", "NVDA"), func() {})

	reg.Remove("t1")

	if _, ok := reg.Get("t1"); ok {
		t.Error("entry survived removal")
	}
	if _, ok := reg.GetBySymbol("NVDA"); ok {
		t.Error("symbol slot survived removal")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestRegistryCountersAndActive(t *testing.T) {
	reg := NewRegistry()

	parent := newTask("bulk-1", "")
	parent.Kind = contracts.KindBulk
	parent.Counters = contracts.Counters{Total: 3}
	reg.Reserve(parent, func() {})

	reg.SetCounters("bulk-1", contracts.Counters{Total: 3, Completed: 2, Failed: 1})
	reg.SetActive("bulk-1", []string{"NVDA", "AAPL"})

	view, ok := reg.Get("bulk-1")
	if !ok {
		t.Fatal("parent entry missing")
	}
	if view.Counters.Completed != 2 || view.Counters.Failed != 1 {
		t.Errorf("counters = %+v, want completed 2, failed 1", view.Counters)
	}
	if len(view.Active) != 2 || view.Active[0] != "NVDA" {
		t.Errorf("active = %v, want [NVDA AAPL]", view.Active)
	}
}
