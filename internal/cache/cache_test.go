package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/habitaworks/habita/internal/domain"
)

func TestPutGetAndFreshness(t *testing.T) {
	s := NewStore()
	defer s.Close()

	if _, ok := s.Get(EntryDashboard); ok {
		t.Fatal("empty store must not return values")
	}
	s.Put(EntryDashboard, 42)
	v, ok := s.Get(EntryDashboard)
	if !ok || v != 42 {
		t.Fatalf("Get() = %v, %v", v, ok)
	}
	if !s.Fresh(EntryDashboard) {
		t.Fatal("direct write must leave entry fresh")
	}
	s.markStale(EntryDashboard)
	if s.Fresh(EntryDashboard) {
		t.Fatal("expected stale entry")
	}
	if v, ok := s.Get(EntryDashboard); !ok || v != 42 {
		t.Fatalf("stale value must stay visible, got %v, %v", v, ok)
	}
}

func TestStaleRefreshNeverClobbersNewerWrite(t *testing.T) {
	s := NewStore()
	defer s.Close()

	release := make(chan struct{})
	s.Register(EntryTodayAttendance, func(ctx context.Context) (any, error) {
		<-release
		return "stale-read", nil
	})

	s.StartRefresh(context.Background(), EntryTodayAttendance)
	// A newer user-intent write lands while the refresh is still in flight.
	s.Put(EntryTodayAttendance, "optimistic")
	close(release)
	s.WaitInflight()

	v, _ := s.Get(EntryTodayAttendance)
	if v != "optimistic" {
		t.Fatalf("value = %v, stale refresh clobbered the newer write", v)
	}
}

func TestCancelRefreshDiscardsResult(t *testing.T) {
	s := NewStore()
	defer s.Close()

	release := make(chan struct{})
	s.Register(EntryDashboard, func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	})
	s.Put(EntryDashboard, "current")
	s.StartRefresh(context.Background(), EntryDashboard)
	s.CancelRefresh(EntryDashboard)
	close(release)
	s.WaitInflight()

	if v, _ := s.Get(EntryDashboard); v != "current" {
		t.Fatalf("value = %v, cancelled refresh still published", v)
	}
}

func TestRollbackExactness(t *testing.T) {
	s := NewStore()
	defer s.Close()

	items := []domain.WorkItem{{ID: "w1", Title: "before"}}
	s.Put(EntryAdminWorkItems, items)
	s.markStale(EntryAdminWorkItems)

	sendErr := errors.New("remote rejected")
	_, err := Run(context.Background(), s, Mutation[string]{
		Entries:     []EntryID{EntryAdminWorkItems, EntryDashboard},
		Provisional: "provisional",
		Send: func(context.Context) (string, error) {
			// The optimistic write must be visible while pending.
			if v, _ := s.Get(EntryAdminWorkItems); v != "provisional" {
				t.Fatalf("pending value = %v", v)
			}
			return "", sendErr
		},
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("Run() error = %v, want %v", err, sendErr)
	}

	v, ok := s.Get(EntryAdminWorkItems)
	if !ok || !reflect.DeepEqual(v, items) {
		t.Fatalf("post-rollback value = %v, want original snapshot", v)
	}
	if s.Fresh(EntryAdminWorkItems) {
		t.Fatal("rollback must restore staleness flag exactly")
	}
	// EntryDashboard held nothing before; rollback must empty it again.
	if _, ok := s.Get(EntryDashboard); ok {
		t.Fatal("rollback left a value in a previously empty entry")
	}
}

func TestCommitReplacesProvisionalAndInvalidates(t *testing.T) {
	s := NewStore()
	defer s.Close()

	fetches := 0
	s.Register(EntryWorkerWorkItems, func(ctx context.Context) (any, error) {
		fetches++
		return "fetched", nil
	})
	s.Put(EntryWorkerWorkItems, "old")

	var applied []string
	result, err := Run(context.Background(), s, Mutation[string]{
		Entries:     []EntryID{EntryAdminWorkItems},
		Groups:      []Group{GroupTaskMutation},
		Provisional: "temp-id",
		Send: func(context.Context) (string, error) {
			return "server-id", nil
		},
		OnApplied: func(v string) { applied = append(applied, v) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != "server-id" {
		t.Fatalf("result = %q", result)
	}
	// The authoritative value is visible immediately, before invalidation
	// completes.
	if v, _ := s.Get(EntryAdminWorkItems); v != "server-id" {
		t.Fatalf("committed value = %v", v)
	}
	if len(applied) != 1 || applied[0] != "temp-id" {
		t.Fatalf("OnApplied calls = %v", applied)
	}

	s.WaitInflight()
	if fetches != 1 {
		t.Fatalf("group invalidation fetches = %d, want 1", fetches)
	}
	if v, _ := s.Get(EntryWorkerWorkItems); v != "fetched" {
		t.Fatalf("invalidated entry = %v", v)
	}
}

func TestPerEntryAppliers(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.Put(EntryAdminWorkItems, []string{"a"})
	_, err := Run(context.Background(), s, Mutation[string]{
		Entries:     []EntryID{EntryAdminWorkItems, EntryDashboard},
		Provisional: "b",
		ApplyTo: map[EntryID]Applier[string]{
			EntryAdminWorkItems: func(prev any, ok bool, value string) any {
				list, _ := prev.([]string)
				return append(list, value)
			},
		},
		Send: func(context.Context) (string, error) { return "b", nil },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	v, _ := s.Get(EntryAdminWorkItems)
	list, _ := v.([]string)
	// Applied twice: once provisionally, once authoritatively on the updated
	// slice. The final state reflects the authoritative application.
	if len(list) == 0 || list[len(list)-1] != "b" {
		t.Fatalf("merged list = %v", list)
	}
	if v, _ := s.Get(EntryDashboard); v != "b" {
		t.Fatalf("default applier result = %v", v)
	}
}

func TestIdempotentInvalidation(t *testing.T) {
	s := NewStore()
	defer s.Close()

	value := "v1"
	fetches := 0
	s.Register(EntryTodayAttendance, func(ctx context.Context) (any, error) {
		fetches++
		return value, nil
	})
	s.Register(EntryDashboard, func(ctx context.Context) (any, error) {
		return "counts", nil
	})

	s.Invalidate(context.Background(), GroupAttendanceChange)
	first, _ := s.Get(EntryTodayAttendance)
	s.Invalidate(context.Background(), GroupAttendanceChange)
	second, _ := s.Get(EntryTodayAttendance)

	if first != second {
		t.Fatalf("double invalidation changed value: %v vs %v", first, second)
	}
	if fetches != 2 {
		t.Fatalf("fetches = %d, want one per invalidation", fetches)
	}
	if !s.Fresh(EntryTodayAttendance) {
		t.Fatal("invalidated entry must be fresh after re-fetch")
	}
}

func TestCloseStaleSessionLeavesNullWithoutRefetch(t *testing.T) {
	s := NewStore()
	defer s.Close()

	open := domain.AttendanceRecord{WorkerID: "w1"}
	s.Put(EntryTodayAttendance, &open)

	fetches := 0
	s.Register(EntryTodayAttendance, func(ctx context.Context) (any, error) {
		fetches++
		return &open, nil
	})

	// Close-stale optimistically nulls the cached attendance and, on
	// success, leaves it authoritatively null so a fresh check-in can
	// proceed.
	var null *domain.AttendanceRecord
	_, err := Run(context.Background(), s, Mutation[*domain.AttendanceRecord]{
		Entries:     []EntryID{EntryTodayAttendance},
		Provisional: nil,
		Send: func(context.Context) (*domain.AttendanceRecord, error) {
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	v, ok := s.Get(EntryTodayAttendance)
	if !ok {
		t.Fatal("entry must still hold an (authoritatively null) value")
	}
	if got, _ := v.(*domain.AttendanceRecord); got != null {
		t.Fatalf("cached attendance = %v, want nil", got)
	}
	if fetches != 0 {
		t.Fatalf("fetches = %d, close-stale must not re-fetch", fetches)
	}
}

func TestGroupMembership(t *testing.T) {
	ids := EntriesForGroups(GroupTaskMutation, GroupAttendanceChange)
	want := map[EntryID]bool{
		EntryAdminWorkItems:  true,
		EntryWorkerWorkItems: true,
		EntryDashboard:       true,
		EntryTodayAttendance: true,
	}
	if len(ids) != len(want) {
		t.Fatalf("union = %v", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("unexpected member %q", id)
		}
	}
}

func TestCloseTearsDownState(t *testing.T) {
	s := NewStore()
	s.Put(EntryDashboard, 1)
	s.Close()
	if _, ok := s.Get(EntryDashboard); ok {
		t.Fatal("closed store must not return values")
	}
}
