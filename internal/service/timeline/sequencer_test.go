package timeline

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

func normalizeOne(t *testing.T, events []models.RawEvent) models.StudentEvents {
	t.Helper()
	out, err := Normalize([]models.StudentEventRecord{{Namespace: "ns", StudentID: "stu", Events: events}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return out[0]
}

func unitsOf(seq models.StudentSequence) []string {
	var units []string
	for _, u := range seq.Units {
		units = append(units, u.Alias+"="+u.Unit)
	}
	return units
}

func TestSequence_FirstVisitOrder(t *testing.T) {
	student := normalizeOne(t, []models.RawEvent{
		rawEvent("saved_code", "2024-07-21T03:00:00Z", `"17"`),
		rawEvent("saved_code", "2024-07-21T03:01:00Z", `"19"`),
		rawEvent("submission", "2024-07-21T03:02:00Z", `17`),
	})

	seq := Sequence(student)

	got := fmt.Sprint(unitsOf(seq))
	if got != "[Q1=17 Q2=19]" {
		t.Fatalf("units = %s", got)
	}
	if TrailString(seq) != "Q1 -> Q2 -> Q1" {
		t.Fatalf("trail = %q", TrailString(seq))
	}
	if !seq.Units[0].FirstSeen.Equal(time.Date(2024, 7, 21, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("first seen = %v", seq.Units[0].FirstSeen)
	}
}

func TestSequence_Empty(t *testing.T) {
	seq := Sequence(models.StudentEvents{Namespace: "ns", StudentID: "idle"})
	if len(seq.Units) != 0 || len(seq.Trail) != 0 {
		t.Fatalf("expected empty sequence, got %+v", seq)
	}
	if seq.Units == nil {
		t.Fatalf("units should be an empty list, not nil")
	}
}

func TestSequence_AliasesAreContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(40)
		events := make([]models.RawEvent, 0, n)
		distinct := map[string]bool{}
		for i := 0; i < n; i++ {
			unit := rng.Intn(12)
			distinct[fmt.Sprint(unit)] = true
			raw := json.RawMessage(fmt.Sprint(unit))
			if rng.Intn(2) == 0 {
				raw = json.RawMessage(fmt.Sprintf(`"%d"`, unit))
			}
			events = append(events, models.RawEvent{
				Type:        "saved_code",
				CreatedTime: base.Add(time.Duration(rng.Intn(1000)) * time.Second).Format(time.RFC3339),
				Unit:        raw,
			})
		}

		seq := Sequence(normalizeOne(t, events))
		if len(seq.Units) != len(distinct) {
			t.Fatalf("round %d: %d aliases for %d distinct units", round, len(seq.Units), len(distinct))
		}
		seen := map[string]bool{}
		for i, u := range seq.Units {
			if u.Alias != Alias(i+1) {
				t.Fatalf("round %d: alias %d = %q", round, i, u.Alias)
			}
			if seen[u.Unit] {
				t.Fatalf("round %d: unit %q aliased twice", round, u.Unit)
			}
			seen[u.Unit] = true
		}
		if len(seq.Trail) != n {
			t.Fatalf("round %d: trail has %d steps, want %d", round, len(seq.Trail), n)
		}
	}
}

func TestSequence_InputOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	events := make([]models.RawEvent, 0, 30)
	for i := 0; i < 30; i++ {
		events = append(events, rawEvent(
			"submission",
			base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339),
			fmt.Sprintf(`"%d"`, rng.Intn(9)),
		))
	}
	want := Sequence(normalizeOne(t, events))

	for round := 0; round < 20; round++ {
		shuffled := append([]models.RawEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := Sequence(normalizeOne(t, shuffled))
		if fmt.Sprint(unitsOf(got)) != fmt.Sprint(unitsOf(want)) {
			t.Fatalf("round %d: units %v, want %v", round, unitsOf(got), unitsOf(want))
		}
		if TrailString(got) != TrailString(want) {
			t.Fatalf("round %d: trail %q, want %q", round, TrailString(got), TrailString(want))
		}
	}
}

func TestSequence_TiesKeepInputOrder(t *testing.T) {
	ts := "2024-07-21T03:00:00Z"

	first := Sequence(normalizeOne(t, []models.RawEvent{
		rawEvent("saved_code", ts, `"b"`),
		rawEvent("saved_code", ts, `"a"`),
	}))
	second := Sequence(normalizeOne(t, []models.RawEvent{
		rawEvent("saved_code", ts, `"a"`),
		rawEvent("saved_code", ts, `"b"`),
	}))

	if fmt.Sprint(unitsOf(first)) != "[Q1=b Q2=a]" {
		t.Fatalf("first = %v", unitsOf(first))
	}
	if fmt.Sprint(unitsOf(second)) != "[Q1=a Q2=b]" {
		t.Fatalf("second = %v", unitsOf(second))
	}
}

func TestBuild_KeepsSubmissionOrder(t *testing.T) {
	students, err := Normalize([]models.StudentEventRecord{
		{Namespace: "ns", StudentID: "one", Events: []models.RawEvent{
			rawEvent("saved_code", "2024-07-21T03:00:00Z", `"17"`),
			rawEvent("saved_code", "2024-07-21T03:01:00Z", `"19"`),
			rawEvent("submission", "2024-07-21T03:02:00Z", `"17"`),
		}},
		{Namespace: "ns", StudentID: "two", Events: []models.RawEvent{
			rawEvent("submission", "2024-07-21T02:00:00Z", `"5"`),
		}},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	seqs := Build(students)
	if len(seqs) != 2 || seqs[0].StudentID != "one" || seqs[1].StudentID != "two" {
		t.Fatalf("unexpected order: %+v", seqs)
	}
	if fmt.Sprint(unitsOf(seqs[0])) != "[Q1=17 Q2=19]" || fmt.Sprint(unitsOf(seqs[1])) != "[Q1=5]" {
		t.Fatalf("unexpected units: %v %v", unitsOf(seqs[0]), unitsOf(seqs[1]))
	}
}
