package timeline

import (
	"strconv"
	"strings"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

const aliasPrefix = "Q"

// Alias returns the question label for a 1-based visit position.
func Alias(position int) string {
	return aliasPrefix + strconv.Itoa(position)
}

// Sequence derives the unit visit order of one student from events already
// sorted by time. The first event that references a unit fixes its position
// and alias; later events only extend the trail.
func Sequence(student models.StudentEvents) models.StudentSequence {
	seq := models.StudentSequence{
		Namespace: student.Namespace,
		StudentID: student.StudentID,
		Units:     []models.UnitVisit{},
		Trail:     make([]models.TrailStep, 0, len(student.Events)),
	}

	aliases := make(map[string]string, len(student.Events))
	for _, event := range student.Events {
		alias, seen := aliases[event.Unit]
		if !seen {
			alias = Alias(len(seq.Units) + 1)
			aliases[event.Unit] = alias
			seq.Units = append(seq.Units, models.UnitVisit{
				Unit:      event.Unit,
				Alias:     alias,
				FirstSeen: event.CreatedTime,
			})
		}

		seq.Trail = append(seq.Trail, models.TrailStep{
			Alias:       alias,
			Unit:        event.Unit,
			Type:        event.Type,
			CreatedTime: event.CreatedTime,
		})
	}

	return seq
}

// Build sequences every student of a normalized submission, keeping
// submission order.
func Build(students []models.StudentEvents) []models.StudentSequence {
	out := make([]models.StudentSequence, 0, len(students))
	for _, student := range students {
		out = append(out, Sequence(student))
	}
	return out
}

// TrailString renders the event order as "Q1 -> Q2 -> Q1".
func TrailString(seq models.StudentSequence) string {
	aliases := make([]string, 0, len(seq.Trail))
	for _, step := range seq.Trail {
		aliases = append(aliases, step.Alias)
	}
	return strings.Join(aliases, " -> ")
}
