package service

import (
	"fmt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

var yearTransitions = map[models.AcademicYearStatus][]models.AcademicYearStatus{
	models.AcademicYearDraft:  {models.AcademicYearActive, models.AcademicYearArchived},
	models.AcademicYearActive: {models.AcademicYearArchived},
}

var termTransitions = map[models.TermStatus][]models.TermStatus{
	models.TermDraft:  {models.TermActive},
	models.TermActive: {models.TermClosed},
}

// calendarCheck accumulates every broken rule for one proposed write. Conflicts are
// state collisions the caller resolves elsewhere; violations are fixable input.
type calendarCheck struct {
	violations []string
	conflicts  []string
}

func (c *calendarCheck) violate(format string, args ...interface{}) {
	c.violations = append(c.violations, fmt.Sprintf(format, args...))
}

func (c *calendarCheck) conflict(format string, args ...interface{}) {
	c.conflicts = append(c.conflicts, fmt.Sprintf(format, args...))
}

func (c *calendarCheck) err(message string) error {
	if len(c.violations) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, message, append(append([]string(nil), c.violations...), c.conflicts...))
	}
	if len(c.conflicts) > 0 {
		return appErrors.WithDetails(appErrors.ErrConflict, c.conflicts[0], c.conflicts)
	}
	return nil
}

func (c *calendarCheck) report() *dto.ViolationReport {
	all := append(append([]string{}, c.violations...), c.conflicts...)
	return &dto.ViolationReport{OK: len(all) == 0, Violations: all}
}

func transitionAllowed[S comparable](table map[S][]S, from, to S) bool {
	if from == to {
		return true
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func datesOrdered(start, end *models.Date) bool {
	return !start.IsSet() || !end.IsSet() || start.Before(end.Time)
}

// overlaps compares half-open intervals; open-ended intervals never overlap.
func overlaps(aStart, aEnd, bStart, bEnd *models.Date) bool {
	if !aStart.IsSet() || !aEnd.IsSet() || !bStart.IsSet() || !bEnd.IsSet() {
		return false
	}
	return aStart.Before(bEnd.Time) && bStart.Before(aEnd.Time)
}

func within(d, lower, upper *models.Date) bool {
	if !d.IsSet() {
		return true
	}
	if lower.IsSet() && d.Before(lower.Time) {
		return false
	}
	if upper.IsSet() && d.After(upper.Time) {
		return false
	}
	return true
}

// checkYear validates a proposed year. current is nil on create.
func checkYear(check *calendarCheck, current *models.AcademicYear, proposed models.AcademicYear, otherActive []models.AcademicYear, terms []models.Term) {
	if proposed.Name == "" {
		check.violate("name is required")
	}
	if !proposed.Status.Valid() {
		check.violate("status %q is not recognised", proposed.Status)
	} else if current == nil && proposed.Status == models.AcademicYearArchived {
		check.violate("a new academic year must start as DRAFT or ACTIVE")
	} else if current != nil && !transitionAllowed(yearTransitions, current.Status, proposed.Status) {
		check.violate("academic year cannot move from %s to %s", current.Status, proposed.Status)
	}

	if !datesOrdered(proposed.StartDate, proposed.EndDate) {
		check.violate("start_date must be before end_date")
	}
	if proposed.Status == models.AcademicYearActive {
		if !proposed.StartDate.IsSet() || !proposed.EndDate.IsSet() {
			check.violate("an active academic year requires start_date and end_date")
		}
		for _, other := range otherActive {
			check.conflict("academic year %q is already active; archive it first", other.Name)
		}
	}

	if proposed.StartDate.IsSet() && proposed.EndDate.IsSet() {
		for _, term := range terms {
			if !within(term.StartDate, proposed.StartDate, proposed.EndDate) || !within(term.EndDate, proposed.StartDate, proposed.EndDate) {
				check.violate("term %q falls outside the academic year dates", term.Name)
			}
		}
	}
}

// checkTerm validates a proposed term against its year, its siblings and the
// system-wide active term. current is nil on create; siblings exclude the term itself.
func checkTerm(check *calendarCheck, year models.AcademicYear, current *models.Term, proposed models.Term, siblings, otherActive []models.Term) {
	if proposed.Name == "" {
		check.violate("name is required")
	}
	if proposed.Sequence <= 0 {
		check.violate("sequence must be a positive integer")
	}
	if !proposed.Status.Valid() {
		check.violate("status %q is not recognised", proposed.Status)
	} else if current == nil && proposed.Status == models.TermClosed {
		check.violate("a new term must start as DRAFT or ACTIVE")
	} else if current != nil && !transitionAllowed(termTransitions, current.Status, proposed.Status) {
		check.violate("term cannot move from %s to %s", current.Status, proposed.Status)
	}
	if year.Status == models.AcademicYearArchived && (current == nil || proposed.Status == models.TermActive) {
		check.violate("academic year %q is archived", year.Name)
	}

	if !datesOrdered(proposed.StartDate, proposed.EndDate) {
		check.violate("start_date must be before end_date")
	}
	if year.StartDate.IsSet() && year.EndDate.IsSet() {
		if !within(proposed.StartDate, year.StartDate, year.EndDate) || !within(proposed.EndDate, year.StartDate, year.EndDate) {
			check.violate("term dates must lie within academic year %q (%s to %s)", year.Name, year.StartDate, year.EndDate)
		}
	}
	for _, sibling := range siblings {
		if overlaps(proposed.StartDate, proposed.EndDate, sibling.StartDate, sibling.EndDate) {
			check.violate("term dates overlap term %q", sibling.Name)
		}
	}

	if proposed.ResultOpenDate.IsSet() && proposed.ResultCloseDate.IsSet() && proposed.ResultCloseDate.Before(proposed.ResultOpenDate.Time) {
		check.violate("result_open_date must not be after result_close_date")
	}
	if !within(proposed.ResultOpenDate, proposed.StartDate, proposed.EndDate) {
		check.violate("result_open_date must fall within the term")
	}
	if !within(proposed.ResultCloseDate, proposed.StartDate, proposed.EndDate) {
		check.violate("result_close_date must fall within the term")
	}

	if proposed.Status == models.TermActive && (current == nil || current.Status != models.TermActive) {
		for _, other := range otherActive {
			check.violate("term %q is already active; close it before activating another", other.Name)
		}
	}
}
